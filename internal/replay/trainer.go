// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package replay

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/capgateway/internal/shgat"
)

var (
	trainerBatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capgateway_replay_trainer_batches_total",
		Help: "Mini-batches processed by the replay trainer.",
	})
	trainerLoss = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "capgateway_replay_trainer_batch_loss",
		Help: "Mean BCE+L2 loss per training mini-batch.",
	})
)

// Config holds the trainer's tunables.
type Config struct {
	BatchSize          int           // default 32
	Epochs             int           // default 1
	LearningRate       float64       // default 1e-3
	L2Lambda           float64       // default 1e-4
	GradClipNorm       float64       // default 1.0
	Dropout            float64       // default 0.1, applied to head outputs during training forward passes (not used by the fusion-only backward pass; retained for ablation wiring)
	Alpha              float64       // default 0.6, PER priority exponent
	BetaStart          float64       // default 0.4
	BetaEnd            float64       // default 1.0
	BetaHorizonBatches int           // batches over which beta anneals from BetaStart to BetaEnd
	SoftBudget         time.Duration // default 30s
}

// DefaultConfig returns the trainer's recommended defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:          32,
		Epochs:             1,
		LearningRate:       1e-3,
		L2Lambda:           1e-4,
		GradClipNorm:       1.0,
		Dropout:            0.1,
		Alpha:              0.6,
		BetaStart:          0.4,
		BetaEnd:            1.0,
		BetaHorizonBatches: 10000,
		SoftBudget:         30 * time.Second,
	}
}

// Trainer is Component F: it owns the PER buffer and periodically
// fine-tunes a Scorer's fusion MLP from it.
//
// # Thread Safety
//
// Train holds an exclusive lock on the in-progress parameter update
// (trainMu) but never blocks concurrent scoring, since Scorer.Score reads
// parameters through an atomic pointer.
type Trainer struct {
	trainMu sync.Mutex

	cfg     Config
	buffer  *Buffer
	scorer  *shgat.Scorer
	batches uint64
	logger  *slog.Logger

	// Stats from the most recently completed Train call, read by the
	// training API's trainNow response. Guarded by trainMu.
	lastExamples          int
	lastLossSum           float64
	lastUpdatedPriorities int
}

// New constructs a Trainer over buffer, fine-tuning scorer.
func New(buffer *Buffer, scorer *shgat.Scorer, cfg Config, logger *slog.Logger) *Trainer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Trainer{cfg: cfg, buffer: buffer, scorer: scorer, logger: logger}
}

// Stats reports the example count, mean BCE+L2 loss, and priority-update
// count from the most recently completed Train call. Zero values before
// the first call.
func (t *Trainer) Stats() (examples int, avgLoss float64, updatedPriorities int) {
	t.trainMu.Lock()
	defer t.trainMu.Unlock()
	avgLoss = 0
	if t.lastExamples > 0 {
		avgLoss = t.lastLossSum / float64(t.lastExamples)
	}
	return t.lastExamples, avgLoss, t.lastUpdatedPriorities
}

// Train runs mini-batch gradient descent against the replay buffer until
// cfg.Epochs worth of batches complete or the soft time budget elapses,
// whichever comes first. Returns the number of batches actually processed.
func (t *Trainer) Train(ctx context.Context) (int, error) {
	if !t.trainMu.TryLock() {
		return 0, nil // a training run is already in progress
	}
	defer t.trainMu.Unlock()

	t.lastExamples, t.lastLossSum, t.lastUpdatedPriorities = 0, 0, 0

	t.scorer.SetState(shgat.StateTraining)
	defer func() {
		if t.scorer.State() == shgat.StateTraining {
			t.scorer.SetState(shgat.StateTrained)
		}
	}()

	deadline := time.Now().Add(t.cfg.SoftBudget)
	rng := rand.New(rand.NewSource(int64(t.batches) + 1))

	epochs := t.cfg.Epochs
	if epochs <= 0 {
		epochs = 1
	}
	batchesPerEpoch := (t.buffer.Len() + t.cfg.BatchSize - 1) / t.cfg.BatchSize

	processed := 0
	for epoch := 0; epoch < epochs; epoch++ {
		for b := 0; b < batchesPerEpoch; b++ {
			select {
			case <-ctx.Done():
				return processed, ctx.Err()
			default:
			}
			if time.Now().After(deadline) {
				t.logger.Info("replay: training stopped at soft budget", slog.Int("batches_processed", processed))
				return processed, nil
			}

			beta := t.annealedBeta()
			if err := t.runBatch(rng, beta); err != nil {
				return processed, err
			}
			processed++
			t.batches++
			trainerBatches.Inc()
		}
	}
	return processed, nil
}

func (t *Trainer) annealedBeta() float64 {
	horizon := t.cfg.BetaHorizonBatches
	if horizon <= 0 {
		return t.cfg.BetaEnd
	}
	frac := float64(t.batches) / float64(horizon)
	if frac > 1 {
		frac = 1
	}
	return t.cfg.BetaStart + frac*(t.cfg.BetaEnd-t.cfg.BetaStart)
}

// runBatch draws one mini-batch, computes the fusion MLP's analytic
// gradient for the BCE + L2 loss, clips it, and applies one SGD step. On
// any NaN/Inf mid-batch it aborts without installing the update and rolls
// the scorer back to its last checkpoint.
func (t *Trainer) runBatch(rng *rand.Rand, beta float64) error {
	indices, entries, isWeights := t.buffer.Sample(t.cfg.BatchSize, t.cfg.Alpha, beta, rng)
	if len(entries) == 0 {
		return nil
	}

	params := t.scorer.CurrentParameters()
	fusion := params.Fusion

	gradW1 := zeroMatrix(len(fusion.W1), len(fusion.W1[0]))
	gradB1 := make([]float64, len(fusion.B1))
	gradW2 := make([]float64, len(fusion.W2))
	var gradB2 float64
	var lossSum float64

	for i, e := range entries {
		fw := t.scorer.FusionForward(e.HeadScores, e.Features)
		target := 0.0
		if e.Outcome == "success" {
			target = 1.0
		}
		tdError := target - fw.Prediction
		t.buffer.UpdatePriority(indices[i], tdError)

		loss := bceLoss(fw.Prediction, target)
		lossSum += loss

		weight := isWeights[i]
		dOut := (fw.Prediction - target) * weight // d(BCE)/d(logit) = sigmoid(logit) - target

		for h := range gradW2 {
			if h < len(fw.Hidden) {
				gradW2[h] += dOut * fw.Hidden[h]
			}
		}
		gradB2 += dOut

		for h := range fw.Hidden {
			dHidden := dOut * fusion.W2[minInt(h, len(fusion.W2)-1)] * shgat.LeakyReLUDerivative(fw.HiddenPre[h])
			for j := range fusion.W1[h] {
				if j < len(fw.Input) {
					gradW1[h][j] += dHidden * fw.Input[j]
				}
			}
			gradB1[h] += dHidden
		}
	}

	t.lastExamples += len(entries)
	t.lastLossSum += lossSum
	t.lastUpdatedPriorities += len(entries)

	n := float64(len(entries))
	scaleAndL2(gradW1, fusion.W1, n, t.cfg.L2Lambda)
	for i := range gradB1 {
		gradB1[i] /= n
	}
	for i := range gradW2 {
		gradW2[i] = gradW2[i]/n + t.cfg.L2Lambda*fusion.W2[i]
	}
	gradB2 /= n

	if hasNaNMatrix(gradW1) || hasNaNVector(gradB1) || hasNaNVector(gradW2) || math.IsNaN(gradB2) {
		t.scorer.RollbackToCheckpoint()
		return nil
	}

	clipGradients(gradW1, gradB1, gradW2, &gradB2, t.cfg.GradClipNorm)

	next := applyUpdate(fusion, gradW1, gradB1, gradW2, gradB2, t.cfg.LearningRate)
	t.scorer.SwapParameters(params.WithFusion(next))

	trainerLoss.Observe(lossSum / n)
	return nil
}

func bceLoss(prediction, target float64) float64 {
	const eps = 1e-7
	p := math.Min(math.Max(prediction, eps), 1-eps)
	return -(target*math.Log(p) + (1-target)*math.Log(1-p))
}

func zeroMatrix(rows, cols int) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
	}
	return m
}

func scaleAndL2(grad, weights [][]float64, n float64, lambda float64) {
	for i := range grad {
		for j := range grad[i] {
			grad[i][j] = grad[i][j]/n + lambda*weights[i][j]
		}
	}
}

func hasNaNMatrix(m [][]float64) bool {
	for _, row := range m {
		if hasNaNVector(row) {
			return true
		}
	}
	return false
}

func hasNaNVector(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return true
		}
	}
	return false
}

// clipGradients scales the full gradient (flattened across all fusion
// parameters) down if its L2 norm exceeds maxNorm.
func clipGradients(gradW1 [][]float64, gradB1, gradW2 []float64, gradB2 *float64, maxNorm float64) {
	var sumSq float64
	for _, row := range gradW1 {
		for _, v := range row {
			sumSq += v * v
		}
	}
	for _, v := range gradB1 {
		sumSq += v * v
	}
	for _, v := range gradW2 {
		sumSq += v * v
	}
	sumSq += (*gradB2) * (*gradB2)

	norm := math.Sqrt(sumSq)
	if norm <= maxNorm || norm == 0 {
		return
	}
	scale := maxNorm / norm
	for _, row := range gradW1 {
		for j := range row {
			row[j] *= scale
		}
	}
	for i := range gradB1 {
		gradB1[i] *= scale
	}
	for i := range gradW2 {
		gradW2[i] *= scale
	}
	*gradB2 *= scale
}

func applyUpdate(fusion shgat.FusionParams, gradW1 [][]float64, gradB1, gradW2 []float64, gradB2, lr float64) shgat.FusionParams {
	next := shgat.FusionParams{
		W1: make([][]float64, len(fusion.W1)),
		B1: make([]float64, len(fusion.B1)),
		W2: make([]float64, len(fusion.W2)),
		B2: fusion.B2 - lr*gradB2,
	}
	for i := range fusion.W1 {
		row := make([]float64, len(fusion.W1[i]))
		for j := range row {
			row[j] = fusion.W1[i][j] - lr*gradW1[i][j]
		}
		next.W1[i] = row
	}
	for i := range fusion.B1 {
		next.B1[i] = fusion.B1[i] - lr*gradB1[i]
	}
	for i := range fusion.W2 {
		next.W2[i] = fusion.W2[i] - lr*gradW2[i]
	}
	return next
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
