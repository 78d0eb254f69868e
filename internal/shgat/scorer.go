// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package shgat

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/capgateway/internal/gatewayerr"
	"github.com/AleutianAI/capgateway/internal/graphstore"
	"github.com/AleutianAI/capgateway/internal/tracestore"
)

var (
	scoreLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "capgateway_shgat_score_duration_seconds",
		Help: "Latency of SHGAT candidate scoring.",
	})
	scoreFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capgateway_shgat_score_failures_total",
		Help: "SHGAT scoring failures by reason.",
	}, []string{"reason"})
	trainingRollbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capgateway_shgat_training_rollbacks_total",
		Help: "Times a training batch diverged (NaN) and parameters were rolled back.",
	})
)

// Scorer is Component E: it runs the message-passing forward pass and
// fusion MLP to produce a single ranking score for a candidate.
//
// # Thread Safety
//
// Score is safe for concurrent callers; it reads params through an atomic
// pointer so it never blocks on a concurrent training write. State
// transitions are guarded by a separate mutex.
type Scorer struct {
	archMu sync.RWMutex
	arch   ArchConfig

	params     atomic.Pointer[Parameters]
	checkpoint atomic.Pointer[Parameters]

	stateMu sync.Mutex
	state   State

	activeHeadsMu sync.RWMutex
	activeHeads   []bool

	minTracesForTraining int
	traceVolume          func() int

	graph    *graphstore.Store
	vectors  EmbeddingSource
	features *tracestore.FeatureBuilder

	logger *slog.Logger
}

// EmbeddingSource is the narrow slice of vectorstore.Cache the scorer
// needs: looking up a cached unit-norm embedding by id.
type EmbeddingSource interface {
	Get(id string) ([]float32, bool)
}

// Config bundles the scorer's construction-time dependencies.
type Config struct {
	Arch                 ArchConfig
	MinTracesForTraining int
	TraceVolume          func() int
	Graph                *graphstore.Store
	Vectors              EmbeddingSource
	Features             *tracestore.FeatureBuilder
	Logger               *slog.Logger
}

// New constructs a Scorer in the uninitialized state and immediately
// deterministically initializes a cold parameter blob for the given
// architecture.
func New(cfg Config) *Scorer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	minTraces := cfg.MinTracesForTraining
	if minTraces <= 0 {
		minTraces = 100
	}
	s := &Scorer{
		arch:                 cfg.Arch,
		minTracesForTraining: minTraces,
		traceVolume:          cfg.TraceVolume,
		graph:                cfg.Graph,
		vectors:              cfg.Vectors,
		features:             cfg.Features,
		logger:               logger,
		activeHeads:          allActive(cfg.Arch.NumHeads),
	}
	s.params.Store(NewColdParameters(cfg.Arch))
	s.checkpoint.Store(s.params.Load())
	s.state = StateCold
	return s
}

func allActive(k int) []bool {
	out := make([]bool, k)
	for i := range out {
		out[i] = true
	}
	return out
}

// State returns the scorer's current lifecycle state.
func (s *Scorer) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// SetState forces a state transition; callers (the trainer, the graph sync
// controller) are responsible for calling this at the right times.
func (s *Scorer) SetState(next State) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.state = next
}

// MarkStale transitions trained->stale after a graph mutation; this is a
// no-op from uninitialized/cold since there is nothing trained to
// invalidate.
func (s *Scorer) MarkStale() {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.state == StateTrained {
		s.state = StateStale
	}
}

// SetActiveHeadsMask configures which heads contribute to fusion, for
// ablation studies.
func (s *Scorer) SetActiveHeadsMask(mask []bool) {
	s.activeHeadsMu.Lock()
	defer s.activeHeadsMu.Unlock()
	s.activeHeads = mask
}

// ActiveHeadsMask returns a copy of the current head activation mask, for
// callers that key a cache or diagnostic output on it.
func (s *Scorer) ActiveHeadsMask() []bool {
	return s.activeHeadsSnapshot()
}

// CurrentParameters returns the live parameter blob, for the trainer to
// read a consistent snapshot to fine-tune from.
func (s *Scorer) CurrentParameters() *Parameters {
	return s.params.Load()
}

// SwapParameters installs next as the live parameter blob, first archiving
// the outgoing one as the rollback checkpoint. Called by the trainer after
// a successful batch.
func (s *Scorer) SwapParameters(next *Parameters) {
	s.checkpoint.Store(s.params.Load())
	s.params.Store(next)
}

// RollbackToCheckpoint restores the last-known-good parameters, used when
// a training batch produces NaN/Inf.
func (s *Scorer) RollbackToCheckpoint() {
	trainingRollbacks.Inc()
	s.params.Store(s.checkpoint.Load())
}

// ScoreResult is one candidate's fused score plus the raw per-head scores
// the trainer needs for TD-error computation.
type ScoreResult struct {
	Score      float64
	HeadScores []float64
	Features   tracestore.Features
}

// Score ranks one candidate against an intent: build TraceFeatures, run
// the message-passing layers, compute per-head cosine scores against the
// candidate's updated embedding, and fuse into a single scalar.
func (s *Scorer) Score(ctx context.Context, intentEmbedding []float32, candidateID string, kind CandidateKind, contextToolIDs []string) (ScoreResult, error) {
	timer := prometheus.NewTimer(scoreLatency)
	defer timer.ObserveDuration()

	s.archMu.RLock()
	arch := s.arch
	s.archMu.RUnlock()

	if len(intentEmbedding) != arch.EmbeddingDim {
		scoreFailures.WithLabelValues("dimension_mismatch").Inc()
		return ScoreResult{}, gatewayerr.New(gatewayerr.KindDimensionMismatch, "intent embedding dimension does not match configured embeddingDim")
	}

	feats := tracestore.DefaultFeatures()
	if s.features != nil {
		feats = s.features.FeaturesFor(ctx, intentEmbedding, candidateID, contextToolIDs)
	}

	volume := 0
	if s.traceVolume != nil {
		volume = s.traceVolume()
	}

	var headScores []float64
	var err error
	if volume < s.minTracesForTraining {
		headScores, err = s.coldForward(candidateID, kind)
	} else {
		headScores, err = s.trainedForward(candidateID, kind, intentEmbedding)
	}
	if err != nil {
		scoreFailures.WithLabelValues("forward_pass").Inc()
		return ScoreResult{}, err
	}

	fused := s.fuse(headScores, feats, volume < s.minTracesForTraining)
	if math.IsNaN(fused) || math.IsInf(fused, 0) {
		scoreFailures.WithLabelValues("nan_forward_pass").Inc()
		s.RollbackToCheckpoint()
		return ScoreResult{}, gatewayerr.New(gatewayerr.KindTrainingDiverged, "NaN encountered in forward pass")
	}

	return ScoreResult{Score: fused, HeadScores: headScores, Features: feats}, nil
}

// coldForward implements the cold-start path: below minTracesForTraining,
// the fusion MLP collapses to a weighted mean over head scores computed
// against the deterministically-initialized network.
func (s *Scorer) coldForward(candidateID string, kind CandidateKind) ([]float64, error) {
	return s.headCosineScores(candidateID, kind, s.params.Load(), nil)
}

func (s *Scorer) trainedForward(candidateID string, kind CandidateKind, intentEmbedding []float32) ([]float64, error) {
	return s.headCosineScores(candidateID, kind, s.params.Load(), intentEmbedding)
}

// headCosineScores runs L message-passing layers over the current graph
// snapshot and returns, per head, cos(intentEmbedding, headVertexEmbedding
// [candidate]). The raw intent embedding is projected into each head's
// space via that head's layer-0 Wq (the only
// layer whose input dimension is embeddingDim), then compared against the
// candidate's corresponding per-head segment of every layer's output
// embedding; the per-layer cosines are decayed by depthDecay and summed.
// A nil intentEmbedding (the cold-start path) skips the projection and
// falls back to the segment's own magnitude, matching "an untrained but
// deterministically-initialized network" rather than a real comparison.
func (s *Scorer) headCosineScores(candidateID string, kind CandidateKind, params *Parameters, intentEmbedding []float32) ([]float64, error) {
	snap := s.graph.Current()

	vertices := make(map[string][]float64)
	hyperedgeMembers := make(map[string][]string)
	hyperedgeSelf := make(map[string][]float64)

	for _, t := range snap.AllTools() {
		vertices[t.ID] = f32to64(t.Embedding)
	}
	for _, c := range snap.AllCapabilities() {
		hyperedgeMembers[c.FQDN] = c.Members
		hyperedgeSelf[c.FQDN] = f32to64(c.Embedding)
	}

	if kind == CandidateTool {
		if _, ok := vertices[candidateID]; !ok {
			return nil, gatewayerr.New(gatewayerr.KindUnknownID, "candidate tool not found in graph")
		}
	} else {
		if _, ok := hyperedgeSelf[candidateID]; !ok {
			return nil, gatewayerr.New(gatewayerr.KindUnknownID, "candidate capability not found in graph")
		}
	}

	var headIntentProj [][]float64
	if intentEmbedding != nil && len(params.Layers) > 0 {
		intent64 := f32to64(intentEmbedding)
		headIntentProj = make([][]float64, params.Arch.NumHeads)
		for h, head := range params.Layers[0].Heads {
			headIntentProj[h] = matVec(head.Wq, intent64)
		}
	}

	var rngState uint64 = 1
	fused := make([]float64, params.Arch.NumHeads)
	decay := 1.0
	for _, lp := range params.Layers {
		newV, newE := layerForward(lp, params.Arch, vertices, hyperedgeMembers, hyperedgeSelf, 0, &rngState)

		var candidateEmb []float64
		if kind == CandidateTool {
			candidateEmb = newV[candidateID]
		} else {
			candidateEmb = newE[candidateID]
		}
		perHead := params.Arch.PerHeadDim()
		active := s.activeHeadsSnapshot()
		for h := 0; h < params.Arch.NumHeads && h*perHead < len(candidateEmb); h++ {
			if h < len(active) && !active[h] {
				continue
			}
			segment := candidateEmb[h*perHead : min(len(candidateEmb), (h+1)*perHead)]
			if headIntentProj != nil {
				fused[h] += decay * cosineF64(headIntentProj[h], segment)
			} else {
				fused[h] += decay * magnitudeScore(segment)
			}
		}
		decay *= depthDecay

		vertices, hyperedgeMembers, hyperedgeSelf = newV, hyperedgeMembers, newE
	}
	return fused, nil
}

func (s *Scorer) activeHeadsSnapshot() []bool {
	s.activeHeadsMu.RLock()
	defer s.activeHeadsMu.RUnlock()
	out := make([]bool, len(s.activeHeads))
	copy(out, s.activeHeads)
	return out
}

// fuse applies the fusion MLP (or, when cold, a plain weighted mean) to
// the head scores and the 17 TraceStats scalars.
func (s *Scorer) fuse(headScores []float64, feats tracestore.Features, cold bool) float64 {
	if cold {
		return sigmoid(weightedMean(headScores))
	}
	params := s.params.Load().Fusion
	traceSlice := feats.Slice()
	input := make([]float64, 0, len(headScores)+len(traceSlice))
	input = append(input, headScores...)
	input = append(input, traceSlice[:]...)

	hidden := make([]float64, len(params.B1))
	for i := range hidden {
		var sum float64
		row := params.W1[i]
		n := len(row)
		if len(input) < n {
			n = len(input)
		}
		for j := 0; j < n; j++ {
			sum += row[j] * input[j]
		}
		hidden[i] = leakyReLU(sum + params.B1[i])
	}
	var out float64
	for i, w := range params.W2 {
		if i < len(hidden) {
			out += w * hidden[i]
		}
	}
	return sigmoid(out + params.B2)
}

func weightedMean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// magnitudeScore substitutes for an intent comparison when no intent
// embedding is available (the cold-start path), using a bounded squash of
// the segment's own L2 norm so the deterministic cold network still
// produces a well-formed [-1,1]-ish signal per head.
func magnitudeScore(segment []float64) float64 {
	var sumSq float64
	for _, v := range segment {
		sumSq += v * v
	}
	return math.Tanh(math.Sqrt(sumSq))
}

func cosineF64(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, normA, normB float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func f32to64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
