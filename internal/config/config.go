// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and hot-reloads the engine's tunables.
//
// Architecture-defining keys (embeddingDim, numHeads, hiddenDim, headDim,
// numLayers, mlpHiddenDim) are read once at startup; changing them requires
// a restart. The remaining keys may be changed live via an override file
// watched with fsnotify.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

//go:embed config.default.yaml
var defaultConfigYAML []byte

// Config holds every tunable named in the ranking engine's external
// interfaces. Field names match the YAML keys.
type Config struct {
	EmbeddingDim  int  `yaml:"embeddingDim"`
	NumHeads      int  `yaml:"numHeads"`
	AdaptiveHeads bool `yaml:"adaptiveHeads"`
	HiddenDim     int  `yaml:"hiddenDim"`
	HeadDim       int  `yaml:"headDim"`
	NumLayers     int  `yaml:"numLayers"`
	MLPHiddenDim  int  `yaml:"mlpHiddenDim"`

	LearningRate float64 `yaml:"learningRate"`
	BatchSize    int     `yaml:"batchSize"`
	Epochs       int     `yaml:"epochs"`
	L2Lambda     float64 `yaml:"l2Lambda"`
	Dropout      float64 `yaml:"dropout"`

	MaxBufferSize        int `yaml:"maxBufferSize"`
	MinTracesForTraining int `yaml:"minTracesForTraining"`

	PagerankDamping       float64 `yaml:"pagerankDamping"`
	PagerankTolerance     float64 `yaml:"pagerankTolerance"`
	PagerankMaxIterations int     `yaml:"pagerankMaxIterations"`

	HeatDiffusionSteps       int     `yaml:"heatDiffusionSteps"`
	HeatDiffusionCoefficient float64 `yaml:"heatDiffusionCoefficient"`

	AdaptiveAlphaFloor float64 `yaml:"adaptiveAlphaFloor"`
	ReliabilityPenalty float64 `yaml:"reliabilityPenalty"`
	ReliabilityBoost   float64 `yaml:"reliabilityBoost"`

	TraceRetentionDays int `yaml:"traceRetentionDays"`
}

// architectureKeys is the set of YAML keys that cannot change without a
// fresh SHGAT parameter blob; the hot-reload path rejects edits to them.
var architectureKeys = map[string]struct{}{
	"embeddingDim": {}, "numHeads": {}, "hiddenDim": {},
	"headDim": {}, "numLayers": {}, "mlpHiddenDim": {},
}

// Default returns the embedded default configuration.
func Default() (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(defaultConfigYAML, &c); err != nil {
		return nil, fmt.Errorf("parsing embedded config.default.yaml: %w", err)
	}
	return &c, nil
}

// Manager serves the current Config and, when constructed with
// WatchOverride, hot-reloads non-architectural keys from a file on disk.
//
// Thread Safety: Get is safe for concurrent use. Only one goroutine
// (the fsnotify consumer started by WatchOverride) ever mutates cur.
type Manager struct {
	mu     sync.RWMutex
	cur    *Config
	logger *slog.Logger
}

// NewManager creates a Manager seeded with the embedded defaults.
func NewManager(logger *slog.Logger) (*Manager, error) {
	base, err := Default()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{cur: base, logger: logger}, nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.cur
}

// ApplyOverrideFile loads path, merges only non-architectural keys into
// the current configuration, and returns which keys were rejected because
// they name an architecture-defining field.
func (m *Manager) ApplyOverrideFile(path string) (rejected []string, err error) {
	raw, err := readFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading override %s: %w", path, err)
	}

	var partial map[string]yaml.Node
	if err := yaml.Unmarshal(raw, &partial); err != nil {
		return nil, fmt.Errorf("parsing override %s: %w", path, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	merged := *m.cur
	mergedYAML, _ := yaml.Marshal(merged)
	var mergedMap map[string]yaml.Node
	_ = yaml.Unmarshal(mergedYAML, &mergedMap)

	for k, v := range partial {
		if _, isArch := architectureKeys[k]; isArch {
			rejected = append(rejected, k)
			continue
		}
		mergedMap[k] = v
	}

	out, err := yaml.Marshal(mergedMap)
	if err != nil {
		return rejected, fmt.Errorf("re-marshaling merged config: %w", err)
	}
	var next Config
	if err := yaml.Unmarshal(out, &next); err != nil {
		return rejected, fmt.Errorf("unmarshaling merged config: %w", err)
	}
	m.cur = &next

	if len(rejected) > 0 {
		m.logger.Warn("config override rejected architecture-defining keys",
			slog.Any("keys", rejected))
	}
	return rejected, nil
}

// WatchOverride watches path for changes and applies them live via
// ApplyOverrideFile: one watcher goroutine, logged-and-ignored errors so a
// transient filesystem event never crashes the process.
func (m *Manager) WatchOverride(path string) (stop func() error, err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watching %s: %w", path, err)
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if _, err := m.ApplyOverrideFile(path); err != nil {
					m.logger.Warn("config hot-reload failed", slog.String("error", err.Error()))
				} else {
					m.logger.Info("config hot-reloaded", slog.String("path", path))
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				m.logger.Warn("config watcher error", slog.String("error", err.Error()))
			case <-done:
				return
			}
		}
	}()

	return func() error {
		close(done)
		return watcher.Close()
	}, nil
}
