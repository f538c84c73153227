// Package config defines the retrieval core's Config struct and loads it
// from a KDL file with environment-variable overrides, following the
// teacher's .lci.kdl convention (here: .retrieval.kdl).
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Env variable names spec.md §6 requires.
const (
	EnvForceScope      = "RETRIEVAL_FORCE_SCOPE" // "project" | "global"
	EnvEmbeddingURL    = "RETRIEVAL_EMBEDDING_URL"
	EnvDataDirOverride = "RETRIEVAL_DATA_DIR"
)

// Config is the single configuration object for the retrieval core.
type Config struct {
	Project     Project
	Index       Index
	Performance Performance
	Search      Search
	Embedding   Embedding
	VectorStore VectorStoreConfig
	Include     []string
	Exclude     []string
}

type Project struct {
	Root string
	Name string
}

type Index struct {
	MaxFileSize      int64
	MaxTotalSizeMB   int64
	MaxFileCount     int
	FollowSymlinks   bool
	RespectGitignore bool
	WatchMode        bool
	WatchDebounceMs  int
}

type Performance struct {
	MaxGoroutines       int
	ParallelFileWorkers int
	IndexingTimeoutSec  int
	IOPoolSize          int // spec.md §5: I/O pool for reads + HTTP
	CPUPoolSize         int // spec.md §5: CPU pool for parsing + BM25
}

// Search holds the BM25 parameters and boosts of spec.md §4.4.
type Search struct {
	BM25K1              float64
	BM25B               float64
	BoostBasename       float64
	BoostExported       float64
	BoostDefined        float64
	BoostAnySymbol      float64
	ThinImportPenalty   float64
	MinSymbolTermLength int
}

// Embedding holds the EmbeddingClient configuration of spec.md §4.5.
type Embedding struct {
	ServiceURL      string
	DefaultModel    string
	HealthTimeoutMs int
	MaxConcurrent   int // spec.md §5: default 8, FIFO-fair
	GPUOnlyModels   []string
}

// VectorStoreConfig holds the VectorStore configuration of spec.md §4.6.
type VectorStoreConfig struct {
	DefaultModel             string
	DefaultDimensions        int
	ModelSwitchCooldownHours int
}

// Default returns the baseline configuration, mirroring the teacher's
// parseKDL defaults before any file or env override is applied.
func Default() *Config {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return &Config{
		Project: Project{Root: cwd},
		Index: Index{
			MaxFileSize:      10 * 1024 * 1024,
			MaxTotalSizeMB:   500,
			MaxFileCount:     100000,
			FollowSymlinks:   false,
			RespectGitignore: true,
			WatchMode:        true,
			WatchDebounceMs:  300,
		},
		Performance: Performance{
			MaxGoroutines:       runtime.NumCPU(),
			ParallelFileWorkers: 0,
			IndexingTimeoutSec:  120,
			IOPoolSize:          max(4, runtime.NumCPU()),
			CPUPoolSize:         max(2, runtime.NumCPU()),
		},
		Search: Search{
			BM25K1:              1.2,
			BM25B:               0.75,
			BoostBasename:       2.0,
			BoostExported:       3.0,
			BoostDefined:        1.5,
			BoostAnySymbol:      0.5,
			ThinImportPenalty:   0.3,
			MinSymbolTermLength: 3,
		},
		Embedding: Embedding{
			ServiceURL:      "http://localhost:8070",
			DefaultModel:    "qwen3",
			HealthTimeoutMs: 2000,
			MaxConcurrent:   8,
		},
		VectorStore: VectorStoreConfig{
			DefaultModel:             "qwen3",
			DefaultDimensions:        2560,
			ModelSwitchCooldownHours: 24,
		},
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Load builds a Config for projectRoot: defaults, then .retrieval.kdl if
// present, then environment overrides. Mirrors the teacher's three-step
// Load/LoadWithRoot/LoadKDL layering.
func Load(projectRoot string) (*Config, error) {
	cfg := Default()
	cfg.Project.Root = projectRoot

	kdlPath := filepath.Join(projectRoot, ".retrieval.kdl")
	if _, err := os.Stat(kdlPath); err == nil {
		if err := applyKDL(cfg, kdlPath); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvEmbeddingURL); v != "" {
		cfg.Embedding.ServiceURL = v
	}
	if v := os.Getenv(EnvDataDirOverride); v != "" {
		cfg.Project.Root = v
	}
}
