package config

import (
	"fmt"
	"os"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// applyKDL parses a .retrieval.kdl file and overlays its values onto cfg.
// Grounded on the teacher's internal/config/kdl_config.go node-walking
// style; generalized to this module's Config shape.
func applyKDL(cfg *Config, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	doc, err := kdl.Parse(strings.NewReader(string(content)))
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "project":
			for _, cn := range n.Children {
				assignSimpleString(cn, "root", func(v string) { cfg.Project.Root = v })
				assignSimpleString(cn, "name", func(v string) { cfg.Project.Name = v })
			}
		case "index":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "max_file_size":
					if v, ok := firstIntArg(cn); ok {
						cfg.Index.MaxFileSize = int64(v)
					}
				case "max_total_size_mb":
					if v, ok := firstIntArg(cn); ok {
						cfg.Index.MaxTotalSizeMB = int64(v)
					}
				case "max_file_count":
					if v, ok := firstIntArg(cn); ok {
						cfg.Index.MaxFileCount = v
					}
				case "follow_symlinks":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Index.FollowSymlinks = b
					}
				case "respect_gitignore":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Index.RespectGitignore = b
					}
				case "watch_mode":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Index.WatchMode = b
					}
				case "watch_debounce_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Index.WatchDebounceMs = v
					}
				}
			}
		case "performance":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "max_goroutines":
					if v, ok := firstIntArg(cn); ok {
						cfg.Performance.MaxGoroutines = v
					}
				case "io_pool_size":
					if v, ok := firstIntArg(cn); ok {
						cfg.Performance.IOPoolSize = v
					}
				case "cpu_pool_size":
					if v, ok := firstIntArg(cn); ok {
						cfg.Performance.CPUPoolSize = v
					}
				case "indexing_timeout_sec":
					if v, ok := firstIntArg(cn); ok {
						cfg.Performance.IndexingTimeoutSec = v
					}
				}
			}
		case "search":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "bm25_k1":
					if v, ok := firstFloatArg(cn); ok {
						cfg.Search.BM25K1 = v
					}
				case "bm25_b":
					if v, ok := firstFloatArg(cn); ok {
						cfg.Search.BM25B = v
					}
				case "min_symbol_term_length":
					if v, ok := firstIntArg(cn); ok {
						cfg.Search.MinSymbolTermLength = v
					}
				}
			}
		case "embedding":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "service_url":
					if s, ok := firstStringArg(cn); ok {
						cfg.Embedding.ServiceURL = s
					}
				case "default_model":
					if s, ok := firstStringArg(cn); ok {
						cfg.Embedding.DefaultModel = s
					}
				case "health_timeout_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Embedding.HealthTimeoutMs = v
					}
				case "max_concurrent":
					if v, ok := firstIntArg(cn); ok {
						cfg.Embedding.MaxConcurrent = v
					}
				case "gpu_only_models":
					cfg.Embedding.GPUOnlyModels = collectStringArgs(cn)
				}
			}
		case "vector_store":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "default_model":
					if s, ok := firstStringArg(cn); ok {
						cfg.VectorStore.DefaultModel = s
					}
				case "default_dimensions":
					if v, ok := firstIntArg(cn); ok {
						cfg.VectorStore.DefaultDimensions = v
					}
				case "model_switch_cooldown_hours":
					if v, ok := firstIntArg(cn); ok {
						cfg.VectorStore.ModelSwitchCooldownHours = v
					}
				}
			}
		case "include":
			cfg.Include = collectStringArgs(n)
		case "exclude":
			cfg.Exclude = collectStringArgs(n)
		}
	}
	return nil
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	if b, ok := n.Arguments[0].Value.(bool); ok {
		return b, true
	}
	return false, false
}

func firstFloatArg(n *document.Node) (float64, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 && len(n.Children) > 0 {
		out = make([]string, 0, len(n.Children))
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if child.Name != nil {
				if s, ok := child.Name.Value.(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	return out
}

func assignSimpleString(n *document.Node, target string, set func(string)) {
	if nodeName(n) == target {
		if s, ok := firstStringArg(n); ok {
			set(s)
		}
	}
}
