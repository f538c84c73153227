// Command retrieval-core starts the developer-assistant retrieval core
// as an MCP server over stdio: a content-addressed, AST-aware code
// index plus hybrid BM25/symbol/vector search, exposed through
// internal/mcpsurface's resources and tools.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/codeforge/retrieval-core/internal/config"
	"github.com/codeforge/retrieval-core/internal/content"
	"github.com/codeforge/retrieval-core/internal/embedding"
	"github.com/codeforge/retrieval-core/internal/mcpsurface"
	"github.com/codeforge/retrieval-core/internal/metadatastore"
	"github.com/codeforge/retrieval-core/internal/parser"
	"github.com/codeforge/retrieval-core/internal/retriever"
	"github.com/codeforge/retrieval-core/internal/storagelayout"
	"github.com/codeforge/retrieval-core/internal/symbolindex"
	"github.com/codeforge/retrieval-core/internal/vectorstore"
)

func main() {
	app := &cli.App{
		Name:  "retrieval-core",
		Usage: "developer-assistant retrieval core: MCP server over stdio",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "project root to index (defaults to the current directory)",
				Value:   ".",
			},
			&cli.BoolFlag{
				Name:  "dev-log",
				Usage: "use zap's development (console, debug-level) encoder instead of production JSON",
			},
		},
		Action: serveAction,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "retrieval-core: %v\n", err)
		os.Exit(1)
	}
}

func serveAction(c *cli.Context) error {
	logger, err := newLogger(c.Bool("dev-log"))
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	root := c.String("root")
	cfg, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	deps, closeDeps, err := buildDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build dependencies: %w", err)
	}
	defer closeDeps()

	surface := mcpsurface.New(*deps)
	server := mcpsurface.NewMCPServer(surface)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting MCP server", zap.String("transport", "stdio"), zap.String("root", cfg.Project.Root))
		errCh <- server.Run(ctx, &mcp.StdioTransport{})
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("MCP server error: %w", err)
		}
		return nil
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
		select {
		case err := <-errCh:
			return err
		case <-time.After(5 * time.Second):
			logger.Warn("graceful shutdown timed out")
			return nil
		}
	}
}

// newLogger builds the process-wide structured logger, per SPEC_FULL.md
// §2's ambient logging rule: every long-lived component takes a
// *zap.Logger as a constructor argument, no package-level global.
// Grounded on fyrsmithlabs-contextd/cmd/contextd/main.go's
// initLogger(cfg) dev/production switch.
func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// buildDependencies constructs the leaves-first graph of spec.md §4:
// StorageLayout -> ContentStore/Parser/SymbolIndex/MetadataStore (which
// need only a resolved storage scope) -> EmbeddingClient/VectorStore
// (which need the embedding config) -> HybridRetriever (which fans out
// to the two). Grounded on the teacher's cmd/lci/main.go construction
// order (indexer, then MCP server, wired bottom-up) generalised from
// lci's single MasterIndex to this module's split subsystems.
func buildDependencies(cfg *config.Config, logger *zap.Logger) (*mcpsurface.Dependencies, func(), error) {
	layout := storagelayout.New(cfg.Project.Root)
	scope := layout.ResolveScope()
	logger.Info("resolved storage scope", zap.Int("scope", int(scope)))

	relationalDir := layout.RelationalPath(scope, "metadata")
	if err := storagelayout.EnsureDir(relationalDir); err != nil {
		return nil, nil, err
	}
	metadata, err := metadatastore.Open(relationalDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open metadata store: %w", err)
	}

	contentStore := content.New(logger, cfg.Index.MaxTotalSizeMB*1024*1024)
	parserInstance := parser.New()
	symbols := symbolindex.New()

	embedModel := embedding.ModelInfo{
		ID:             cfg.VectorStore.DefaultModel,
		Dimensionality: cfg.VectorStore.DefaultDimensions,
	}
	for _, gpuModel := range cfg.Embedding.GPUOnlyModels {
		if gpuModel == embedModel.ID {
			embedModel.GPUOnly = true
		}
	}
	embedClient := embedding.New(cfg.Embedding.ServiceURL, "", cfg.Embedding.MaxConcurrent)

	vectorDir := layout.VectorStorePath(scope, "default")
	if err := storagelayout.EnsureDir(vectorDir); err != nil {
		metadata.Close()
		return nil, nil, err
	}
	vectors, err := vectorstore.Open(vectorDir, "default", vectorstore.Fingerprint{
		ModelID:        embedModel.ID,
		Dimensionality: embedModel.Dimensionality,
	})
	if err != nil {
		metadata.Close()
		return nil, nil, fmt.Errorf("failed to open vector store: %w", err)
	}

	embedSearcher := retriever.NewEmbedSearcher(embedClient, embedModel, vectors)
	retr := retriever.New(symbols, embedSearcher, embedClient, cfg.Embedding.DefaultModel)

	deps := &mcpsurface.Dependencies{
		Layout:     layout,
		Content:    contentStore,
		Parser:     parserInstance,
		Symbols:    symbols,
		Metadata:   metadata,
		Vectors:    vectors,
		Embed:      embedClient,
		EmbedModel: embedModel,
		Retriever:  retr,
	}

	closeFn := func() {
		if err := metadata.Close(); err != nil {
			logger.Warn("error closing metadata store", zap.Error(err))
		}
	}
	return deps, closeFn, nil
}
