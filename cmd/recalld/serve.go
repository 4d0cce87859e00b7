package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/config"
	"github.com/fyrsmithlabs/recalld/internal/consolidation"
	"github.com/fyrsmithlabs/recalld/internal/decay"
	"github.com/fyrsmithlabs/recalld/internal/distill"
	"github.com/fyrsmithlabs/recalld/internal/embeddings"
	"github.com/fyrsmithlabs/recalld/internal/engine"
	"github.com/fyrsmithlabs/recalld/internal/logging"
	"github.com/fyrsmithlabs/recalld/internal/redact"
	"github.com/fyrsmithlabs/recalld/internal/retrieval"
	"github.com/fyrsmithlabs/recalld/internal/scheduler"
	"github.com/fyrsmithlabs/recalld/internal/server"
	"github.com/fyrsmithlabs/recalld/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the recalld daemon",
	Long: `Start the HTTP API, the background expiry sweep and the scheduled
consolidation loops. Blocks until SIGINT or SIGTERM.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Sync()

	stack, err := buildStack(cfg, logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	sched, err := scheduler.New(stack.store, stack.consolidation, cfg.Scheduler, logger)
	if err != nil {
		return fmt.Errorf("initializing scheduler: %w", err)
	}
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	srv, err := server.New(stack.engine, cfg.Server, cfg.Retrieval.DefaultLimit, logger)
	if err != nil {
		return fmt.Errorf("initializing server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info(cmd.Context(), "received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}

// loadConfig honors --config when given and falls back to defaults plus
// environment overrides.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		cfg, err := config.LoadWithFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return cfg, nil
	}
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// stack holds the wired subsystems behind the HTTP surface.
type stack struct {
	db            *store.DB
	store         *store.Store
	embedder      embeddings.Provider
	engine        *engine.Engine
	consolidation *consolidation.Engine
}

func (s *stack) Close() {
	if s.embedder != nil {
		s.embedder.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
}

// buildStack wires config into the full engine: relational store, vector
// index, embeddings, distillation, retrieval and consolidation.
func buildStack(cfg *config.Config, logger *logging.Logger) (*stack, error) {
	db, err := store.OpenDB(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	vectors, err := store.NewVectorIndex(cfg.Store.VectorPath, cfg.Store.Collection, cfg.Store.Compress)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("opening vector index: %w", err)
	}

	st := store.New(db, vectors, logger)

	embedder, err := embeddings.NewProvider(cfg.Embeddings)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing embeddings: %w", err)
	}

	// A provider whose vectors don't fit the index corrupts every
	// similarity score; refuse to start rather than serve garbage.
	if dim := embedder.Dimension(); dim != cfg.Store.VectorSize {
		embedder.Close()
		db.Close()
		return nil, fmt.Errorf("embedding dimension %d does not match store.vector_size %d", dim, cfg.Store.VectorSize)
	}

	distiller, err := distill.New(cfg.Distill)
	if err != nil {
		embedder.Close()
		db.Close()
		return nil, fmt.Errorf("initializing distiller: %w", err)
	}

	redactor, err := redact.New(&cfg.Redaction)
	if err != nil {
		embedder.Close()
		db.Close()
		return nil, fmt.Errorf("initializing redactor: %w", err)
	}

	ret := retrieval.New(st, embedder, decay.New(cfg.Decay), cfg.Retrieval, logger)
	cons := consolidation.New(st, distiller, embedder, cfg.Consolidation, logger)
	eng := engine.New(st, redactor, embedder, ret, cons, cfg.Retrieval, logger)

	return &stack{
		db:            db,
		store:         st,
		embedder:      embedder,
		engine:        eng,
		consolidation: cons,
	}, nil
}
