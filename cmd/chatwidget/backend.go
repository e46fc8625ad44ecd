package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/shsh-chat/internal/api"
	"github.com/ashureev/shsh-chat/internal/store"
	"github.com/spf13/cobra"
)

type backendOptions struct {
	port       string
	dbPath     string
	chunkDelay time.Duration
}

func newBackendCmd(a *app) *cobra.Command {
	opts := &backendOptions{}
	cmd := &cobra.Command{
		Use:   "backend",
		Short: "Serve the development chat backend",
		Long: `Serve /ws/chat and /health. Each request is echoed back as chunk frames
followed by a done frame. With --db, stored transcripts are served under
/api/transcripts.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runBackend(ctx, a, opts, nil)
		},
	}
	cmd.Flags().StringVarP(&opts.port, "port", "p", "", "Listen port (default backend_port)")
	cmd.Flags().StringVar(&opts.dbPath, "db", "", "Transcript database to serve")
	cmd.Flags().DurationVar(&opts.chunkDelay, "chunk-delay", 50*time.Millisecond, "Pause between streamed chunks")
	return cmd
}

// runBackend serves until ctx is done. If ready is non-nil it receives the
// bound address once the listener is open.
func runBackend(ctx context.Context, a *app, opts *backendOptions, ready chan<- string) error {
	port := opts.port
	if port == "" {
		port = a.cfg.Backend.Port
	}

	var repo store.Repository
	if opts.dbPath != "" {
		sqlite, err := store.NewSQLite(opts.dbPath)
		if err != nil {
			return fmt.Errorf("open transcript store: %w", err)
		}
		defer func() {
			if closeErr := sqlite.Close(); closeErr != nil {
				a.logger.Error("Failed to close repository", "error", closeErr)
			}
		}()
		repo = sqlite
		a.logger.Info("Serving transcripts", "path", opts.dbPath)
	}

	registry := api.NewConnRegistry()
	router := api.NewRouter(api.Server{
		Responder:      api.EchoResponder{Delay: opts.chunkDelay},
		Registry:       registry,
		Repo:           repo,
		AllowedOrigins: a.cfg.Backend.AllowedOrigins,
		Logger:         a.logger,
		RequestLogging: a.verbose,
	})

	srv := &http.Server{
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	ln, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return fmt.Errorf("listen on port %s: %w", port, err)
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Backend listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	if ready != nil {
		ready <- ln.Addr().String()
	}

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down gracefully...")
	registry.CloseAll("server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	a.logger.Info("Server stopped successfully")
	return nil
}
