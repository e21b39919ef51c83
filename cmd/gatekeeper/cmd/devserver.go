package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/courseforge/gatekeeper/devserver"
	"github.com/courseforge/gatekeeper/internal/config"
	"github.com/courseforge/gatekeeper/storage"
	bboltstorage "github.com/courseforge/gatekeeper/storage/bbolt"
)

const sessionsBucket = "sessions"

// newDevserverHandler builds the dev server handler. With sessionsDB set,
// issued sessions are kept in that BBolt file and survive a restart.
func newDevserverHandler(cfg *config.Config, sessionsDB string) (http.Handler, func() error, error) {
	closeFn := func() error { return nil }
	opts := []devserver.Option{devserver.WithLogger(slog.Default())}
	if cfg.DevServer.SigningKey != "" {
		opts = append(opts, devserver.WithSigningKey([]byte(cfg.DevServer.SigningKey)))
	}
	if sessionsDB != "" {
		if err := os.MkdirAll(filepath.Dir(sessionsDB), 0o700); err != nil {
			return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		db, err := bboltstorage.NewFromFile(sessionsDB, sessionsBucket, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open session storage: %w", err)
		}
		closeFn = db.Close
		var backend storage.Backend = db
		if cfg.Storage.SealSecret != "" {
			sealed, err := storage.NewSealed(db, []byte(cfg.Storage.SealSecret), sessionsBucket)
			if err != nil {
				_ = db.Close()
				return nil, nil, err
			}
			backend = sealed
		}
		opts = append(opts, devserver.WithSessionStore(devserver.NewBackendSessionStore(backend, slog.Default())))
	}

	s, err := devserver.New(opts...)
	if err != nil {
		_ = closeFn()
		return nil, nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Mount("/", s.Router())
	return r, closeFn, nil
}

func newDevserverCmd(a *app) *cobra.Command {
	var sessionsDB string
	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run the development backend",
		Long: `Serve the login, profile, course and session revocation endpoints with a
set of seeded users (password "` + devserver.DefaultPassword + `"), one per role family.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			handler, closeFn, err := newDevserverHandler(a.cfg, sessionsDB)
			if err != nil {
				return err
			}
			defer closeFn()

			server := &http.Server{
				Addr:              a.cfg.DevServer.Addr,
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       15 * time.Second,
				WriteTimeout:      30 * time.Second,
				IdleTimeout:       60 * time.Second,
			}

			// Graceful shutdown on SIGINT/SIGTERM.
			done := make(chan error, 1)
			go func() {
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					done <- fmt.Errorf("server failed: %w", err)
					return
				}
				done <- nil
			}()

			out := cmd.OutOrStdout()
			printBanner(out)
			fmt.Fprintf(out, "Starting dev server on %s...\n", server.Addr)

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(quit)

			shutdown := func() error {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Shutdown(ctx); err != nil {
					return fmt.Errorf("server shutdown failed: %w", err)
				}
				return nil
			}

			select {
			case sig := <-quit:
				fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
				return shutdown()
			case <-cmd.Context().Done():
				return shutdown()
			case err := <-done:
				return err
			}
		},
	}
	cmd.Flags().String("addr", "", "Listen address (default :8080)")
	cmd.Flags().String("signing-key", "", "HS256 signing key; random when empty, so tokens do not survive a restart")
	cmd.Flags().StringVar(&sessionsDB, "sessions-db", "", "BBolt file for issued sessions (in memory when empty)")
	return cmd
}
