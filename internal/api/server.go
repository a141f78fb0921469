package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/exp/slog"

	"github.com/mesh-intelligence/carsync/internal/logger"
)

const shutdownTimeout = 10 * time.Second

// ListenAndServe serves handler on addr until ctx is done, then shuts the
// server down gracefully.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, log *slog.Logger) error {
	log = logger.OrDiscard(log)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http api listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	log.Info("http api shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
