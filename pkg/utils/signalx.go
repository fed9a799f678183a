package utils

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func WatchSignal(ctx context.Context) {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(signalCh)
	select {
	case <-signalCh:
	case <-ctx.Done():
	}
}

// ListenAndServe serves h until ctx is done or a termination signal arrives,
// then shuts the server down gracefully.
func ListenAndServe(ctx context.Context, h http.Handler, port int) error {
	logger := GetLogger()
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: h,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Infof("listening on :%d", port)

	sigCtx, cancel := context.WithCancel(ctx)
	go func() {
		WatchSignal(sigCtx)
		cancel()
	}()
	select {
	case err := <-errCh:
		cancel()
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-sigCtx.Done():
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown err: %s", err)
		return err
	}
	logger.Info("server shutdown")

	return nil
}
