package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/pharma-chat/internal/devserver"
	"github.com/spf13/cobra"
)

func newDevServerCmd(opts *options) *cobra.Command {
	var host, port string

	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run a stub pharmacy backend for local development",
		Long: `Run an in-memory stub of the pharmacy backend.

It serves every path the client calls. Orders of the form
"order <qty> <medicine>" are confirmed against a small inventory.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("port") {
				port = opts.cfg.DevPort
			}
			return runDevServer(cmd.Context(), opts, net.JoinHostPort(host, port))
		},
	}
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Listen address")
	cmd.Flags().StringVar(&port, "port", "8000", "Listen port (overrides DEVSERVER_PORT)")
	return cmd
}

func runDevServer(ctx context.Context, opts *options, addr string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := opts.logger

	stub := devserver.New(devserver.DefaultInventory(), logger)
	srv := &http.Server{
		Addr:         addr,
		Handler:      stub.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(opts.out, "Stub backend listening on http://%s\n", srv.Addr)
		logger.Info("Stub backend listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("Stub backend failed", "error", err)
			return err
		}
		return nil
	case <-ctx.Done():
	}
	stop()

	logger.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Stub backend forced to shutdown", "error", err)
		return err
	}

	logger.Info("Stub backend stopped", "orders_recorded", len(stub.RecordedOrders()))
	return nil
}
