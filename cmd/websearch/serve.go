package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"websearch/internal/adapter/mcpserver"
	"websearch/internal/domain"
	"websearch/internal/infra/tracer"
)

func runServe(args []string) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}
	cfg, log, logCloser, err := setup(f)
	if err != nil {
		return err
	}
	defer logCloser()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(context.Background())

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	// Progress notifications go to the log; stdout carries MCP frames.
	unsubscribe := a.bus.Subscribe(domain.EventNotification, func(_ context.Context, e domain.Event) {
		log.Info("notification", "payload", string(e.Payload))
	})
	defer unsubscribe()

	srv := mcpserver.New(cfg.MCP, a.registry, log)
	if err := srv.Serve(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
