package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/k3a/html2text"
	"github.com/oklog/ulid/v2"

	"websearch/internal/domain"
	"websearch/internal/infra/tracer"
	"websearch/internal/plugin"
	"websearch/internal/usecase/websearch"
)

func runAsk(args []string) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}
	query := strings.TrimSpace(strings.Join(f.Args, " "))
	if query == "" {
		return fmt.Errorf("usage: websearch ask [--plain] [--max N] [--lang CODE] QUERY")
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

	if err := applyOverrides(a.websearch, f); err != nil {
		return err
	}

	unsubscribe := a.bus.Subscribe(domain.EventNotification, printNotification(os.Stderr))
	defer unsubscribe()

	t, err := a.registry.Get("web_search")
	if err != nil {
		return err
	}
	params, _ := json.Marshal(map[string]string{"query": query})
	res, err := t.Execute(domain.ContextWithSessionID(ctx, ulid.Make().String()), params)
	if err != nil {
		return err
	}
	if res.IsError {
		return fmt.Errorf("%s", res.Content)
	}

	out := res.Content
	if f.Plain {
		out = html2text.HTML2Text(out)
	}
	fmt.Println(out)
	return nil
}

// applyOverrides layers --max and --lang over the configured settings. The
// result is validated like any other settings update.
func applyOverrides(p *plugin.WebSearchPlugin, f cliFlags) error {
	s, changed := overrideSettings(p.Service().Settings(), f)
	if !changed {
		return nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return p.UpdateSettings(raw)
}

func overrideSettings(s websearch.Settings, f cliFlags) (websearch.Settings, bool) {
	if f.MaxSet {
		s.MaxResults = f.Max
	}
	if f.Lang != "" {
		s.Language = f.Lang
	}
	return s, f.MaxSet || f.Lang != ""
}

// printNotification writes user-facing progress lines to w.
func printNotification(w io.Writer) domain.EventHandler {
	return func(_ context.Context, e domain.Event) {
		var p domain.NotificationPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil || p.Message == "" {
			return
		}
		fmt.Fprintf(w, "> %s\n", p.Message)
	}
}
