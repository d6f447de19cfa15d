package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/propbooks/invoice-cli/internal/config"
	"github.com/propbooks/invoice-cli/internal/extract"
	"github.com/propbooks/invoice-cli/internal/ledger"
	"github.com/propbooks/invoice-cli/internal/reconcile"
	"github.com/propbooks/invoice-cli/internal/resilience"
	"github.com/propbooks/invoice-cli/internal/run"
	"github.com/propbooks/invoice-cli/internal/store"
	"github.com/propbooks/invoice-cli/pkg/anthropic"
	"github.com/propbooks/invoice-cli/pkg/mailbox"
	"github.com/propbooks/invoice-cli/pkg/notify"
	"github.com/propbooks/invoice-cli/pkg/sheets"
)

// pipelineEnv bundles everything a processing run needs, plus the handles
// that must be closed afterwards.
type pipelineEnv struct {
	Coordinator *run.Coordinator
	store       store.Store
	mailbox     mailbox.Mailbox
	ledger      ledger.Ledger
}

func (e *pipelineEnv) Close() {
	if e.mailbox != nil {
		_ = e.mailbox.Close()
	}
	if e.ledger != nil {
		_ = e.ledger.Close()
	}
	if e.store != nil {
		_ = e.store.Close()
	}
}

// retryFromConfig maps the configured retry settings onto the resilience
// package's shape.
func retryFromConfig(c config.RetryConfig) resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    c.MaxAttempts,
		InitialBackoff: time.Duration(c.InitialBackoffMS) * time.Millisecond,
		MaxBackoff:     time.Duration(c.MaxBackoffSecs) * time.Second,
		Multiplier:     c.BackoffMultiplier,
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "invoice.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initLedger(retry resilience.RetryConfig) (ledger.Ledger, error) {
	switch cfg.Ledger.Backend {
	case "sheets":
		client := sheets.NewClient(cfg.Ledger.AccessToken)
		return ledger.NewSheetsLedger(client, cfg.Ledger, retry), nil
	case "xlsx":
		return ledger.NewXLSXLedger(cfg.Ledger), nil
	default:
		return nil, eris.Errorf("unsupported ledger backend: %s", cfg.Ledger.Backend)
	}
}

// initPipeline wires a full coordinator: store, mailbox, model client,
// reconciler, ledger, notifier.
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	retry := retryFromConfig(cfg.Retry)

	led, err := initLedger(retry)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	mb, err := mailbox.Dial(ctx, cfg.Mailbox)
	if err != nil {
		_ = led.Close()
		_ = st.Close()
		return nil, err
	}

	aiClient := anthropic.NewClient(cfg.Anthropic.Key)
	extractor := extract.New(aiClient, cfg.Anthropic, retry, cfg.Reconcile.Categories)
	reconciler := reconcile.New(cfg.Reconcile)
	notifier := notify.NewSMTPNotifier(cfg.Notify)

	return &pipelineEnv{
		Coordinator: run.New(mb, extractor, reconciler, led, st, notifier),
		store:       st,
		mailbox:     mb,
		ledger:      led,
	}, nil
}
