package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/acailic/archi-comm-sub010/pkg/recovery"
	"github.com/acailic/archi-comm-sub010/pkg/recovery/apperror"
	"github.com/acailic/archi-comm-sub010/pkg/recovery/config"
	"github.com/acailic/archi-comm-sub010/pkg/recovery/document"
	"github.com/acailic/archi-comm-sub010/pkg/recovery/observability"
	"github.com/acailic/archi-comm-sub010/pkg/recovery/process"
	"github.com/acailic/archi-comm-sub010/pkg/recovery/signal"
	"github.com/acailic/archi-comm-sub010/pkg/recovery/store"
	"github.com/acailic/archi-comm-sub010/pkg/recovery/strategies"
)

// app is the composition root. Each command builds exactly one app, and
// with it the only orchestrator of the process.
type app struct {
	settings config.Settings
	logger   *slog.Logger

	store    store.Store
	docs     *document.Manager
	signals  *signal.Dispatcher
	errors   *apperror.Store
	metrics  *prometheus.Registry
	orch     *recovery.Orchestrator
}

// dryRunController logs restart requests instead of acting on them.
func dryRunController(logger *slog.Logger) process.Controller {
	return process.Funcs{
		ReloadFunc: func(context.Context) error {
			logger.Warn("reload requested (dry run)")
			return nil
		},
		RelaunchFunc: func(context.Context) error {
			logger.Warn("relaunch requested (dry run)")
			return nil
		},
	}
}

// newApp opens the configured store and wires the orchestrator with the
// standard strategies. Remount signals are reported to out. otel selects
// the OpenTelemetry providers; the globals are used otherwise.
func newApp(s config.Settings, logger *slog.Logger, ctrl process.Controller, out io.Writer, otel ...observability.Option) (*app, error) {
	kv, err := store.Open(s.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a := &app{
		settings: s,
		logger:   logger,
		store:    kv,
		docs: document.NewManager(kv,
			document.WithRetention(s.BackupRetention),
			document.WithLogger(logger),
		),
		signals:  signal.NewDispatcher(signal.NewRegistry(), signal.NewMemoryStore()).WithLogger(logger),
		errors:   apperror.NewStore(s.DedupCacheSize),
		metrics:  reg,
	}

	a.signals.Registry().MustRegister(signal.NameRemount, func(_ context.Context, target string, sig *signal.Signal) error {
		r, _ := sig.Remount()
		_, err := fmt.Fprintf(out, "remount %s on %s (error %s)\n", r.Component, target, r.ErrorID)
		return err
	})

	a.orch = recovery.New(
		recovery.WithLogger(logger),
		recovery.WithCooldown(s.Cooldown),
		recovery.WithMaxAttempts(s.MaxAttempts),
		recovery.WithHistorySize(s.HistorySize),
		recovery.WithPreferredOrder(s.PreferredOrder...),
		recovery.WithCriticality(s.CriticalityGate()),
		recovery.WithMetrics(observability.MultiRecorder{
			observability.NewMetricsRecorder(otel...),
			observability.NewPrometheusRecorder(reg),
		}),
		recovery.WithSpanManager(observability.NewSpanManager(otel...)),
	)

	for _, st := range strategies.Standard(strategies.Deps{
		Store:      kv,
		Documents:  a.docs,
		Signals:    a.signals,
		Controller: ctrl,
	},
		strategies.WithLogger(logger),
		strategies.WithSettleDelay(s.SettleDelay),
		strategies.WithFallbackDelay(s.FallbackDelay),
	) {
		a.orch.RegisterStrategy(st)
	}

	logger.Debug("recovery wired",
		slog.String("store", s.Store.Driver),
		slog.Any("strategies", a.orch.Strategies().Names()),
	)
	return a, nil
}

// Close drains pending notifications and closes the store.
func (a *app) Close() error {
	return errors.Join(a.orch.Close(), a.store.Close())
}
