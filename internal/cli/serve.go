package cli

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/acailic/archi-comm-sub010/pkg/recovery/apperror"
	"github.com/acailic/archi-comm-sub010/pkg/recovery/event"
	"github.com/acailic/archi-comm-sub010/pkg/recovery/process"
)

var serveOpts struct {
	addr   string
	dryRun bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve /metrics and accept faults over HTTP until interrupted",
	Long: `serve runs the startup restoration check, then exposes:

  GET  /metrics   Prometheus metrics
  GET  /healthz   liveness
  POST /errors    submit a fault record (JSON) and get the recovery result`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveOpts.addr, "addr", ":9090", "listen address")
	serveCmd.Flags().BoolVar(&serveOpts.dryRun, "dry-run", false, "log restarts instead of re-executing the binary")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	settings, logger, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	var ctrl process.Controller = &process.SelfExec{Logger: logger}
	if serveOpts.dryRun {
		ctrl = dryRunController(logger)
	}
	a, err := newApp(settings, logger, ctrl, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if err := restorePending(cmd, a); err != nil {
		logger.Error("startup restoration failed", slog.String("error", err.Error()))
	}

	a.orch.Subscribe(func(evt event.Event) {
		logger.Debug("recovery event", slog.String("event", evt.String()))
	})

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(a.metrics, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("POST /errors", a.handleErrorReport)

	srv := &http.Server{
		Addr:              serveOpts.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving", slog.String("addr", serveOpts.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type errorReport struct {
	Message  string         `json:"message"`
	Stack    string         `json:"stack,omitempty"`
	Category string         `json:"category"`
	Severity string         `json:"severity"`
	Context  map[string]any `json:"context,omitempty"`
}

// handleErrorReport dedups the reported fault and runs recovery on the
// canonical record.
func (a *app) handleErrorReport(w http.ResponseWriter, r *http.Request) {
	var in errorReport
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&in); err != nil {
		http.Error(w, "invalid error report: "+err.Error(), http.StatusBadRequest)
		return
	}
	if in.Message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	rec := a.errors.Report(apperror.New(in.Message,
		apperror.ParseCategory(in.Category),
		apperror.ParseSeverity(in.Severity),
		apperror.WithStack(in.Stack),
		apperror.WithContext(in.Context),
	))
	// A client disconnect must not cancel a strategy halfway through.
	res := a.orch.HandleError(context.WithoutCancel(r.Context()), rec)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resultView(res)); err != nil {
		a.logger.Warn("write recovery result", slog.String("error", err.Error()))
	}
}
