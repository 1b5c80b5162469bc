package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/acailic/archi-comm-sub010/pkg/recovery"
	"github.com/acailic/archi-comm-sub010/pkg/recovery/apperror"
	"github.com/acailic/archi-comm-sub010/pkg/recovery/document"
	"github.com/acailic/archi-comm-sub010/pkg/recovery/event"
	"github.com/acailic/archi-comm-sub010/pkg/recovery/observability"
)

var simulateOpts struct {
	message    string
	category   string
	severity   string
	component  string
	project    string
	force      bool
	withDesign bool
	repeat     int
	trace      bool
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Submit a synthetic fault and print the recovery outcome",
	Example: `  recoveryctl simulate --category rendering --severity critical --component Canvas
  recoveryctl simulate --category runtime --project demo --with-design`,
	RunE: runSimulate,
}

func init() {
	f := simulateCmd.Flags()
	f.StringVar(&simulateOpts.message, "message", "simulated fault", "fault message")
	f.StringVar(&simulateOpts.category, "category", string(apperror.CategoryRuntime), "fault category")
	f.StringVar(&simulateOpts.severity, "severity", string(apperror.SeverityCritical), "fault severity")
	f.StringVar(&simulateOpts.component, "component", "", "failed UI component")
	f.StringVar(&simulateOpts.project, "project", "", "current project id")
	f.BoolVar(&simulateOpts.force, "force", false, "request a destructive reset")
	f.BoolVar(&simulateOpts.withDesign, "with-design", false, "put a sample design in the recovery context")
	f.IntVar(&simulateOpts.repeat, "repeat", 1, "submit the fault this many times")
	f.BoolVar(&simulateOpts.trace, "trace", false, "print the recorded trace spans")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	settings, logger, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	defer tp.Shutdown(context.WithoutCancel(cmd.Context())) //nolint:errcheck // nothing is exported

	a, err := newApp(settings, logger, dryRunController(logger), out, observability.WithTracerProvider(tp))
	if err != nil {
		return err
	}

	var (
		mu     sync.Mutex
		events []event.Event
	)
	a.orch.Subscribe(func(evt event.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, evt)
	})
	a.orch.SetContextProvider(simulatedContext(simulateOpts.project, simulateOpts.withDesign))

	ctx := cmd.Context()
	var results []recovery.Result
	for range max(simulateOpts.repeat, 1) {
		rec := a.errors.Report(simulatedRecord())
		results = append(results, a.orch.HandleError(ctx, rec))
	}
	history := a.orch.History()

	// Close drains the notification channel before events are printed.
	if err := a.Close(); err != nil {
		return err
	}

	for _, evt := range events {
		fmt.Fprintln(out, evt.String())
	}
	for _, att := range history {
		fmt.Fprintf(out, "attempt %s success=%t next=%s (%s): %s\n",
			att.Strategy, att.Success, att.NextAction, att.Duration, att.Message)
	}
	if simulateOpts.trace {
		for _, sp := range spans.Ended() {
			fmt.Fprintf(out, "span %s status=%s (%s)\n",
				sp.Name(), sp.Status().Code, sp.EndTime().Sub(sp.StartTime()))
		}
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	for _, res := range results {
		if err := enc.Encode(resultView(res)); err != nil {
			return err
		}
	}
	return nil
}

func simulatedRecord() *apperror.Record {
	opts := []apperror.Option{}
	values := map[string]any{apperror.ContextSource: "recoveryctl"}
	if simulateOpts.component != "" {
		values[apperror.ContextComponent] = simulateOpts.component
	}
	opts = append(opts, apperror.WithContext(values))
	if simulateOpts.force {
		opts = append(opts, apperror.WithForce())
	}
	return apperror.New(
		simulateOpts.message,
		apperror.ParseCategory(simulateOpts.category),
		apperror.ParseSeverity(simulateOpts.severity),
		opts...,
	)
}

func simulatedContext(projectID string, withDesign bool) recovery.ContextProvider {
	return func(context.Context) (*recovery.RecoveryContext, error) {
		rc := recovery.MinimalContext()
		rc.ProjectID = projectID
		if withDesign {
			if projectID == "" {
				projectID = "demo"
				rc.ProjectID = projectID
			}
			rc.Design = &document.Design{
				ProjectID: projectID,
				Name:      "simulated",
				Elements: []document.Element{
					{ID: "gateway", Type: "api-gateway"},
					{ID: "orders", Type: "service"},
				},
				Connections: []document.Connection{
					{ID: "c1", SourceID: "gateway", TargetID: "orders", Type: "http"},
				},
			}
			rc.Preferences = map[string]any{"theme": "dark", "grid": true}
		}
		return rc, nil
	}
}

// resultView adds the error text, which Result does not serialize.
func resultView(res recovery.Result) any {
	type view struct {
		recovery.Result
		Error string `json:"error,omitempty"`
	}
	v := view{Result: res}
	if res.Err != nil {
		v.Error = res.Err.Error()
	}
	return v
}
