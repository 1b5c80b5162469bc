package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acailic/archi-comm-sub010/pkg/recovery"
	"github.com/acailic/archi-comm-sub010/pkg/recovery/apperror"
	"github.com/acailic/archi-comm-sub010/pkg/recovery/config"
	"github.com/acailic/archi-comm-sub010/pkg/recovery/strategies"
)

const testConfig = `
recovery:
  cooldown: 0s
  max_attempts: 5
strategies:
  component_reset:
    settle_delay: 0s
  soft_reload:
    fallback_delay: 0s
store:
  driver: memory
log:
  level: error
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recovery.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o600))
	return path
}

// resetFlags restores every flag to its default, since the command tree
// is shared between tests.
func resetFlags() {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	rootCmd.PersistentFlags().VisitAll(reset)
	for _, c := range rootCmd.Commands() {
		c.Flags().VisitAll(reset)
	}
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	resetFlags()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { slog.SetDefault(slog.New(slog.DiscardHandler)) })
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestSimulate_AutoSavesDesign(t *testing.T) {
	out := run(t, "simulate", "--config", writeConfig(t),
		"--category", "runtime", "--severity", "critical", "--with-design", "--project", "demo")

	assert.Contains(t, out, "attempt auto-save success=true")
	assert.Contains(t, out, `"strategy": "auto-save"`)
	assert.Contains(t, out, "design")
}

func TestSimulate_Trace(t *testing.T) {
	out := run(t, "simulate", "--config", writeConfig(t), "--with-design", "--trace")

	assert.Contains(t, out, "span recovery.strategy.auto-save status=Ok")
	assert.Contains(t, out, "span recovery.handle status=Ok")
}

func TestSimulate_RemountsComponent(t *testing.T) {
	out := run(t, "simulate", "--config", writeConfig(t),
		"--category", "rendering", "--severity", "critical", "--component", "Canvas")

	assert.Contains(t, out, "remount Canvas on ui")
	assert.Contains(t, out, `"strategy": "component-reset"`)
}

func TestLoadSettings_MissingExplicitConfig(t *testing.T) {
	resetFlags()
	rootCmd.SetOut(io.Discard)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs([]string{"restore", "--config", filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, rootCmd.Execute())
}

func TestHandleErrorReport(t *testing.T) {
	settings := config.DefaultSettings()
	settings.Cooldown = 0
	settings.SettleDelay = 0
	settings.FallbackDelay = 0
	logger := slog.New(slog.DiscardHandler)

	a, err := newApp(settings, logger, dryRunController(logger), io.Discard)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/errors", strings.NewReader(body))
		rec := httptest.NewRecorder()
		a.handleErrorReport(rec, req)
		return rec
	}

	resp := post(`{"message":"canvas exploded","category":"rendering","severity":"critical","context":{"component":"Canvas"}}`)
	require.Equal(t, http.StatusOK, resp.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &got))
	assert.Equal(t, strategies.NameComponentReset, got["strategy"])
	assert.Equal(t, true, got["success"])

	// The same fault again is deduplicated onto the first record.
	post(`{"message":"canvas exploded","category":"rendering","severity":"critical"}`)
	assert.Equal(t, 1, a.errors.Len())

	assert.Equal(t, http.StatusBadRequest, post(`{"category":"runtime"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`not json`).Code)
}

func TestHandleErrorReport_OutlivesClientDisconnect(t *testing.T) {
	settings := config.DefaultSettings()
	settings.Cooldown = 0
	logger := slog.New(slog.DiscardHandler)

	a, err := newApp(settings, logger, dryRunController(logger), io.Discard)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	var seen error = context.Canceled
	a.orch.RegisterStrategy(&recovery.FuncStrategy{
		StrategyName:     "first",
		StrategyPriority: -1,
		Run: func(ctx context.Context, _ *apperror.Record, _ *recovery.RecoveryContext) (recovery.Result, error) {
			seen = ctx.Err()
			return recovery.Result{Success: true}, nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	body := `{"message":"canvas exploded","category":"rendering","severity":"critical"}`
	req := httptest.NewRequest(http.MethodPost, "/errors", strings.NewReader(body)).WithContext(ctx)
	resp := httptest.NewRecorder()
	a.handleErrorReport(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.NoError(t, seen)
}
