// Package process is the process-control boundary used by the reload and
// reset strategies.
package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
)

// ErrRelaunchUnsupported is returned by Relaunch when the host cannot
// restart the application as a new process.
var ErrRelaunchUnsupported = errors.New("relaunch not supported")

// Controller reloads the application.
type Controller interface {
	Reload(ctx context.Context) error
}

// Relauncher restarts the application as a new process. It is optional;
// strategies fall back to Reload when a Controller is not a Relauncher or
// its Relaunch fails.
type Relauncher interface {
	Relaunch(ctx context.Context) error
}

// Funcs adapts plain functions to Controller and Relauncher.
// A nil RelaunchFunc reports ErrRelaunchUnsupported.
type Funcs struct {
	ReloadFunc   func(ctx context.Context) error
	RelaunchFunc func(ctx context.Context) error
}

// Reload implements Controller.
func (f Funcs) Reload(ctx context.Context) error {
	if f.ReloadFunc == nil {
		return errors.New("reload not configured")
	}
	return f.ReloadFunc(ctx)
}

// Relaunch implements Relauncher.
func (f Funcs) Relaunch(ctx context.Context) error {
	if f.RelaunchFunc == nil {
		return ErrRelaunchUnsupported
	}
	return f.RelaunchFunc(ctx)
}

// RestartEnv is set in the environment of a process started by SelfExec.
// Its value is "reload" or "relaunch".
const RestartEnv = "ARCHICOMM_RESTART"

// SelfExec restarts the current binary. The new process is started first
// and the current one exits only once the start succeeded.
type SelfExec struct {
	// Path is the binary to run. Default: os.Executable().
	Path string

	// Args are the arguments passed to the new process. Default: os.Args[1:].
	Args []string

	// Start launches the command. Default: (*exec.Cmd).Start.
	Start func(cmd *exec.Cmd) error

	// Exit terminates the current process. Default: os.Exit.
	Exit func(code int)

	Logger *slog.Logger
}

// Reload implements Controller.
func (s *SelfExec) Reload(ctx context.Context) error {
	return s.restart(ctx, "reload")
}

// Relaunch implements Relauncher.
func (s *SelfExec) Relaunch(ctx context.Context) error {
	return s.restart(ctx, "relaunch")
}

func (s *SelfExec) restart(ctx context.Context, mode string) error {
	path := s.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("%s: resolve executable: %w", mode, err)
		}
		path = exe
	}
	args := s.Args
	if args == nil && len(os.Args) > 1 {
		args = os.Args[1:]
	}

	// Not CommandContext: the child must outlive ctx and this process.
	cmd := exec.Command(path, args...)
	cmd.Env = append(os.Environ(), RestartEnv+"="+mode)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := ctx.Err(); err != nil {
		return err
	}

	start := s.Start
	if start == nil {
		start = (*exec.Cmd).Start
	}
	if err := start(cmd); err != nil {
		return fmt.Errorf("%s: start %s: %w", mode, path, err)
	}

	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("process restarting", slog.String("mode", mode), slog.String("path", path))

	exit := s.Exit
	if exit == nil {
		exit = os.Exit
	}
	exit(0)
	return nil
}

// Restarted reports how the current process was started by SelfExec,
// or "" if it was not.
func Restarted() string {
	return os.Getenv(RestartEnv)
}
