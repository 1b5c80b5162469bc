package cli

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/acailic/archi-comm-sub010/pkg/recovery/document"
	"github.com/acailic/archi-comm-sub010/pkg/recovery/process"
	"github.com/acailic/archi-comm-sub010/pkg/recovery/strategies"
)

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Run the startup restoration check",
	Long: `restore consumes the state a soft reload stashed before restarting. The
restoration flag is taken atomically, so the stashed design is rehydrated at
most once.`,
	RunE: runRestore,
}

var backupsCmd = &cobra.Command{
	Use:   "backups <project-id>",
	Short: "List design backups of a project, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackups,
}

func init() {
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(backupsCmd)
}

func runRestore(cmd *cobra.Command, _ []string) error {
	settings, logger, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(settings, logger, dryRunController(logger), cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	return restorePending(cmd, a)
}

// restorePending is shared by restore and serve.
func restorePending(cmd *cobra.Command, a *app) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if mode := process.Restarted(); mode != "" {
		a.logger.Info("started by recovery", slog.String("mode", mode))
	}

	pending, err := strategies.CheckPendingRestoration(ctx, a.store)
	if err != nil {
		return err
	}
	if !pending.HasData {
		fmt.Fprintln(out, "no pending restoration")
		return nil
	}

	d := pending.Data
	if err := strategies.ConsumeRestoration(ctx, a.store, a.docs, pending); err != nil {
		return fmt.Errorf("restore state of error %s: %w", d.ErrorID, err)
	}
	fmt.Fprintf(out, "restored state of error %s (session %s, saved %s)\n",
		d.ErrorID, d.SessionID, d.SavedAt.Format("2006-01-02 15:04:05"))
	if d.Design != nil {
		fmt.Fprintf(out, "design %q of project %s: %d elements, %d connections\n",
			d.Design.Name, d.ProjectID, len(d.Design.Elements), len(d.Design.Connections))
	}
	return nil
}

func runBackups(cmd *cobra.Command, args []string) error {
	settings, logger, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(settings, logger, dryRunController(logger), cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx := cmd.Context()
	projectID := args[0]
	backups, err := a.docs.ListBackups(ctx, projectID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "BACKUP\tCREATED\tVALID")
	for _, b := range backups {
		valid := "yes"
		if d, err := a.docs.LoadBackup(ctx, projectID, b.ID); err != nil {
			valid = err.Error()
		} else if err := validBackup(d, projectID); err != nil {
			valid = err.Error()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", b.ID, b.CreatedAt.Format("2006-01-02 15:04:05"), valid)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if len(backups) == 0 {
		fmt.Fprintf(os.Stderr, "no backups for project %s\n", projectID)
	}
	return nil
}

func validBackup(d *document.Design, projectID string) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if d.ProjectID != projectID {
		return fmt.Errorf("%w: belongs to %s", document.ErrInvalidDesign, d.ProjectID)
	}
	return nil
}
