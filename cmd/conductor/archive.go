package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"smartcrm-hq/conductor/pkg/cli"
	"smartcrm-hq/conductor/pkg/taskqueue"
	"smartcrm-hq/conductor/pkg/taskqueue/archive"
)

var archiveFlags struct {
	path      string
	status    string
	taskType  string
	since     time.Duration
	limit     int
	format    string
	olderThan time.Duration
}

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Inspect the task archive",
	Long: `Query and prune the SQLite archive of finished tasks.

Tasks leave the queue after the retention period; when the archive is
enabled they are stored here and stay available to GET /v1/tasks/{id}.

Subcommands:
  list   - List archived tasks with filters
  prune  - Delete archived tasks older than a duration`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		// Keep stdout for command output.
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
		return nil
	},
}

var archiveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived tasks",
	Long: `List archived tasks, most recently completed first.

Examples:
  # Failed tasks of the last day
  conductor archive list --status failed --since 24h

  # Export email tasks as CSV
  conductor archive list --type email --format csv > email-tasks.csv`,
	RunE: listArchive,
}

var archivePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old archived tasks",
	Long: `Delete archived tasks completed before now minus --older-than.

Example:
  conductor archive prune --older-than 720h`,
	RunE: pruneArchive,
}

func init() {
	rootCmd.AddCommand(archiveCmd)
	archiveCmd.AddCommand(archiveListCmd, archivePruneCmd)

	archiveCmd.PersistentFlags().StringVar(&archiveFlags.path, "path", "", "archive database (uses config if not specified)")

	archiveListCmd.Flags().StringVar(&archiveFlags.status, "status", "", "filter by status: completed, failed")
	archiveListCmd.Flags().StringVar(&archiveFlags.taskType, "type", "", "filter by task type: scoring, enrichment, insights, email, analysis")
	archiveListCmd.Flags().DurationVar(&archiveFlags.since, "since", 0, "only tasks completed within this duration")
	archiveListCmd.Flags().IntVar(&archiveFlags.limit, "limit", 100, "max results (0 for all)")
	archiveListCmd.Flags().StringVar(&archiveFlags.format, "format", "text", "output format: text, json, csv")

	archivePruneCmd.Flags().DurationVar(&archiveFlags.olderThan, "older-than", 30*24*time.Hour, "delete tasks completed before this age")
}

func openArchive() (*archive.Archive, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	ac := cfg.Archive
	if archiveFlags.path != "" {
		ac.Path = archiveFlags.path
	}
	a, err := archive.New(&ac)
	if err != nil {
		return nil, cli.NewCommandError("archive", err)
	}
	return a, nil
}

func listArchive(cmd *cobra.Command, args []string) error {
	formatter, err := cli.NewFormatter(archiveFlags.format)
	if err != nil {
		return err
	}

	q := archive.Query{
		Status: taskqueue.Status(archiveFlags.status),
		Type:   taskqueue.TaskType(archiveFlags.taskType),
		Limit:  archiveFlags.limit,
	}
	if q.Status != "" && !q.Status.Terminal() {
		return fmt.Errorf("invalid --status %q: archived tasks are completed or failed", archiveFlags.status)
	}
	if q.Type != "" && !q.Type.Valid() {
		return fmt.Errorf("invalid --type %q", archiveFlags.taskType)
	}
	if archiveFlags.since > 0 {
		q.CompletedAfter = time.Now().Add(-archiveFlags.since)
	}

	a, err := openArchive()
	if err != nil {
		return err
	}
	defer a.Close()

	tasks, err := a.List(cmd.Context(), q)
	if err != nil {
		return cli.NewCommandError("archive list", err)
	}

	table := &cli.Table{
		Headers: []string{"ID", "TYPE", "PRIORITY", "STATUS", "ATTEMPTS", "COMPLETED", "ERROR"},
		Data:    tasks,
	}
	for _, t := range tasks {
		completed := ""
		if t.CompletedAt != nil {
			completed = t.CompletedAt.UTC().Format(time.RFC3339)
		}
		table.Rows = append(table.Rows, []string{
			t.ID,
			string(t.Type),
			string(t.Priority),
			string(t.Status),
			strconv.Itoa(t.Attempts),
			completed,
			t.Error,
		})
	}
	return formatter.FormatTo(cmd.OutOrStdout(), table)
}

func pruneArchive(cmd *cobra.Command, args []string) error {
	if archiveFlags.olderThan <= 0 {
		return fmt.Errorf("--older-than must be positive")
	}

	a, err := openArchive()
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.Prune(cmd.Context(), time.Now().Add(-archiveFlags.olderThan))
	if err != nil {
		return cli.NewCommandError("archive prune", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d task(s)\n", n)
	return nil
}
