package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"taskmanager/internal/app"
	"taskmanager/internal/config"
	"taskmanager/internal/models"
	"taskmanager/internal/notify"
	"taskmanager/internal/pdf"
	"taskmanager/internal/queue"
	"taskmanager/internal/storage"
)

type loader func() (*config.Config, *zap.SugaredLogger, error)

func agentCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "agent",
		Short: "Run the local agent API next to the UI",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			defer log.Sync()
			return app.RunAgent(cmd.Context(), cfg, log)
		},
	}
}

func serverCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Run the remote tasks/logs API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			defer log.Sync()
			return app.RunServer(cmd.Context(), cfg, log)
		},
	}
}

func syncCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay the offline queue once and exit",
		Long: `Drains queued log entries, then queued task mutations, against the server
and refreshes the local mirror. Do not run it while an agent owns the same storage.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			defer log.Sync()

			a, err := app.NewAgent(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()
			if !a.Monitor.Online() {
				return fmt.Errorf("server %s is unreachable, nothing was sent", cfg.Agent.ServerURL)
			}
			if err := a.Engine.SyncNow(cmd.Context()); err != nil {
				return err
			}
			run, _ := a.Engine.LastRun()
			fmt.Fprintf(cmd.OutOrStdout(), "logs sent: %d, tasks sent: %d\n", run.Logs.Sent, run.Tasks.Sent)
			return nil
		},
	}
}

func queueCmd(load loader) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Show mutations waiting for the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			kv, closeKV, err := app.OpenKV(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeKV()

			// read-only: no gateway needed
			q := queue.NewManager(kv, nil, notify.NewLogNotifier(log), log)
			tasks, err := q.PendingTasks(cmd.Context())
			if err != nil {
				return err
			}
			logs, err := q.PendingLogs(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"tasks": tasks, "logs": logs})
			}
			printQueue(out, tasks, logs)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "output as JSON")
	return cmd
}

func printQueue(out io.Writer, tasks []models.QueuedMutation, logs []models.LogEntry) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Tasks (%d)\n", len(tasks))
	fmt.Fprintln(w, "FLAG\tID\tTITLE\tSTATUS")
	for _, m := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.Flag, m.ID, m.Title, m.Status)
	}
	fmt.Fprintf(w, "\nLogs (%d)\n", len(logs))
	fmt.Fprintln(w, "ACTION\tTASK\tTIMESTAMP")
	for _, l := range logs {
		fmt.Fprintf(w, "%s\t%s\t%s\n", l.Action, l.TaskTitle, l.Timestamp)
	}
	w.Flush()
}

func exportCmd(load loader) *cobra.Command {
	var dir, name string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the activity log to a PDF file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := load()
			if err != nil {
				return err
			}
			kv, closeKV, err := app.OpenKV(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeKV()

			var logs, pending []models.LogEntry
			if _, err := storage.LoadJSON(cmd.Context(), kv, storage.KeyLogs, &logs); err != nil {
				return err
			}
			if _, err := storage.LoadJSON(cmd.Context(), kv, storage.KeyLogsQueue, &pending); err != nil {
				return err
			}
			if dir == "" {
				dir = filepath.Join(cfg.Agent.DataDir, "reports")
			}
			path, err := pdf.NewReportGenerator(dir, cfg.Agent.FontPath).Save(pdf.LogReportData{
				Entries:  logs,
				Pending:  len(pending),
				Filename: name,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "output directory (default <data_dir>/reports)")
	cmd.Flags().StringVarP(&name, "name", "n", "", "file name")
	return cmd
}
