package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/noorimat/realtime-task-board/internal/config"
	"github.com/noorimat/realtime-task-board/internal/db"
	"github.com/noorimat/realtime-task-board/internal/hub"
	"github.com/noorimat/realtime-task-board/internal/metrics"
	"github.com/noorimat/realtime-task-board/internal/migrate"
	"github.com/noorimat/realtime-task-board/internal/protocol"
	"github.com/noorimat/realtime-task-board/internal/registry"
	"github.com/noorimat/realtime-task-board/internal/server"
	taskboardsdk "github.com/noorimat/realtime-task-board/sdk/go"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "taskboard",
	Short: "Taskboard collaborative board server and CLI",
	Long: `Taskboard runs a real-time collaborative task board.
The server keeps one shared board in a SQLite file or a Postgres database and
pushes every change to all connected clients over websockets. The task
subcommands talk to a running server over its HTTP API; watch streams the
live event feed.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TASKBOARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("api", "http://127.0.0.1:3001/v0", "base URL of a running server")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("api", rootCmd.PersistentFlags().Lookup("api"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(versionCmd())
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the board server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			cfg.ApplyEnv()
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
			slog.SetDefault(logger)

			conn, dialect, err := db.Open(cfg.Database.URL)
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn, dialect); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			promReg := prometheus.NewRegistry()
			h := hub.New(conn, dialect, registry.New(), logger, metrics.New(promReg))
			handler, err := server.New(ctx, server.Config{Hub: h, App: cfg, Gatherer: promReg})
			if err != nil {
				return err
			}

			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler}
			go func() {
				<-ctx.Done()
				shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutCtx)
			}()

			logger.Info("serving", "addr", cfg.Server.Addr, "base_path", cfg.Server.BasePath,
				"dialect", dialect.String(), "version", version)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:3001", "listen address")
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks on a running server",
	}
	task.AddCommand(taskListCmd())
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskGetCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskDoneCmd())
	task.AddCommand(taskRmCmd())
	return task
}

func taskListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := apiClient().ListTasks(cmd.Context())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(tasks)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "Title", "Status", "Created"})
			for _, t := range tasks {
				tw.AppendRow(table.Row{t.ID, t.Title, t.Status,
					time.UnixMilli(t.CreatedAt).Format(time.RFC3339)})
			}
			tw.Render()
			return nil
		},
	}
	return cmd
}

func taskCreateCmd() *cobra.Command {
	var title, description, status string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := apiClient().CreateTask(cmd.Context(), taskboardsdk.CreateTaskInput{
				Title:       title,
				Description: description,
				Status:      status,
			})
			if err != nil {
				return err
			}
			return printJSONOrTable(t)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&description, "description", "", "task description")
	cmd.Flags().StringVar(&status, "status", "", "initial status (todo, in_progress, done)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := apiClient().GetTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSONOrTable(t)
		},
	}
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var title, description, status string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := apiClient()
			current, err := client.GetTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			in := taskboardsdk.UpdateTaskInput{
				Title:       current.Title,
				Description: current.Description,
				Status:      current.Status,
			}
			if cmd.Flags().Changed("title") {
				in.Title = title
			}
			if cmd.Flags().Changed("description") {
				in.Description = description
			}
			if cmd.Flags().Changed("status") {
				in.Status = status
			}
			t, err := client.UpdateTask(cmd.Context(), args[0], in)
			if err != nil {
				return err
			}
			return printJSONOrTable(t)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringVar(&status, "status", "", "new status (todo, in_progress, done)")
	return cmd
}

func taskDoneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "done <id>",
		Short: "Mark task done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := apiClient()
			current, err := client.GetTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			t, err := client.UpdateTask(cmd.Context(), args[0], taskboardsdk.UpdateTaskInput{
				Title:       current.Title,
				Description: current.Description,
				Status:      "done",
			})
			if err != nil {
				return err
			}
			return printJSONOrTable(t)
		},
	}
	return cmd
}

func taskRmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return apiClient().DeleteTask(cmd.Context(), args[0])
		},
	}
	return cmd
}

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream board changes over websocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			sub, err := taskboardsdk.Subscribe(cmd.Context(), viper.GetString("api"))
			if err != nil {
				return err
			}
			defer sub.Close()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			go func() {
				<-ctx.Done()
				sub.Close()
			}()
			for {
				frame, err := sub.Next()
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
				printFrame(frame)
			}
		},
	}
	return cmd
}

func printFrame(f taskboardsdk.Frame) {
	if viper.GetBool("json") {
		printJSON(f)
		return
	}
	switch f.Event {
	case protocol.EventTasksLoad:
		var tasks []taskboardsdk.Task
		if json.Unmarshal(f.Data, &tasks) == nil {
			fmt.Printf("%s  snapshot of %d task(s)\n", f.Event, len(tasks))
			return
		}
	case protocol.EventTaskCreated, protocol.EventTaskUpdated:
		var t taskboardsdk.Task
		if json.Unmarshal(f.Data, &t) == nil {
			fmt.Printf("%s  %s  %q [%s]\n", f.Event, t.ID, t.Title, t.Status)
			return
		}
	case protocol.EventTaskDeleted:
		var id string
		if json.Unmarshal(f.Data, &id) == nil {
			fmt.Printf("%s  %s\n", f.Event, id)
			return
		}
	}
	fmt.Printf("%s  %s\n", f.Event, string(f.Data))
}

func logCmd() *cobra.Command {
	logCmd := &cobra.Command{Use: "log", Short: "Inspect the mutation journal"}
	logCmd.AddCommand(logTailCmd())
	return logCmd
}

func logTailCmd() *cobra.Command {
	var n int
	var cursor int64
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail journal events",
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := apiClient().Events(cmd.Context(), cursor, n)
			if err != nil {
				return err
			}
			return printJSONOrTable(page.Items)
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().Int64Var(&cursor, "cursor", 0, "start after this event id")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}

// --- helpers ---

func apiClient() *taskboardsdk.Client {
	return taskboardsdk.New(viper.GetString("api"))
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
