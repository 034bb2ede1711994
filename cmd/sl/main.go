package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"strikeline/internal/bot"
	"strikeline/internal/config"
	"strikeline/internal/db"
	"strikeline/internal/domain"
	"strikeline/internal/engine"
	"strikeline/internal/export"
	"strikeline/internal/migrate"
	"strikeline/internal/notify"
	"strikeline/internal/phone"
	"strikeline/internal/repo"
	"strikeline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "sl",
	Short: "Strikeline task dispatch bot",
	Long: `Strikeline dispatches strike tasks from admins to field squads over Telegram.
Squads register by invite code or approval, mark readiness, accept tasks,
classify the outcome and attach video evidence. Everything lands in a local
SQLite workspace with an xlsx report and an optional read-only ops API.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
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
	viper.SetEnvPrefix("STRIKELINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(squadCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(adminCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(apikeyCmd())
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the Telegram bot (and the ops API when enabled)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
				logger := log.New(os.Stderr, "strikeline ", log.LstdFlags)
				token := e.Config.Bot.Token
				if token == "" {
					token = os.Getenv("STRIKELINE_BOT_TOKEN")
				}
				if token == "" {
					return fmt.Errorf("bot token missing; set bot.token in config or STRIKELINE_BOT_TOKEN")
				}
				api, err := tgbotapi.NewBotAPI(token)
				if err != nil {
					return fmt.Errorf("telegram login: %w", err)
				}
				logger.Printf("authorized as @%s", api.Self.UserName)

				e.Exporter = export.Collector{Repo: e.Repo, Path: e.Config.Export.Path, Log: logger}
				if err := e.Seed(ctx); err != nil {
					return err
				}

				handler := &bot.Handler{
					Engine:  e,
					Notify:  notify.Telegram{API: api},
					Log:     logger,
					FileExt: e.Config.Bot.FileExtension,
				}
				runner := bot.Runner{API: api, Handler: handler, Log: logger}
				if err := runner.SetupMenus(ctx); err != nil {
					logger.Printf("setup menus: %v", err)
				}

				if e.Config.Server.Enabled {
					apiHandler, err := server.New(server.Config{
						Engine:   e,
						BasePath: e.Config.Server.BasePath,
						Auth:     server.AuthConfig{JWTSecret: jwtSecret(e.Config)},
					})
					if err != nil {
						return err
					}
					srv := &http.Server{Addr: e.Config.Server.Listen, Handler: apiHandler}
					go func() {
						<-ctx.Done()
						sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
						defer cancel()
						srv.Shutdown(sctx)
					}()
					go func() {
						logger.Printf("ops API on http://%s%s", e.Config.Server.Listen, e.Config.Server.BasePath)
						if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
							logger.Printf("ops API: %v", err)
						}
					}()
				}
				server.StartWebhookDispatcher(ctx, e)

				return runner.Run(ctx)
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ops API without the bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
				secret := jwtSecret(e.Config)
				if secret == "" {
					return fmt.Errorf("jwt secret missing; set server.jwt_secret in config or STRIKELINE_JWT_SECRET")
				}
				if addr == "" {
					addr = e.Config.Server.Listen
				}
				handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: server.AuthConfig{JWTSecret: secret}})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(sctx)
				}()
				server.StartWebhookDispatcher(ctx, e)
				fmt.Printf("Serving ops API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to config server.listen)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
			if err != nil {
				return err
			}
			defer conn.Close()
			return migrate.Migrate(conn)
		},
	}
}

func exportCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the xlsx flight report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				target := path
				if target == "" {
					target = e.Config.Export.Path
				}
				c := export.Collector{Repo: e.Repo, Path: target}
				if err := c.Export(ctx); err != nil {
					return err
				}
				fmt.Printf("Wrote %s\n", target)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&path, "out", "", "output file (defaults to config export.path)")
	return cmd
}

func squadCmd() *cobra.Command {
	squad := &cobra.Command{Use: "squad", Short: "Manage squads"}
	squad.AddCommand(squadListCmd())
	squad.AddCommand(squadAddCmd())
	return squad
}

func squadListCmd() *cobra.Command {
	var ready bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List squads",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var (
					squads []domain.Squad
					err    error
				)
				if ready {
					squads, err = e.Repo.ListReadySquads(ctx)
				} else {
					squads, err = e.Repo.ListSquads(ctx)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(squads)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Chat ID", "Name", "Code", "Airframe", "Payload", "Ready", "Status"})
				for _, s := range squads {
					tw.AppendRow(table.Row{s.ChatID, s.Name, s.Code, s.Airframe, s.Payload, s.Ready, s.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&ready, "ready", false, "only squads that marked readiness")
	return cmd
}

func squadAddCmd() *cobra.Command {
	var chatID int64
	var name string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a squad directly",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.AddSquad(ctx, e.Config.MainAdmin.ID, chatID, name)
				if err != nil {
					return err
				}
				fmt.Printf("Squad %s added, invite code %s\n", s.Name, s.Code)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&chatID, "chat-id", 0, "telegram chat id")
	cmd.Flags().StringVar(&name, "name", "", "squad name")
	_ = cmd.MarkFlagRequired("chat-id")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Inspect tasks"}
	task.AddCommand(taskListCmd())
	return task
}

func taskListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				statuses := []domain.TaskStatus{domain.TaskPending, domain.TaskAccepted}
				if status != "" {
					statuses = []domain.TaskStatus{domain.TaskStatus(status)}
				}
				tasks, err := e.Repo.ListTasksByStatus(ctx, statuses...)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Squad", "Target", "Status", "Start", "End", "Result"})
				for _, t := range tasks {
					target := t.Point + " " + t.Color
					if t.TruePoint != "" {
						target += " → " + t.TruePoint + " " + t.TrueColor
					}
					tw.AppendRow(table.Row{t.ID, t.Squad, target, t.Status, t.StartTime, t.EndTime, t.Result})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter (pending, accepted, finished, archived)")
	return cmd
}

func adminCmd() *cobra.Command {
	admin := &cobra.Command{Use: "admin", Short: "Manage admins"}
	admin.AddCommand(adminListCmd())
	admin.AddCommand(adminAddCmd())
	admin.AddCommand(adminRemoveCmd())
	return admin
}

func adminListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List admins",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				admins, err := e.Repo.ListAdmins(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(admins)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Chat ID", "Name", "Main"})
				for _, a := range admins {
					tw.AppendRow(table.Row{a.ChatID, a.Name, a.IsMain})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func adminAddCmd() *cobra.Command {
	var chatID int64
	var name string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.AddAdmin(ctx, e.Config.MainAdmin.ID, chatID, name)
				if err != nil {
					return err
				}
				fmt.Printf("Admin %s (%d) added\n", a.Name, a.ChatID)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&chatID, "chat-id", 0, "telegram chat id")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("chat-id")
	return cmd
}

func adminRemoveCmd() *cobra.Command {
	var chatID int64
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove an admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RemoveAdmin(ctx, e.Config.MainAdmin.ID, chatID)
			})
		},
	}
	cmd.Flags().Int64Var(&chatID, "chat-id", 0, "telegram chat id")
	_ = cmd.MarkFlagRequired("chat-id")
	return cmd
}

func logCmd() *cobra.Command {
	logc := &cobra.Command{Use: "log", Short: "Event log"}
	logc.AddCommand(logTailCmd())
	return logc
}

func logTailCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.ListEvents(ctx, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Entity", "Actor", "Payload"})
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + "/" + evt.EntityID, evt.ActorID, evt.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	return cmd
}

func tokenCmd() *cobra.Command {
	token := &cobra.Command{Use: "token", Short: "Ops API tokens"}
	token.AddCommand(tokenIssueCmd())
	return token
}

func tokenIssueCmd() *cobra.Command {
	var actor int64
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Mint a JWT for the ops API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				secret := jwtSecret(e.Config)
				if secret == "" {
					return fmt.Errorf("jwt secret missing; set server.jwt_secret in config or STRIKELINE_JWT_SECRET")
				}
				if actor == 0 {
					actor = e.Config.MainAdmin.ID
				}
				now := time.Now()
				claims := jwt.RegisteredClaims{
					Subject:   fmt.Sprintf("%d", actor),
					ID:        uuid.NewString(),
					IssuedAt:  jwt.NewNumericDate(now),
					ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
				}
				signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
				if err != nil {
					return err
				}
				fmt.Println(signed)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&actor, "actor", 0, "actor chat id (defaults to main admin)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "Ops API keys"}
	key.AddCommand(apikeyAddCmd())
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyDeleteCmd())
	return key
}

func apikeyAddCmd() *cobra.Command {
	var actor int64
	var name string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an API key (printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if actor == 0 {
					actor = e.Config.MainAdmin.ID
				}
				raw := "sk-" + uuid.NewString()
				key := domain.APIKey{
					ID:        uuid.NewString(),
					ActorID:   actor,
					Name:      name,
					KeyHash:   repo.HashAPIKey(raw),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := e.Repo.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				fmt.Printf("API key %s created. Store the key now, it is not recoverable:\n%s\n", key.ID, raw)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&actor, "actor", 0, "actor chat id (defaults to main admin)")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				keys, err := e.Repo.ListAPIKeys(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Actor", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	e.Phones = phone.Validator{DefaultRegion: cfg.Phone.DefaultRegion}
	return fn(ctx, e)
}

func jwtSecret(cfg *config.Config) string {
	if cfg.Server.JWTSecret != "" {
		return cfg.Server.JWTSecret
	}
	return os.Getenv("STRIKELINE_JWT_SECRET")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
