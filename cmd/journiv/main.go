package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/journiv/internal/config"
	"github.com/xxxsen/journiv/internal/handler"
	"github.com/xxxsen/journiv/internal/middleware"
	"github.com/xxxsen/journiv/internal/model"
	"github.com/xxxsen/journiv/internal/pkg/jwt"
	"github.com/xxxsen/journiv/internal/pkg/timeutil"
	"github.com/xxxsen/journiv/internal/schedule"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "journiv",
		Short: "journiv import/export server",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run journiv server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			a, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			return runServer(a)
		},
	}

	rootCmd.AddCommand(runCmd, importCommand(&configPath), exportCommand(&configPath),
		cleanupCommand(&configPath), userCommand(&configPath), tokenCommand(&configPath))

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		logutil.GetLogger(context.Background()).Fatal("command failed", zap.Error(err))
	}
}

// openApp loads the config file, or the offline defaults when no path is
// given, and wires every component.
func openApp(configPath string) (*app, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))
	return newApp(cfg)
}

func runServer(a *app) error {
	cfg := a.cfg
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("archive_store", cfg.ArchiveStore.Type),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dispatcher := schedule.NewDispatcher(a.jobs.Handle,
		schedule.WithWorkers(cfg.Transfer.WorkerCount),
		schedule.WithQueueSize(cfg.Transfer.QueueSize),
	)
	a.jobs.SetSubmitter(dispatcher)
	dispatcher.Start(ctx)
	a.scheduler.Start(ctx)

	deps := handler.RouterDeps{
		Import:          handler.NewImportHandler(a.jobs, a.uploads, cfg.Limits.MaxUploadBytes),
		Export:          handler.NewExportHandler(a.jobs),
		Media:           handler.NewMediaHandler(a.media),
		JWTSecret:       []byte(cfg.JWTSecret),
		JobCreateWindow: time.Duration(cfg.HTTP.JobCreateIntervalMS) * time.Millisecond,
	}
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.HTTP.CORSOrigins),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", addr))

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	a.scheduler.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	dispatcher.Stop(shutdownCtx)
	return nil
}

func resolveUser(ctx context.Context, a *app, ref string) (*model.User, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("--user is required")
	}
	if strings.Contains(ref, "@") {
		return a.users.GetByEmail(ctx, ref)
	}
	return a.users.GetByID(ctx, ref)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func importCommand(configPath *string) *cobra.Command {
	var userRef, file, sourceType string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "import an archive for a user without the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()
			user, err := resolveUser(ctx, a, userRef)
			if err != nil {
				return fmt.Errorf("find user: %w", err)
			}
			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()
			uploaded, err := a.uploads.Save(ctx, filepath.Base(file), f)
			if err != nil {
				return err
			}
			job, err := a.jobs.CreateImportJob(ctx, user.ID, model.ImportSource(sourceType), uploaded)
			if err != nil {
				_ = a.uploads.Cleanup(ctx, uploaded)
				return err
			}
			if err := a.jobs.RunImportJob(ctx, job.ID); err != nil {
				return err
			}
			job, err = a.jobs.GetImportJob(ctx, user.ID, job.ID)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]interface{}{
				"job_id":   job.ID,
				"status":   job.Status,
				"result":   job.ResultData,
				"errors":   job.Errors,
				"warnings": job.Warnings,
			})
		},
	}
	cmd.Flags().StringVar(&userRef, "user", "", "user id or email")
	cmd.Flags().StringVar(&file, "file", "", "path to the zip archive")
	cmd.Flags().StringVar(&sourceType, "source", string(model.ImportSourceJourniv), "archive format: journiv or dayone")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func exportCommand(configPath *string) *cobra.Command {
	var userRef string
	var journals []string
	var noMedia bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "export a user's journals without the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()
			user, err := resolveUser(ctx, a, userRef)
			if err != nil {
				return fmt.Errorf("find user: %w", err)
			}
			exportType := model.ExportFull
			if len(journals) > 0 {
				exportType = model.ExportJournal
			}
			job, err := a.jobs.CreateExportJob(ctx, user.ID, exportType, journals, !noMedia)
			if err != nil {
				return err
			}
			if err := a.jobs.RunExportJob(ctx, job.ID); err != nil {
				return err
			}
			job, err = a.jobs.GetExportJob(ctx, user.ID, job.ID)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]interface{}{
				"job_id":    job.ID,
				"status":    job.Status,
				"file_path": job.FilePath,
				"file_size": job.FileSize,
				"result":    job.ResultData,
				"errors":    job.Errors,
			})
		},
	}
	cmd.Flags().StringVar(&userRef, "user", "", "user id or email")
	cmd.Flags().StringSliceVar(&journals, "journal", nil, "journal id to export, repeatable")
	cmd.Flags().BoolVar(&noMedia, "no-media", false, "leave media files out of the archive")
	return cmd
}

func cleanupCommand(configPath *string) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "run the cleanup jobs once",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			names := a.scheduler.JobNames()
			if name != "" {
				names = []string{name}
			}
			for _, n := range names {
				if err := a.scheduler.RunNow(cmd.Context(), n); err != nil {
					return fmt.Errorf("%s: %w", n, err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), n, "done")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "job", "", "only run this job")
	return cmd
}

func userCommand(configPath *string) *cobra.Command {
	var email, name, tz string
	cmd := &cobra.Command{
		Use:   "user-add",
		Short: "create a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			now := timeutil.NowUnix()
			user := &model.User{ID: uuid.NewString(), Email: strings.TrimSpace(email), TimeZone: tz, Ctime: now, Mtime: now}
			if name != "" {
				user.Name = &name
			}
			if err := a.users.Create(cmd.Context(), user); err != nil {
				return err
			}
			return printJSON(cmd, user)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&tz, "timezone", "UTC", "IANA time zone")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func tokenCommand(configPath *string) *cobra.Command {
	var userRef string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "issue an API token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			user, err := resolveUser(cmd.Context(), a, userRef)
			if err != nil {
				return fmt.Errorf("find user: %w", err)
			}
			token, err := jwt.GenerateToken(user.ID, user.Email, []byte(a.cfg.JWTSecret), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userRef, "user", "", "user id or email")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
