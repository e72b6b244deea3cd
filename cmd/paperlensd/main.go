// paperlensd is the local research-assistant daemon the browser extension
// talks to.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/paperlens/paperlens/internal/profile"
	"github.com/paperlens/paperlens/plugin/ai/session"
	"github.com/paperlens/paperlens/server/middleware"
	aiv1 "github.com/paperlens/paperlens/server/router/api/v1/ai"
	"github.com/paperlens/paperlens/store"
	"github.com/paperlens/paperlens/store/db"
)

const version = "0.3.0"

var rootCmd = &cobra.Command{
	Use:   "paperlensd",
	Short: "Local backend for the PaperLens research assistant extension",
	RunE: func(_ *cobra.Command, _ []string) error {
		return run()
	},
}

func init() {
	rootCmd.PersistentFlags().String("mode", "dev", `server mode, "prod" or "dev"`)
	rootCmd.PersistentFlags().String("addr", "127.0.0.1", "binding address")
	rootCmd.PersistentFlags().Int("port", 18320, "binding port")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver")
	rootCmd.PersistentFlags().String("dsn", "", "database source name")

	for _, key := range []string{"mode", "addr", "port", "data", "driver", "dsn"} {
		_ = viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(key))
	}
	viper.SetEnvPrefix("paperlens")
	viper.AutomaticEnv()
}

func buildProfile() (*profile.Profile, error) {
	p := &profile.Profile{
		Mode:    viper.GetString("mode"),
		Addr:    viper.GetString("addr"),
		Port:    viper.GetInt("port"),
		Data:    viper.GetString("data"),
		Driver:  viper.GetString("driver"),
		DSN:     viper.GetString("dsn"),
		Version: version,
	}
	p.FromEnv()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func newLogger(p *profile.Profile) *slog.Logger {
	level := slog.LevelInfo
	if p.IsDev() {
		level = slog.LevelDebug
	}
	var handler slog.Handler
	if p.IsDev() {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler)
}

func run() error {
	p, err := buildProfile()
	if err != nil {
		return err
	}
	logger := newLogger(p)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	driver, err := db.NewDBDriver(p)
	if err != nil {
		return err
	}
	st := store.New(driver, p)
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	assistant, err := aiv1.NewService(p, st, logger)
	if err != nil {
		return err
	}
	if restored, err := assistant.RestoreCorpora(ctx); err != nil {
		logger.Warn("failed to restore retrieval corpora", slog.String("error", err.Error()))
	} else if restored > 0 {
		logger.Info("retrieval corpora restored", slog.Int("papers", restored))
	}

	cleanup := session.NewCleanupJob(assistant.Registry, st, session.DefaultCleanupConfig(), logger)
	cleanup.Start(ctx)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(echomw.CORS())

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": p.Version})
	})
	assistant.Handler.RegisterRoutes(e.Group("/api/v1"), middleware.NewRateLimiter())

	addr := fmt.Sprintf("%s:%d", p.Addr, p.Port)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("daemon started",
			slog.String("addr", addr),
			slog.String("mode", p.Mode),
			slog.String("version", p.Version),
			slog.String("llm_base_url", p.LLMBaseURL),
			slog.String("llm_model", p.LLMModel))
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", slog.String("error", err.Error()))
		}
		cleanup.Stop()
		assistant.Shutdown()
		if err := st.Close(); err != nil {
			logger.Error("store close failed", slog.String("error", err.Error()))
		}
		return nil
	})
	return g.Wait()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
