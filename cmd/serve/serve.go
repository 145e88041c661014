// Package serve runs the annotation HTTP server.
package serve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jviitala/labelkit/internal/api"
	"github.com/jviitala/labelkit/internal/conf"
	"github.com/jviitala/labelkit/internal/logging"
	"github.com/jviitala/labelkit/internal/project"
)

const shutdownTimeout = 10 * time.Second

// Command creates the serve subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the annotation server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(settings)
		},
	}

	cmd.Flags().StringVar(&settings.Server.Host, "host",
		viper.GetString("server.host"), "Address to listen on")
	cmd.Flags().IntVar(&settings.Server.Port, "port",
		viper.GetInt("server.port"), "Port to listen on")
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		cobra.CheckErr(err)
	}
	return cmd
}

func runServer(settings *conf.Settings) error {
	log := logging.ForService("server")

	if settings.Main.Log.Enabled {
		fileLog, closeLog, err := logging.NewFileLogger(settings.Main.Log.Path, "server", slog.LevelInfo)
		if err != nil {
			return err
		}
		defer func() {
			if err := closeLog(); err != nil {
				log.Warn("failed to close log file", "error", err)
			}
		}()
		log = fileLog
	}

	projects, err := project.New(settings.Server.ProjectsDir)
	if err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	if settings.Server.Debug {
		e.Use(middleware.Logger())
	}

	if _, err := api.New(e, projects, settings); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
