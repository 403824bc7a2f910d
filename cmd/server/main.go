package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kdimtricp/camsearch/internal/api"
	"github.com/kdimtricp/camsearch/internal/app"
)

func main() {
	v := viper.New()
	cmd := &cobra.Command{
		Use:          "camsearch-server",
		Short:        "Serve hybrid search over ingested camera frames",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, v)
		},
	}
	app.BindCommonFlags(cmd, v)
	cmd.Flags().Int("port", 8000, "HTTP listen port")
	v.BindPFlag("server.port", cmd.Flags().Lookup("port"))

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, v *viper.Viper) error {
	cfg, log, err := app.Setup(cmd, v)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer services.Close()

	loaded, err := services.Pipeline.Rehydrate(ctx)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.NewRouter(services.API()),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	log.WithFields(logrus.Fields{
		"addr":            srv.Addr,
		"database":        cfg.Database.Type,
		"frames":          loaded,
		"text_encoder":    services.Status.TextEncoder,
		"visual_search":   services.Status.VisualAvailable,
		"llm_query_parse": services.Status.LLMExtractor,
	}).Info("server starting")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
