package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"p9e.in/qareports/config"
	"p9e.in/qareports/handlers"
	"p9e.in/qareports/pkg/ai"
	"p9e.in/qareports/pkg/checklist"
	"p9e.in/qareports/pkg/ledger"
	"p9e.in/qareports/pkg/photos"
	"p9e.in/qareports/pkg/reports"
	"p9e.in/qareports/routes"
)

const shutdownTimeout = 15 * time.Second

var seedOnStart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the inspection API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&seedOnStart, "seed", false, "seed demo schools when the database is empty")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	log := config.GetLogger()

	db, err := config.Connect(settings)
	if err != nil {
		return err
	}
	if err := config.Migrations(db); err != nil {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	if seedOnStart {
		if err := config.SeedSchools(db); err != nil {
			log.WithError(err).Warn("⚠️  seeding encountered issues")
		}
	}

	registry, err := checklist.Load()
	if err != nil {
		return err
	}
	reportSvc := reports.NewService(db, registry, ledger.NewLedger(db), reports.WithVisitInterval(settings.VisitIntervalDays))

	store, err := photos.NewStore(ctx, settings)
	if err != nil {
		return err
	}
	photoSvc := photos.NewService(db, store,
		photos.WithThumbnailWidth(settings.ThumbnailWidth),
		photos.WithMaxBytes(settings.MaxUploadBytes),
	)

	rdb, locker, err := config.ConnectRedis(ctx, settings)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}
	model, err := ai.NewModel(settings)
	if err != nil {
		return err
	}
	aiOpts := []ai.Option{ai.WithModelName(settings.AIModel), ai.WithRatePerMinute(settings.AIRatePerMinute)}
	if locker != nil {
		aiOpts = append(aiOpts, ai.WithLocker(locker))
	}
	summarizer := ai.NewSummarizer(db, reportSvc, model, aiOpts...)

	h := handlers.New(reportSvc, reports.NewSchoolService(db, registry), photoSvc, summarizer)
	opts := routes.Options{}
	if local, ok := store.(*photos.LocalStore); ok {
		opts.UploadDir = local.Dir()
	}

	reminder := reports.NewReminder(reportSvc, settings.ReminderInterval, settings.ReminderThreshold)
	go reminder.Run(ctx)

	srv := &http.Server{
		Addr:              ":" + settings.Port,
		Handler:           routes.RegisterRoutes(h, opts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"port":      settings.Port,
			"store":     store.Name(),
			"ai":        summarizer.Configured(),
			"checklist": registry.Version(),
		}).Info("🚀 server starting")
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

	log.Info("🛑 shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if closer, ok := store.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	return nil
}
