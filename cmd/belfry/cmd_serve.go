/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/friendsincode/belfry/internal/audio"
	"github.com/friendsincode/belfry/internal/clock"
	"github.com/friendsincode/belfry/internal/db"
	"github.com/friendsincode/belfry/internal/eventbus"
	"github.com/friendsincode/belfry/internal/events"
	"github.com/friendsincode/belfry/internal/executor"
	"github.com/friendsincode/belfry/internal/leadership"
	"github.com/friendsincode/belfry/internal/logbuffer"
	"github.com/friendsincode/belfry/internal/logging"
	"github.com/friendsincode/belfry/internal/media"
	"github.com/friendsincode/belfry/internal/playback"
	"github.com/friendsincode/belfry/internal/scheduler"
	"github.com/friendsincode/belfry/internal/server"
	"github.com/friendsincode/belfry/internal/telemetry"
	"github.com/friendsincode/belfry/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and the status HTTP server",
	Long:  "Start the minute scheduler, the playback executor and the HTTP status surface. Runs until SIGINT or SIGTERM.",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// runner is the subset of the scheduler lifecycle serve drives, covering
// both the plain and the leader-aware scheduler.
type runner interface {
	Start(ctx context.Context) error
	Stop() error
}

type plainScheduler struct{ svc *scheduler.Service }

func (p plainScheduler) Start(ctx context.Context) error { return p.svc.Start(ctx) }
func (p plainScheduler) Stop() error                     { p.svc.Stop(); return nil }

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	logs := logbuffer.New(cfg.LogBufferSize)
	logger = logging.SetupWithWriter(cfg.Environment, os.Stdout, logbuffer.NewWriter(logs))

	logger.Info().Str("version", version.Version).Msg("belfry starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracerProvider, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		ServiceName:    "belfry",
		ServiceVersion: version.Version,
		InstanceID:     cfg.InstanceID,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}()

	database, st, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close(database)
	go reportConnectionMetrics(ctx, database)

	library := newLibrary()
	if err := library.CheckAccess(); err != nil {
		logger.Warn().Err(err).Str("media_root", cfg.MediaRoot).Msg("media root not accessible; targets will fail until it exists")
	}
	if cfg.S3Bucket != "" {
		go mirrorMedia(ctx, library)
	}

	bus := events.NewBus()
	if err := startForwarder(ctx, bus); err != nil {
		return err
	}

	var backend audio.Backend = audio.NullBackend{}
	if cfg.AudioEnabled {
		backend = audio.NewProcessBackend(audio.ProcessConfig{
			Bin:  cfg.PlayerBin,
			Args: cfg.PlayerArgs,
		}, logger)
		if !backend.Available() {
			logger.Warn().Str("player", cfg.PlayerBin).Msg("audio player not found; playback disabled")
		}
	}

	clk := clock.Real{}
	pool := executor.NewPool(ctx, executor.NewRegistry(clk.Now), logger)
	playbackRunner := playback.NewRunner(backend, library, pool, clk, bus, playback.Options{
		Serialize: cfg.AudioSerialize,
	}, logger)

	svc := scheduler.New(st, playbackRunner, clk, bus, scheduler.Options{
		PollInterval:           cfg.PollInterval,
		ErrorBackoff:           cfg.ErrorBackoff,
		MaxConsecutiveFailures: cfg.MaxConsecutiveFailures,
		StopTimeout:            cfg.StopTimeout,
		Location:               cfg.Location(),
		DefaultListName:        cfg.DefaultListName,
	}, logger)

	deps := server.Deps{
		Scheduler: svc,
		Sessions:  pool,
		Bus:       bus,
		DB:        database,
		Clock:     clk,
		Logs:      logs,
		Version:   version.Version,
	}

	var sched runner = plainScheduler{svc: svc}
	if cfg.LeaderElectionEnabled {
		election, err := leadership.NewElection(leadership.ElectionConfig{
			RedisAddr:     cfg.RedisAddr,
			RedisPassword: cfg.RedisPassword,
			RedisDB:       cfg.RedisDB,
			InstanceID:    cfg.InstanceID,
		}, logger)
		if err != nil {
			return fmt.Errorf("initialize leader election: %w", err)
		}
		leaderAware := scheduler.NewLeaderAware(svc, election, bus, logger)
		deps.Leader = leaderAware.IsLeader
		sched = leaderAware
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	srv := server.New(cfg.HTTPAddr(), deps, logger)
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			logger.Error().Err(err).Msg("http server error")
		}
	}

	logger.Info().Msg("shutting down gracefully...")

	if err := sched.Stop(); err != nil {
		logger.Error().Err(err).Msg("scheduler stop failed")
	}

	timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(timeoutCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	// Sessions share the signal context and stop their tracks on cancel.
	stop()
	if !pool.Shutdown(cfg.StopTimeout) {
		logger.Warn().Int("sessions", len(pool.Active())).Msg("sessions still running at exit")
	}
	backend.Stop()

	logger.Info().Msg("belfry stopped")
	return nil
}

func reportConnectionMetrics(ctx context.Context, database *gorm.DB) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		db.UpdateConnectionMetrics(database)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// startForwarder republishes bus events to NATS, or to Redis pub/sub when
// EventsRedis is set and NATS is not configured.
func startForwarder(ctx context.Context, bus *events.Bus) error {
	var (
		pub eventbus.Publisher
		err error
	)
	switch {
	case cfg.NATSURL != "":
		natsCfg := eventbus.DefaultNATSConfig()
		natsCfg.URL = cfg.NATSURL
		natsCfg.Name = "belfry-" + cfg.InstanceID
		pub, err = eventbus.NewNATSPublisher(natsCfg, logger)
	case cfg.EventsRedis:
		redisCfg := eventbus.DefaultRedisConfig()
		redisCfg.Addr = cfg.RedisAddr
		redisCfg.Password = cfg.RedisPassword
		redisCfg.DB = cfg.RedisDB
		pub, err = eventbus.NewRedisPublisher(redisCfg, logger)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("connect event transport: %w", err)
	}

	fwd := eventbus.NewForwarder(bus, pub, eventbus.ForwarderConfig{
		SubjectPrefix: cfg.NATSSubjectPrefix,
		NodeID:        cfg.InstanceID,
	}, logger)
	go func() {
		fwd.Run(ctx)
		if err := pub.Close(); err != nil {
			logger.Debug().Err(err).Msg("event transport close failed")
		}
	}()
	return nil
}

// mirrorMedia copies the bucket into the media root at startup and then on
// every MediaSyncInterval.
func mirrorMedia(ctx context.Context, library *media.Library) {
	src, err := newS3Source(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("s3 media source unavailable")
		return
	}

	for {
		result, err := library.Mirror(ctx, src, cfg.S3Prefix)
		if err != nil {
			logger.Error().Err(err).Msg("media mirror failed")
		} else {
			logger.Info().
				Int("downloaded", result.Downloaded).
				Int("skipped", result.Skipped).
				Int("failed", result.Failed).
				Msg("media mirror complete")
		}

		if cfg.MediaSyncInterval <= 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(cfg.MediaSyncInterval):
		}
	}
}

func newS3Source(ctx context.Context) (*media.S3Source, error) {
	return media.NewS3Source(ctx, media.S3Config{
		Bucket:          cfg.S3Bucket,
		Region:          cfg.S3Region,
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
		UsePathStyle:    cfg.S3UsePathStyle,
	})
}
