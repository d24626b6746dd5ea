// Command schedulerd runs the scheduler process: it subscribes to workflow
// lifecycle events, maintains the durable schedule set, and drains due
// schedules onto the trigger stream once per tick. Replicas coordinate
// through a distributed ticker so exactly one drains at a time.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"goa.design/clue/log"
	"goa.design/pulse/pool"

	"github.com/weftworks/weft/config"
	"github.com/weftworks/weft/events"
	"github.com/weftworks/weft/schedule"
	"github.com/weftworks/weft/telemetry"
	"github.com/weftworks/weft/trigger"
	"github.com/weftworks/weft/trigger/handlers"
	"github.com/weftworks/weft/vault"
)

func main() {
	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(ctx, err)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal(ctx, err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal(ctx, err)
	}

	logger := telemetry.NewClueLogger()
	metrics := telemetry.NewOTELMetrics()

	stream, err := trigger.NewStream(trigger.StreamOptions{Redis: rdb})
	if err != nil {
		log.Fatal(ctx, err)
	}
	scheduler, err := schedule.NewScheduler(schedule.SchedulerOptions{
		Redis:   rdb,
		Stream:  stream,
		Logger:  logger,
		Metrics: metrics,
	})
	if err != nil {
		log.Fatal(ctx, err)
	}

	registry := handlers.NewRegistry(logger)
	registry.Register(handlers.CategoryScheduler, handlers.NewSchedulerHandler(scheduler))
	if cfg.PublicURL != "" {
		v, err := vault.New(cfg.CredentialsKey)
		if err != nil {
			log.Fatal(ctx, err)
		}
		telegram, err := handlers.NewTelegramHandler(handlers.TelegramHandlerOptions{
			Vault:     v,
			PublicURL: cfg.PublicURL,
			Logger:    logger,
		})
		if err != nil {
			log.Fatal(ctx, err)
		}
		registry.Register(handlers.CategoryTelegram, telegram)
	} else {
		log.Print(ctx, log.KV{K: "msg", V: "PUBLIC_URL not set, telegram triggers disabled"})
	}

	subscriber, err := events.NewSubscriber(ctx, events.SubscriberOptions{Redis: rdb, Logger: logger})
	if err != nil {
		log.Fatal(ctx, err)
	}
	defer subscriber.Close()

	poolNode, err := pool.AddNode(ctx, "weft-scheduler", rdb)
	if err != nil {
		log.Fatal(ctx, err)
	}
	defer func() {
		if err := poolNode.Close(ctx); err != nil {
			log.Error(ctx, err)
		}
	}()

	runner, err := schedule.NewRunner(schedule.RunnerOptions{
		Scheduler:    scheduler,
		Events:       subscriber,
		Dispatcher:   registry,
		TickInterval: cfg.TickInterval,
		PoolNode:     poolNode,
		Logger:       logger,
	})
	if err != nil {
		log.Fatal(ctx, err)
	}

	log.Print(ctx, log.KV{K: "msg", V: "scheduler starting"}, log.KV{K: "tick", V: cfg.TickInterval.String()})
	if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal(ctx, err)
	}
	log.Print(ctx, log.KV{K: "msg", V: "scheduler stopped"})
}
