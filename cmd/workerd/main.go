// Command workerd runs the trigger worker process: a set of consumer-group
// members that claim pending invocations off the trigger stream, execute
// the workflow DAG, and acknowledge on success.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"goa.design/clue/log"

	"github.com/weftworks/weft/config"
	"github.com/weftworks/weft/engine"
	"github.com/weftworks/weft/nodes"
	"github.com/weftworks/weft/telemetry"
	"github.com/weftworks/weft/trigger"
	"github.com/weftworks/weft/vault"
	mongostore "github.com/weftworks/weft/workflow/store/mongo"
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

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.DatabaseURL))
	if err != nil {
		log.Fatal(ctx, err)
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			log.Error(ctx, err)
		}
	}()
	st := mongostore.New(client.Database(cfg.DatabaseName))

	v, err := vault.New(cfg.CredentialsKey)
	if err != nil {
		log.Fatal(ctx, err)
	}

	logger := telemetry.NewClueLogger()
	metrics := telemetry.NewOTELMetrics()

	registry := engine.NewRegistry()
	nodes.RegisterBuiltins(registry, nodes.Options{Vault: v, Logger: logger})

	executor, err := engine.New(engine.Options{
		Store:    st,
		Registry: registry,
		Logger:   logger,
		Metrics:  metrics,
	})
	if err != nil {
		log.Fatal(ctx, err)
	}

	stream, err := trigger.NewStream(trigger.StreamOptions{Redis: rdb})
	if err != nil {
		log.Fatal(ctx, err)
	}

	// Shared handles every invocation's context carries by reference.
	services := map[string]any{
		"store": st,
		"vault": v,
	}

	log.Print(ctx, log.KV{K: "msg", V: "worker starting"}, log.KV{K: "consumers", V: cfg.WorkerCount})
	var wg sync.WaitGroup
	for i := 0; i < cfg.WorkerCount; i++ {
		worker, err := trigger.NewWorker(trigger.WorkerOptions{
			Stream:   stream,
			Executor: executor,
			Services: services,
			Consumer: fmt.Sprintf("worker-%d-%d", os.Getpid(), i),
			Logger:   logger,
			Metrics:  metrics,
		})
		if err != nil {
			log.Fatal(ctx, err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error(ctx, err)
			}
		}()
	}
	wg.Wait()
	log.Print(ctx, log.KV{K: "msg", V: "worker stopped"})
}
