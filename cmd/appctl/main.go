// appctl manages applications from the command line: seed jobs and profiles,
// enqueue, run an attempt in-process, retry, cancel, inspect and sweep.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go-openclaw-autoapply/internal/bootstrap"
	"go-openclaw-autoapply/internal/config"
	"go-openclaw-autoapply/internal/logger"
	"go-openclaw-autoapply/internal/notify"
	"go-openclaw-autoapply/internal/scheduler"
	"go-openclaw-autoapply/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var cfgFile string

// env is what every subcommand works with, opened lazily in PersistentPreRunE
type env struct {
	cfg   *config.Config
	log   *zap.SugaredLogger
	store store.Store
	redis *redis.Client
	sched *scheduler.Scheduler
}

func (e *env) close() {
	if e.redis != nil {
		e.redis.Close()
	}
	if e.store != nil {
		e.store.Close()
	}
	if e.log != nil {
		e.log.Sync()
	}
}

func main() {
	e := &env{}
	root := &cobra.Command{
		Use:           "appctl",
		Short:         "Manage automated job applications",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.open(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			e.close()
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath, "path to the YAML config")

	root.AddCommand(
		seedCommand(e),
		enqueueCommand(e),
		runCommand(e),
		retryCommand(e),
		cancelCommand(e),
		showCommand(e),
		evidenceCommand(e),
		sweepCommand(e),
	)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		e.close()
		os.Exit(1)
	}
}

func (e *env) open(ctx context.Context) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	e.cfg, e.log = cfg, log

	st, err := bootstrap.OpenStore(ctx, cfg.Storage, log)
	if err != nil {
		return err
	}
	e.store = st

	// without a shared queue, enqueued applications wait for `appctl run` or a server sweep
	var dispatcher scheduler.Dispatcher
	if cfg.Scheduler.Queue == "redis" {
		client, err := bootstrap.Redis(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		e.redis = client
		dispatcher = scheduler.NewRedisQueue(client, cfg.Redis.QueueKey, log)
	}

	e.sched = scheduler.New(st, st, dispatcher, e.notifier(), cfg.Retry, cfg.Scheduler,
		scheduler.NewMetrics(prometheus.NewRegistry()), log)
	return nil
}

// notifier relays events to the API process when one is listening on redis
func (e *env) notifier() notify.Notifier {
	if e.redis == nil {
		return notify.Nop{}
	}
	return notify.NewRedisPublisher(e.redis, e.cfg.Redis.NotifyChannel, e.log)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
