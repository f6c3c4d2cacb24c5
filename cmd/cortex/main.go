// Command cortex runs the trainer (C9) as a standalone process.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/optiq-io/qbrix/internal/config"
	"github.com/optiq-io/qbrix/internal/cortexsvc"
	"github.com/optiq-io/qbrix/internal/leaderelect"
	"github.com/optiq-io/qbrix/internal/paramstore"
	"github.com/optiq-io/qbrix/internal/policy"
	"github.com/optiq-io/qbrix/internal/qlog"
	"github.com/optiq-io/qbrix/internal/stream"
)

func main() {
	cfg := config.LoadCortexConfig()

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		qlog.Errorln("cortex: invalid redis url", err)
		os.Exit(1)
	}
	client := redis.NewClient(opts)

	snapshots := paramstore.NewSnapshotStore(client)
	backend := paramstore.New(client, 0)
	consumer := stream.NewConsumer(client, cfg.StreamName, cfg.ConsumerGroup, cfg.ConsumerName)

	svc := cortexsvc.New(cortexsvc.Config{
		BatchSize:     int64(cfg.BatchSize),
		BatchBlock:    cfg.BatchBlock,
		FlushInterval: cfg.FlushInterval,
		MinIdle:       cfg.MinIdle,
		ErrorBackoff:  cfg.ErrorBackoff,
	}, consumer, snapshots, backend, policy.NewRegistry())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := func(ctx context.Context) {
		if err := svc.Start(ctx); err != nil {
			qlog.Errorln("cortex: failed to start", err)
		}
	}
	stopSvc := func() { svc.Stop(context.Background()) }

	if cfg.LeaderElection {
		k8sCfg, err := rest.InClusterConfig()
		if err != nil {
			qlog.Errorln("cortex: leader election requested but no in-cluster config", err)
			os.Exit(1)
		}
		client, err := kubernetes.NewForConfig(k8sCfg)
		if err != nil {
			qlog.Errorln("cortex: failed to build kubernetes client", err)
			os.Exit(1)
		}
		if err := leaderelect.Run(ctx, client, leaderelect.Config{
			LockName:  cfg.LeaseLockName,
			Namespace: cfg.LeaseNamespace,
			Identity:  cfg.ConsumerName,
		}, start, stopSvc); err != nil {
			qlog.Errorln("cortex: leader election stopped", err)
		}
	} else {
		start(ctx)
		<-ctx.Done()
		stopSvc()
	}

	qlog.Infoln("cortex: shut down")
}
