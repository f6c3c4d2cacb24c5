// Command motor runs the selector (C8) as a standalone process: parse
// config, build dependencies bottom-up, serve until signaled.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"github.com/optiq-io/qbrix/internal/cache"
	"github.com/optiq-io/qbrix/internal/config"
	"github.com/optiq-io/qbrix/internal/motorsvc"
	"github.com/optiq-io/qbrix/internal/paramstore"
	"github.com/optiq-io/qbrix/internal/policy"
	"github.com/optiq-io/qbrix/internal/qlog"
)

func main() {
	cfg := config.LoadMotorConfig()

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		qlog.Errorln("motor: invalid redis url", err)
		os.Exit(1)
	}
	client := redis.NewClient(opts)

	snapshots := paramstore.NewSnapshotStore(client)
	backend := paramstore.New(client, 0)
	registry := policy.NewRegistry()

	agentCache, err := cache.NewAgentCache(registry, snapshots, backend, cfg.AgentCacheTTL, cfg.ParamCacheTTL)
	if err != nil {
		qlog.Errorln("motor: failed to build agent cache", err)
		os.Exit(1)
	}
	defer agentCache.Close()

	rng := policy.NewRand(time.Now().UnixNano())
	svc := motorsvc.New(agentCache, rng, backend)

	lis, err := net.Listen("tcp", net.JoinHostPort(cfg.GRPCHost, strconv.Itoa(cfg.GRPCPort)))
	if err != nil {
		qlog.Errorln("motor: failed to listen", err)
		os.Exit(1)
	}

	server := grpc.NewServer()
	// Selector gRPC service registration happens here once the .proto
	// stubs are generated; svc.Select/svc.Health back the handlers.
	_ = svc

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		qlog.Infoln("motor: serving", qlog.Fields{"addr": lis.Addr().String()})
		if err := server.Serve(lis); err != nil {
			qlog.Errorln("motor: server stopped", err)
		}
	}()

	<-ctx.Done()
	qlog.Infoln("motor: shutting down")
	server.GracefulStop()
}
