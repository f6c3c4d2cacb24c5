// Command proxy runs the public-facing proxy (C10) as a standalone
// process.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"github.com/optiq-io/qbrix/internal/catalog"
	"github.com/optiq-io/qbrix/internal/config"
	"github.com/optiq-io/qbrix/internal/domain"
	"github.com/optiq-io/qbrix/internal/gate"
	"github.com/optiq-io/qbrix/internal/paramstore"
	"github.com/optiq-io/qbrix/internal/policy"
	"github.com/optiq-io/qbrix/internal/proxysvc"
	"github.com/optiq-io/qbrix/internal/qlog"
	"github.com/optiq-io/qbrix/internal/stream"
)

func main() {
	cfg := config.LoadProxyConfig()
	ctx := context.Background()

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		qlog.Errorln("proxy: invalid redis url", err)
		os.Exit(1)
	}
	client := redis.NewClient(opts)
	snapshots := paramstore.NewSnapshotStore(client)
	publisher := stream.NewPublisher(client, cfg.StreamName, 1_000_000)

	cat, err := catalog.New(ctx, cfg.CatalogDSN, snapshots, policy.NewRegistry())
	if err != nil {
		qlog.Errorln("proxy: failed to connect to catalog", err)
		os.Exit(1)
	}
	if err := cat.Migrate(ctx); err != nil {
		qlog.Errorln("proxy: failed to migrate catalog", err)
		os.Exit(1)
	}
	defer cat.Close()

	gateCache, err := gate.NewConfigCache(cfg.GateCacheTTL, func(ctx context.Context, experimentID string) (*domain.FeatureGate, error) {
		return cat.GetFeatureGate(ctx, experimentID)
	})
	if err != nil {
		qlog.Errorln("proxy: failed to build gate cache", err)
		os.Exit(1)
	}

	// The selector is reached over gRPC in a split deployment; here it
	// is resolved lazily once the generated client stub exists.
	var selector proxysvc.Selector

	svc := proxysvc.New(cat, gateCache, snapshots, selector, publisher, []byte(cfg.TokenSecret), cfg.TokenMaxAge)

	lis, err := net.Listen("tcp", net.JoinHostPort(cfg.GRPCHost, strconv.Itoa(cfg.GRPCPort)))
	if err != nil {
		qlog.Errorln("proxy: failed to listen", err)
		os.Exit(1)
	}

	server := grpc.NewServer()
	// Proxy gRPC service registration happens here once the .proto
	// stubs are generated; svc.{Select,Feedback,...} back the handlers.
	_ = svc

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		qlog.Infoln("proxy: serving", qlog.Fields{"addr": lis.Addr().String()})
		if err := server.Serve(lis); err != nil {
			qlog.Errorln("proxy: server stopped", err)
		}
	}()

	<-sigCtx.Done()
	qlog.Infoln("proxy: shutting down")
	server.GracefulStop()
}
