package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/rpc"
	"os/signal"
	"syscall"
	"time"

	"github.com/pyropy/dsn/core/farmer"
	"github.com/pyropy/dsn/lib/logger"
	bridgeRPC "github.com/pyropy/dsn/rpc/bridge"
	farmerRPC "github.com/pyropy/dsn/rpc/farmer"
)

var log, _ = logger.New("farmer")

func main() {
	if err := run(); err != nil {
		log.Fatalw("startup", "error", err)
	}
}

func run() error {
	cfg, err := farmer.GetConfig()
	if err != nil {
		log.Errorw("startup", "error", "config error")
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shards, err := farmer.OpenShardStore(cfg.Shards.Path)
	if err != nil {
		return err
	}
	defer shards.Close()

	f := farmer.New(shards, farmerRPC.NewClient(), log)
	f.ID = cfg.ID

	held, err := f.Shards(ctx)
	if err != nil {
		log.Errorw("startup", "error", "failed to list stored shards")
		return err
	}
	log.Infow("startup", "status", "shard store opened", "path", cfg.Shards.Path, "shards", len(held))

	server := rpc.NewServer()
	if err := server.RegisterName("FarmerAPI", NewFarmerAPI(f)); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle(rpc.DefaultRPCPath, server)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	l, err := net.Listen("tcp", addr)
	if err != nil {
		log.Errorw("startup", "error", "net listen failed")
		return err
	}

	listenAddr := l.Addr().String()
	httpServer := &http.Server{Handler: mux}

	log.Infow("startup", "status", "farmer rpc server started", "address", listenAddr)
	defer log.Infow("shutdown", "status", "farmer rpc server stopped", "address", listenAddr)

	serveErr := make(chan error, 1)
	go func() { serveErr <- httpServer.Serve(l) }()

	heartbeat := farmer.NewHeartbeatService(bridgeRPC.NewClient(cfg.Bridge.Addr), cfg.Bridge.HeartbeatInterval, log)
	if err := heartbeat.Register(ctx, f, listenAddr); err != nil {
		log.Errorw("startup", "error", "failed to register with bridge")
		httpServer.Close()
		return err
	}

	go heartbeat.Start(ctx, f.ID)

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	log.Infow("shutdown", "status", "farmer rpc server stopping", "address", listenAddr)
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(sctx)
}
