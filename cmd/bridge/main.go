package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/rpc"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/pyropy/dsn/core/audit"
	"github.com/pyropy/dsn/core/contracts"
	"github.com/pyropy/dsn/core/network"
	"github.com/pyropy/dsn/core/queue"
	"github.com/pyropy/dsn/lib/logger"
	farmerRPC "github.com/pyropy/dsn/rpc/farmer"
)

const shutdownTimeout = 5 * time.Second

var log, _ = logger.New("bridge")

func main() {
	if err := run(); err != nil {
		log.Fatalw("startup", "error", err)
	}
}

func run() error {
	cfg, err := GetConfig()
	if err != nil {
		log.Errorw("startup", "error", "config error")
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Redis.Addrs,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Errorw("startup", "error", "redis unreachable", "addrs", cfg.Redis.Addrs)
		return err
	}

	directory, err := network.OpenDirectory(cfg.Data.Path)
	if err != nil {
		return err
	}
	defer directory.Close()

	contractStore, err := contracts.Open(cfg.Data.Path)
	if err != nil {
		return err
	}
	defer contractStore.Close()

	workerID := cfg.Queue.Worker
	if workerID == "" {
		workerID, _ = os.Hostname()
	}

	farmers := farmerRPC.NewClient()
	store := queue.NewRedisStore(rdb, cfg.Queue.Namespace, workerID)
	dispatcher := audit.NewDispatcher(store, farmers, directory, cfg.Queue.VerifyTimeout, log)
	worker := audit.NewWorker(audit.WorkerConfig{PollInterval: cfg.Queue.PollInterval}, store, dispatcher, log)

	replicator := network.NewMirrorReplicator(contractStore, directory, farmers, log)
	monitor := network.NewMonitor(network.MonitorConfig{
		SampleSize:  cfg.Monitor.SampleSize,
		Threshold:   cfg.Monitor.Threshold,
		MinInterval: cfg.Monitor.MinInterval,
		MaxInterval: cfg.Monitor.MaxInterval,
		PingTimeout: cfg.Monitor.PingTimeout,
	}, directory, farmers, replicator, log)

	server := rpc.NewServer()
	if err := server.RegisterName("BridgeAPI", NewBridgeAPI(directory, contractStore, dispatcher, cfg.Contracts.ReplicationFactor)); err != nil {
		return err
	}

	rpcMux := http.NewServeMux()
	rpcMux.Handle(rpc.DefaultRPCPath, server)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	l, err := net.Listen("tcp", addr)
	if err != nil {
		log.Errorw("startup", "error", "net listen failed")
		return err
	}

	rpcServer := &http.Server{Handler: rpcMux}
	statusServer := &http.Server{
		Addr:    cfg.Status.Addr,
		Handler: NewStatusServer(store, contractStore, worker, monitor).Router(),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Infow("startup", "status", "bridge rpc server started", "address", l.Addr().String())
		return serve(rpcServer.Serve(l))
	})
	g.Go(func() error {
		log.Infow("startup", "status", "status server started", "address", cfg.Status.Addr)
		return serve(statusServer.ListenAndServe())
	})
	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		return monitor.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Infow("shutdown", "status", "bridge stopping", "address", l.Addr().String())

		worker.Stop()

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return multierr.Combine(rpcServer.Shutdown(sctx), statusServer.Shutdown(sctx))
	})

	err = g.Wait()
	log.Infow("shutdown", "status", "bridge stopped", "error", err)
	return err
}

func serve(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
