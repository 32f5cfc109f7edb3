// Command ringkv-node runs a single ring node: it wires together the
// Storage Gateway, the gRPC peer transport, the Node Dispatcher and
// the client REST API, then blocks until the node leaves the ring or
// the process is signalled to stop. Grounded on the teacher's
// src/server/main.go flag layout.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ringkv/ringkv/internal/clientapi"
	"github.com/ringkv/ringkv/internal/config"
	"github.com/ringkv/ringkv/internal/membership"
	"github.com/ringkv/ringkv/internal/model"
	"github.com/ringkv/ringkv/internal/node"
	"github.com/ringkv/ringkv/internal/storage"
	"github.com/ringkv/ringkv/internal/transport/grpcpeer"
)

func main() {
	nodeID := flag.Uint64("id", 0, "ID of the node")
	rpcAddr := flag.String("rpc-addr", "127.0.0.1:6666", "address this node's peer RPC server listens on")
	httpAddr := flag.String("http-addr", "127.0.0.1:6667", "address this node's client REST API listens on")
	dataDir := flag.String("data-dir", "./data", "directory for this node's durable record file")
	bootstrap := flag.Bool("bootstrap", false, "is this the first node in the ring?")
	joinAddr := flag.String("join", "", "rpc-addr of an existing node to join through")
	recoverAddr := flag.String("recover", "", "rpc-addr of an existing node to recover membership from")
	r := flag.Uint("r", 2, "read quorum")
	w := flag.Uint("w", 2, "write quorum")
	n := flag.Uint("n", 3, "replication factor")
	flag.Parse()

	log := logrus.New()
	entry := log.WithField("node", *nodeID)

	quorum := config.Quorum{R: int(*r), W: int(*w), N: int(*n)}
	if err := quorum.Validate(); err != nil {
		entry.WithError(err).Fatal("invalid quorum configuration")
	}

	store, err := storage.NewFileManager(*dataDir, model.NodeID(*nodeID))
	if err != nil {
		entry.WithError(err).Fatal("could not open storage")
	}

	selfHandle := grpcpeer.Handle(*rpcAddr)
	transport := grpcpeer.NewTransport()
	defer transport.Close()

	d, err := node.New(node.Config{
		Self:          model.NodeID(*nodeID),
		SelfHandle:    selfHandle,
		R:             int(*r),
		W:             int(*w),
		N:             int(*n),
		Store:         store,
		Peer:          transport,
		QuorumTimeout: 2 * time.Second,
		Log:           entry,
	})
	if err != nil {
		entry.WithError(err).Fatal("could not build node dispatcher")
	}

	grpcServer, err := grpcpeer.Listen(*rpcAddr, grpcpeer.NewServer(d.Inbox()))
	if err != nil {
		entry.WithError(err).Fatal("could not start peer RPC server")
	}
	defer grpcServer.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(runDone)
	}()

	mode, remote, err := startupFrom(*bootstrap, *joinAddr, *recoverAddr)
	if err != nil {
		entry.WithError(err).Fatal("invalid startup flags")
	}
	startCtx, startCancel := context.WithTimeout(ctx, 10*time.Second)
	defer startCancel()
	if err := d.Start(startCtx, mode, grpcpeer.Handle(remote)); err != nil {
		entry.WithError(err).Fatal("startup failed")
	}
	entry.Info("node started")

	handler := clientapi.NewHandler(d, entry.WithField("component", "clientapi"))
	httpServer := &http.Server{Addr: *httpAddr, Handler: handler.Router()}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			entry.WithError(err).Fatal("client REST server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
		entry.Info("shutting down")
	case <-runDone:
		entry.Info("node left the ring, shutting down")
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	cancel()
}

func startupFrom(bootstrap bool, joinAddr, recoverAddr string) (membership.StartupMode, string, error) {
	switch {
	case bootstrap:
		return membership.StartBootstrap, "", nil
	case joinAddr != "":
		return membership.StartJoin, joinAddr, nil
	case recoverAddr != "":
		return membership.StartRecover, recoverAddr, nil
	default:
		return 0, "", fmt.Errorf("exactly one of -bootstrap, -join or -recover must be given")
	}
}
