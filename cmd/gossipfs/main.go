// Command gossipfs runs a single peer of the gossip-based file-sharing
// overlay: it binds the P2P listener, starts the HTTP status endpoint,
// begins the gossip and peer-reaper background tasks, and then drives the
// interactive shell on stdin/stdout until the operator exits.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"gossipfs/internal/config"
	"gossipfs/internal/httpapi"
	"gossipfs/internal/node"
	"gossipfs/internal/shell"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	n, err := node.New(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize node:", err)
		os.Exit(1)
	}

	if err := n.Listen(); err != nil {
		n.Log.Error("failed to bind P2P listener", "err", err)
		os.Exit(1)
	}
	defer n.Close()

	n.Log.Info("peer starting", "host", cfg.Host, "p2p_port", cfg.P2PPort, "http_port", cfg.HTTPPort, "base_path", cfg.BasePath)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: httpapi.New(n.Self, n.Peers, n.Metadata, n.Blobs).Handler(),
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			n.Log.Error("HTTP status endpoint failed to bind", "err", err)
			os.Exit(1)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go n.Run(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	shellDone := make(chan struct{})
	go func() {
		shell.Run(n, os.Stdin, os.Stdout)
		close(shellDone)
	}()

	select {
	case <-shellDone:
	case <-sigCh:
		n.Log.Info("shutdown signal received")
		if err := n.CleanExit(); err != nil {
			n.Log.Warn("clean exit failed", "err", err)
		}
	}

	cancel()
	httpServer.Shutdown(context.Background())
}
