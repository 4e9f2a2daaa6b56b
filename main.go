package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"guestbook/config"
	"guestbook/logger"
	"guestbook/relay"
	"guestbook/store"
	"guestbook/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	logger.SetLevel(cfg.LogLevel)
	logger.Info("starting application")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The sink must be reachable at startup; running with a broken store
	// would silently lose every submission.
	st, err := store.Open(ctx, cfg.MongoURI, cfg.MongoDB, cfg.MongoColl)
	if err != nil {
		log.Fatalf("mongo init failed: %v", err)
	}
	defer st.Close(context.Background())

	relaySrv := relay.New(fmt.Sprintf("%s:%d", cfg.UDPHost, cfg.UDPPort), cfg.UDPBufferSize, cfg.MaxMessageLen, st)
	if err := relaySrv.Start(); err != nil {
		log.Fatalf("udp relay start failed: %v", err)
	}
	go func() {
		if err := relaySrv.Serve(ctx); err != nil {
			logger.Error("udp relay stopped", err)
		}
	}()

	fwd, err := web.NewUDPForwarder(cfg.RelayAddr)
	if err != nil {
		log.Fatalf("udp forwarder init failed: %v", err)
	}
	defer fwd.Close()

	srv := web.NewServer(cfg.TemplatesDir, cfg.StaticDir, cfg.MaxMessageLen, fwd, st)

	feed := web.NewFeed(st, srv.Hub(), cfg.FeedInterval)
	go feed.Run(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
		_ = relaySrv.Stop()
		// Allow a short drain period
		time.Sleep(500 * time.Millisecond)
		os.Exit(0)
	}()

	addr := fmt.Sprintf("%s:%d", cfg.HTTPHost, cfg.HTTPPort)
	logger.Info("http server listening", logger.FieldKV("addr", addr))
	if err := http.ListenAndServe(addr, srv); err != nil {
		logger.Error("http server error", err)
	}
}
