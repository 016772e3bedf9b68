// payflux-api serves the engine over HTTP for interactive use: single-event
// application, account snapshots, and CSV run uploads.
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

	"payflux.org/internal/auth"
	"payflux.org/internal/engine"
	"payflux.org/internal/httpapi"
	"payflux.org/internal/obs"
	"payflux.org/internal/store/pg"
)

var (
	version = "0.4.0"
	commit  = "dev"
)

func main() {
	log.SetFlags(0)

	tokens := auth.NewTokenService(os.Getenv("PAYFLUX_JWT_SECRET"))

	// Mint a token for operators and exit: payflux-api mint <subject>
	if len(os.Args) > 1 && os.Args[1] == "mint" {
		subject := "ops"
		if len(os.Args) > 2 {
			subject = os.Args[2]
		}
		token, err := tokens.Issue(subject, 24*time.Hour)
		if err != nil {
			log.Fatalf("mint token: %v", err)
		}
		fmt.Println(token)
		return
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	opts := httpapi.Options{Tokens: tokens, Version: version}
	var store *pg.Store
	if dsn := os.Getenv("PAYFLUX_PG_DSN"); dsn != "" {
		var err error
		store, err = pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		opts.Runs = store
	}

	api := httpapi.New(engine.New(), opts)

	addr := os.Getenv("PAYFLUX_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting payflux-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if store != nil {
		_ = store.Close()
	}
	log.Println("Stopped")
}
