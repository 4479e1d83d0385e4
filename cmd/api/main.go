package main

import (
	"context"
	"database/sql"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"google.golang.org/grpc"

	"mandate.org/internal/httpapi"
	"mandate.org/internal/obs"
	"mandate.org/internal/registry"
	"mandate.org/internal/store/pg"
	"mandate.org/internal/stream"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	// The registry backs onto PostgreSQL when a DSN is configured and
	// falls back to the in-memory store otherwise.
	var (
		reg registry.Service
		db  *sql.DB
	)
	if dsn := os.Getenv("MANDATE_PG_DSN"); dsn != "" {
		store, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		reg = store
		db = store.DB()
	} else {
		reg = registry.NewInMemory()
	}

	broker := stream.New()
	probe := httpapi.ReadyProbe{DB: db}
	api := httpapi.New(probe, version, reg, broker)

	httpAddr := envOr("MANDATE_HTTP_ADDR", ":8080")
	grpcAddr := envOr("MANDATE_GRPC_ADDR", ":9090")

	srv := &http.Server{
		Addr:              httpAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	grpcServer := grpc.NewServer()
	httpapi.NewGRPCHealthServer(probe).Register(grpcServer)

	log.Printf("Starting mandate-api %s on %s (grpc %s)", version, httpAddr, grpcAddr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()
	go func() {
		listener, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		if err := grpcServer.Serve(listener); err != nil {
			log.Fatalf("grpc serve: %v", err)
		}
	}()

	obs.SetReady(true)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	obs.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	grpcServer.GracefulStop()
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
