package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sys/unix"

	"github.com/supplychain/notifyconsole/internal/config"
	"github.com/supplychain/notifyconsole/internal/httpapi"
	"github.com/supplychain/notifyconsole/internal/metrics"
	"github.com/supplychain/notifyconsole/internal/notify"
	"github.com/supplychain/notifyconsole/internal/snapshot"
	"github.com/supplychain/notifyconsole/internal/stream"
)

const (
	pipelineBuffer  = 256
	shutdownTimeout = 10 * time.Second
)

func main() {
	configPath := flag.String("config", "", "optional YAML config file (defaults to NOTIFYCONSOLE_CONFIG)")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.SetPrefix("notifyconsole: ")

	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, reading from environment")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	pipeline := metrics.New()
	backend, err := snapshot.BuildFromDSN(cfg.SnapshotTarget())
	if err != nil {
		log.Fatalf("failed to initialize snapshot backend: %v", err)
	}
	defer func() {
		if err := snapshot.Close(backend); err != nil {
			log.Printf("close snapshot backend: %v", err)
		}
	}()

	store := notify.NewStore(notify.StoreOptions{
		Persistence:     persistenceOf(backend),
		MaxStored:       cfg.Store.MaxStored,
		HighlightWindow: cfg.Store.HighlightWindow,
		Logger:          log.Default(),
		Observer:        pipeline,
	})

	transport, err := cfg.Stream.NewTransport()
	if err != nil {
		log.Fatalf("failed to initialize transport: %v", err)
	}
	connectorOpts := cfg.Stream.ConnectorOptions(transport)
	connectorOpts.Logger = log.Default()
	connectorOpts.Observer = pipeline
	connector, err := stream.NewConnector(connectorOpts)
	if err != nil {
		log.Fatalf("failed to initialize connector: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), unix.SIGINT, unix.SIGTERM)
	defer stop()

	// Live websocket clients read from the relay, which only sees events
	// after the store has merged them.
	relay := stream.NewRelay(pipeline)
	events, unsubscribe := connector.Subscribe(pipelineBuffer)
	var piping sync.WaitGroup
	piping.Add(1)
	go func() {
		defer piping.Done()
		stream.Pipe(ctx, events, store, relay)
	}()
	if err := connector.Start(ctx); err != nil {
		log.Fatalf("failed to start connector: %v", err)
	}

	server := httpapi.NewServerWithConfig(store, relay, pipeline, httpapi.ServerConfig{
		RateLimitRPS:   cfg.HTTP.RateLimitRPS,
		RateLimitBurst: cfg.HTTP.RateLimitBurst,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		History:        connector,
		Logger:         log.Default(),
	})
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("notifyconsole listening on %s (transport=%s topic=%s)", cfg.ListenAddr, cfg.Stream.Transport, connector.Topic())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Println("shutting down")
	case err := <-serveErr:
		if err != nil {
			log.Printf("server failed: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("forced shutdown: %v", err)
	}
	connector.Stop()
	unsubscribe()
	piping.Wait()
	relay.Close()
	log.Printf("notifyconsole stopped with %d notifications stored", store.Len())
}

// persistenceOf keeps a nil backend a nil interface so the store runs
// without persistence.
func persistenceOf(backend snapshot.Backend) notify.Persistence {
	if backend == nil {
		return nil
	}
	return backend
}
