package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/netboxlabs/diode/internal/changeset"
	"github.com/netboxlabs/diode/internal/config"
	"github.com/netboxlabs/diode/internal/domain"
	"github.com/netboxlabs/diode/internal/handler"
	"github.com/netboxlabs/diode/internal/repository/sqlite"
	"github.com/netboxlabs/diode/internal/service"
)

var version = "dev"

func main() {
	// Command line flags override config file values
	addr := flag.String("addr", "", "HTTP listen address")
	dbPath := flag.String("db", "", "SQLite database path")
	configPath := flag.String("config", "", "config file path")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting diode server...")

	var cfg *config.Config
	var cfgPath string
	var err error
	if *configPath != "" {
		cfg, cfgPath, err = config.LoadFromPath(*configPath)
	} else {
		cfg, cfgPath, err = config.Load()
	}
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfgPath != "" {
		log.Printf("Config loaded: %s", cfgPath)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if cfg.Auth.DiodeToNetBoxKey == "" {
		log.Fatal("diode_to_netbox_api_key is not configured")
	}

	// Initialize the object type registry and SQLite store
	reg := domain.NewRegistry()
	store, err := sqlite.New(cfg.Database.Path, reg)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()
	log.Printf("Database opened: %s", cfg.Database.Path)

	// Initialize event bus with a logging subscriber
	eventBus := service.NewEventBus()
	eventChan := make(chan service.Event, 100)
	eventBus.Subscribe(eventChan)
	go func() {
		for event := range eventChan {
			log.Printf("Event: %s %v", event.Type, event.Payload)
		}
	}()

	// Initialize services
	applier := changeset.NewApplier(reg, store)
	ingestionSvc := service.NewIngestionService(applier, eventBus)
	objectStateSvc := service.NewObjectStateService(reg, store)

	// Initialize handler and routes
	h := handler.NewDiodeHandler(ingestionSvc, objectStateSvc, version)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/diode/apply-change-set/", h.ApplyChangeSet)
	mux.HandleFunc("GET /api/diode/object-state/", h.ObjectState)
	mux.HandleFunc("GET /api/diode/status/", h.Status)

	// Apply middleware
	finalHandler := handler.Chain(mux,
		handler.Recover,
		handler.Logger,
		handler.Auth(handler.APIKeys{
			WriteKey: cfg.Auth.DiodeToNetBoxKey,
			ReadKey:  cfg.Auth.NetBoxToDiodeKey,
		}),
	)

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      finalHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	close(eventChan)

	log.Println("Server stopped")
}
