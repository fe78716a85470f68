package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/starfielddb/starfielddb/internal/mcp"
	"github.com/starfielddb/starfielddb/internal/server"
	"github.com/starfielddb/starfielddb/pkg/engine"
)

func main() {
	httpAddr := flag.String("http-addr", ":9092", "Address and port for the REST API server (e.g. :9092 or 127.0.0.1:9092)")
	dataDir := flag.String("data-dir", "starfield_data", "Directory for the manifest file")
	configPath := flag.String("config", "", "Path to an optional YAML configuration file")
	authToken := flag.String("auth-token", "", "Bearer token for the REST API (overrides the config file; empty disables auth)")
	mcpMode := flag.Bool("mcp", false, "Serve the MCP tool interface over stdio instead of HTTP")

	flag.Parse()

	// The config file is read twice on purpose: engine policies bind at
	// Open time, while the server reads its own section (auth, declared
	// fields) in NewServer.
	opts := engine.DefaultOptions(*dataDir)
	if *configPath != "" {
		cfg, err := server.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("Could not load the configuration: %v", err)
		}
		opts.TargetScanBudget = cfg.Server.TargetScanBudget
		opts.RayScanBudget = cfg.Server.RayScanBudget
		opts.MaxPickDistance = cfg.Server.MaxPickDistance
		opts.OffloadDisabled = cfg.Server.OffloadDisabled
	}

	eng, err := engine.Open(opts)
	if err != nil {
		log.Fatalf("Could not open the engine: %v", err)
	}

	if *mcpMode {
		// Stdio belongs to the MCP client; the process lives until the
		// client closes the pipe.
		if err := mcp.Serve(context.Background(), eng); err != nil {
			log.Printf("MCP server stopped: %v", err)
		}
		if err := eng.Close(); err != nil {
			log.Printf("Engine shutdown error: %v", err)
		}
		return
	}

	srv, err := server.NewServer(eng, *httpAddr, *configPath, *authToken)
	if err != nil {
		log.Fatalf("Could not create the server: %v", err)
	}

	// Channel listening for the interrupt signal (Ctrl+C).
	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	// Run the HTTP server in a goroutine so main can block on the signal.
	go func() {
		if err := srv.Run(); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-shutdownChan

	// Stop accepting requests first, then flush the manifest.
	srv.Shutdown()
	if err := eng.Close(); err != nil {
		log.Printf("Engine shutdown error: %v", err)
	}
}
