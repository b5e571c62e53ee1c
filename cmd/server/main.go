package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/GriffinCanCode/readerfleet/internal/infrastructure/config"
	"github.com/GriffinCanCode/readerfleet/internal/infrastructure/server"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (environment variables override it)")
	port := flag.String("port", "", "Server port")
	driver := flag.String("driver", "", "Driver mode: appium or simulator")
	dev := flag.Bool("dev", false, "Development logging")
	flag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *port != "" {
		cfg.Server.Port = *port
	}
	if *driver != "" {
		cfg.Driver.Mode = *driver
	}
	if *dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Run(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-sigChan:
		log.Println("Shutting down gracefully, pausing running instances...")
		if err := srv.Close(); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	case err := <-errChan:
		srv.Close()
		log.Fatalf("Server error: %v", err)
	}
}
