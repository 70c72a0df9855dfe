package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rfqlabs/rfq-relayer/pkg/app/api"
	"github.com/rfqlabs/rfq-relayer/pkg/config"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := api.NewServer(cfg).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "API server exited with error: %v\n", err)
		os.Exit(1)
	}
}
