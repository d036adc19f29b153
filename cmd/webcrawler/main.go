// Package main wires together the crawler service binary.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/arnegrd/webcrawler/internal/config"
	"github.com/arnegrd/webcrawler/internal/server"
)

func main() {
	cfgPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}

	app, err := server.Build(context.Background(), cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build application failed: %v\n", err)
		os.Exit(1)
	}

	if err := app.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "application exited with error: %v\n", err)
		os.Exit(1)
	}
}
