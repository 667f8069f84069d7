package main

import (
	"context"
	"os"

	"github.com/dmitrijs2005/linkledger/internal/logging"
	"github.com/dmitrijs2005/linkledger/internal/relay"
	"github.com/dmitrijs2005/linkledger/internal/relay/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	logger := logging.New(os.Stdout, cfg.LogLevel).With("relay", cfg.Name)

	if err := relay.NewApp(cfg, logger).Run(ctx); err != nil {
		logger.Error(ctx, "relay stopped", "error", err)
		os.Exit(1)
	}

}
