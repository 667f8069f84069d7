package main

import (
	"context"
	"os"

	"github.com/dmitrijs2005/linkledger/internal/logging"
	"github.com/dmitrijs2005/linkledger/internal/server"
	"github.com/dmitrijs2005/linkledger/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	logger := logging.New(os.Stdout, cfg.LogLevel)

	if err := server.NewApp(cfg, logger).Run(ctx); err != nil {
		logger.Error(ctx, "server stopped", "error", err)
		os.Exit(1)
	}

}
