package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/linkledger/internal/client/cli"
	"github.com/dmitrijs2005/linkledger/internal/client/config"
	"github.com/dmitrijs2005/linkledger/internal/logging"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	// the REPL owns stdout
	logger := logging.New(os.Stderr, cfg.LogLevel)

	if err := cli.NewApp(cfg, logger).Run(ctx); err != nil {
		log.Fatalf("%v", err)
	}

}
