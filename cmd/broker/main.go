package main

import (
	"context"
	"log"

	"github.com/dmitrijs2005/docbroker/internal/broker"
	"github.com/dmitrijs2005/docbroker/internal/broker/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := broker.NewApp(ctx, cfg)

	if err != nil {
		log.Printf("%v", err)
		return
	}

	app.Run(ctx)

}
