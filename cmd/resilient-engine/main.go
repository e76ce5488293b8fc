package main

import (
	"context"

	"github.com/masa-finance/resilient-engine/internal/api"
	"github.com/masa-finance/resilient-engine/internal/config"
)

func main() {
	ec := config.ReadConfig()

	if err := api.Start(context.Background(), ec); err != nil {
		panic(err)
	}
}
