package main

import (
	"github.com/joho/godotenv"

	"poly-copy-trader/internal/cli"
)

func main() {
	// Optional .env for local runs; real deployments use the environment.
	_ = godotenv.Load()

	cli.Execute()
}
