// Command lectio is the entry point for the course assistant.
// It indexes lecture material into a persistent vector store and answers
// student questions grounded in that material, via CLI commands or an
// HTTP server.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/courseai/lectio-go/cmd/lectio/commands"
)

func main() {
	// .env is optional: absence is fine, real env vars always win.
	_ = godotenv.Load()

	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
