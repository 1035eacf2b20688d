package main

import (
	"fmt"
	"os"

	"github.com/memfold/memfold/internal/mcp"
)

func main() {
	serverURL := os.Getenv("MEMFOLD_SERVER_URL")
	if serverURL == "" {
		serverURL = "http://localhost:8742"
	}

	server := mcp.NewServer(serverURL, os.Getenv("MEMFOLD_API_KEY"))
	if err := server.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "mcp server error: %s\n", err)
		os.Exit(1)
	}
}
