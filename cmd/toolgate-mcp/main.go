// Command toolgate-mcp bridges stdio MCP clients to a running toolgate
// daemon over the line protocol. Host and port come from the usual config
// files and TOOLGATE_* environment variables.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/toolgate/toolgate/internal/client"
	"github.com/toolgate/toolgate/internal/config"
	"github.com/toolgate/toolgate/pkg/mcpserver/gateway"
)

func main() {
	workDir, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}
	cfg, err := config.Load(workDir)
	if err != nil {
		log.Fatal(err)
	}

	lc := client.NewLineClient(cfg.Host, cfg.LinePort)
	defer lc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	s, err := gateway.NewServer(ctx, lc)
	cancel()
	if err != nil {
		log.Fatal(err)
	}

	if err := server.ServeStdio(s); err != nil {
		log.Fatal(err)
	}
}
