// Command phpconsistent-mcp serves trace analysis tools over the Model
// Context Protocol.
package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/phobologic/phpconsistent/internal/config"
	handlers "github.com/phobologic/phpconsistent/internal/server"
)

var version = "dev"

func main() {
	if err := newCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var (
		mode       string
		addr       string
		path       string
		configPath string
	)

	cmd := &cobra.Command{
		Use:           "phpconsistent-mcp",
		Short:         "MCP server checking PHP Xdebug traces against docblocks",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// stdout carries the stdio transport, so logs go to stderr.
			zcfg := zap.NewProductionConfig()
			zcfg.OutputPaths = []string{"stderr"}
			logger, err := zcfg.Build()
			if err != nil {
				return fmt.Errorf("creating logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			cfg, err := config.Load(configPath)
			if err != nil {
				logger.Error("loading config", zap.Error(err))
				return err
			}

			s := handlers.New("PHPConsistent", version, handlers.NewHandlers(cfg, logger))
			return serve(s, mode, addr, path, logger)
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "stdio", "Transport mode: stdio or sse")
	cmd.Flags().StringVar(&addr, "addr", ":8080", "HTTP listen address for SSE")
	cmd.Flags().StringVar(&path, "path", "/mcp/sse", "HTTP path for SSE connections")
	cmd.Flags().StringVar(&configPath, "config", config.DefaultPath, "Configuration file")
	return cmd
}

func serve(s *server.MCPServer, mode, addr, ssePath string, logger *zap.Logger) error {
	switch mode {
	case "stdio":
		if err := server.ServeStdio(s); err != nil {
			logger.Error("server error", zap.Error(err))
			return err
		}
		return nil
	case "sse":
		sseServer := server.NewSSEServer(s)
		messagePath := messagePathFor(ssePath)

		mux := http.NewServeMux()
		mux.Handle(ssePath, sseServer.SSEHandler())
		mux.Handle(messagePath, sseServer.MessageHandler())

		logger.Info("starting SSE server",
			zap.String("addr", addr),
			zap.String("sse", ssePath),
			zap.String("message", messagePath))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	default:
		return fmt.Errorf("unknown mode: %s", mode)
	}
}

// messagePathFor derives the message endpoint from the SSE path:
// "/mcp/sse" becomes "/mcp/message", anything else gets "/message" appended.
func messagePathFor(ssePath string) string {
	messagePath := strings.Replace(ssePath, "/sse", "/message", 1)
	if messagePath == ssePath {
		messagePath = strings.TrimRight(ssePath, "/") + "/message"
	}
	return messagePath
}
