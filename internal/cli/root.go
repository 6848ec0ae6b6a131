package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dwizi/groundbot/internal/app"
	"github.com/dwizi/groundbot/internal/assistant"
	"github.com/dwizi/groundbot/internal/config"
	"github.com/dwizi/groundbot/internal/mcpserver"
)

func NewRoot(logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "groundbot",
		Short:         "groundbot answers Discord mentions with cited, grounded replies",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCommand(logger))
	root.AddCommand(newAskCommand(logger))
	root.AddCommand(newMCPCommand(logger))
	root.AddCommand(newVersionCommand())

	return root
}

func newServeCommand(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Discord bot and the liveness endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			runtime, err := app.New(config.FromEnv(), logger)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runtime.Run(ctx)
		},
	}
}

func newAskCommand(logger *slog.Logger) *cobra.Command {
	var (
		userID     string
		authorName string
		timeout    time.Duration
		verbose    bool
	)
	cmd := &cobra.Command{
		Use:   "ask [message]",
		Short: "Run one message through the answering pipeline and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pipeline, err := app.NewPipeline(config.FromEnv(), logger)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			reply := pipeline.Assistant.Handle(ctx, assistant.Message{
				RequestID:  uuid.NewString(),
				UserID:     userID,
				AuthorName: authorName,
				Text:       strings.Join(args, " "),
			})
			if !reply.Send() {
				return errors.New("reply was dropped")
			}
			if verbose {
				cmd.Printf("[%s intent=%s sources=%d]\n", reply.Kind, reply.Intent, len(reply.Sources))
			}
			cmd.Println(reply.Text)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "cli", "user id for quota and memory")
	cmd.Flags().StringVar(&authorName, "author", "使用者", "author display name")
	cmd.Flags().DurationVar(&timeout, "timeout", 90*time.Second, "overall timeout")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print reply kind, intent and source count")
	return cmd
}

func newMCPCommand(logger *slog.Logger) *cobra.Command {
	var httpAddr string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the evidence tools over MCP (stdio, or streamable HTTP with --http)",
		RunE: func(cmd *cobra.Command, args []string) error {
			pipeline, err := app.NewPipeline(config.FromEnv(), logger)
			if err != nil {
				return err
			}
			server := mcpserver.New(pipeline.MCPDependencies(logger.With("component", "mcp")))

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if strings.TrimSpace(httpAddr) == "" {
				return server.Run(ctx)
			}
			return serveHTTP(ctx, httpAddr, server.Handler(), logger)
		},
	}
	cmd.Flags().StringVar(&httpAddr, "http", "", "listen address for streamable HTTP instead of stdio")
	return cmd
}

func serveHTTP(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("mcp server started", "transport", "http", "addr", addr)
		errCh <- server.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("mcp http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(app.Version)
		},
	}
}
