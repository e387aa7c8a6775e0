package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/yukikurage/trade-erp-api/internal/mcpserver"
)

var mcpActor uint64

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve board and communication tools over MCP stdio",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

Every tool runs as the user given by --actor and only reaches that user's
teams: list_task_lists, list_tasks, move_task, move_task_list, delete_task,
get_communication, resend_communication.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if mcpActor == 0 {
			return fmt.Errorf("--actor is required")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cfg, true)
		if err != nil {
			return err
		}
		if _, err := a.auth.GetUser(cmd.Context(), mcpActor); err != nil {
			return fmt.Errorf("actor %d: %w", mcpActor, err)
		}

		srv := mcpserver.NewServer(a.board, a.communications, mcpActor, version)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("running MCP server: %w", err)
		}
		return nil
	},
}

func init() {
	mcpCmd.Flags().Uint64Var(&mcpActor, "actor", 0, "id of the user the tools act as")
	rootCmd.AddCommand(mcpCmd)
}
