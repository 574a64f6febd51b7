package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/carebot"
	"github.com/aretw0/carebot/internal/cli"
	"github.com/aretw0/carebot/internal/presentation/tui"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the assistant in the terminal",
	Long: `Starts an interactive conversation. Type "exit" to leave and "/reset" to
start over. With --json, reads one {"text": ...} object per line and writes one
reply object per line.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := buildRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		jsonMode, _ := cmd.Flags().GetBool("json")
		sessionID, _ := cmd.Flags().GetString("session")
		if sessionID == "" {
			sessionID = uuid.NewString()
		}

		opts := cli.ChatOptions{SessionID: sessionID, JSON: jsonMode, Render: tui.Plain}
		if !jsonMode && term.IsTerminal(int(os.Stdout.Fd())) {
			width, _, err := term.GetSize(int(os.Stdout.Fd()))
			if err != nil {
				width = tui.DefaultWidth
			}
			opts.Render = tui.NewRenderer(width)
			tui.PrintBanner(cmd.OutOrStdout(), carebot.Version)
			rt.Logger.Debug("chat started", "session", sessionID)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		err = cli.Chat(ctx, rt.Engine, cmd.InOrStdin(), cmd.OutOrStdout(), opts)
		if ctx.Err() != nil {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().String("session", "", "Conversation id to resume (default: a new one)")
	chatCmd.Flags().Bool("json", false, "NDJSON input and output")
}
