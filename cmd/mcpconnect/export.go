// ABOUTME: Offline transcript export command
// ABOUTME: Renders a stored chat straight from the database without a server

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/2389/mcpconnect/internal/export"
	"github.com/2389/mcpconnect/internal/store"
)

func exportCmd() *cobra.Command {
	var (
		formatName string
		outPath    string
	)

	cmd := &cobra.Command{
		Use:   "export <chat-id>",
		Short: "Export a chat transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := export.ParseFormat(formatName)
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			st, err := store.NewSQLiteStore(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer func() { _ = st.Close() }()

			out, err := renderChat(cmd.Context(), st, args[0], format)
			if err != nil {
				return err
			}

			if outPath == "" || outPath == "-" {
				_, err = os.Stdout.Write(out)
				return err
			}
			if err := os.WriteFile(outPath, out, 0644); err != nil {
				return fmt.Errorf("writing %s: %w", outPath, err)
			}
			fmt.Printf("wrote %s (%d bytes)\n", outPath, len(out))
			return nil
		},
	}

	cmd.Flags().StringVarP(&formatName, "format", "f", "markdown", "output format: text, markdown, json, html")
	cmd.Flags().StringVarP(&outPath, "out", "o", "-", "output file, - for stdout")
	return cmd
}

// renderChat assembles a transcript from storage and renders it.
func renderChat(ctx context.Context, st store.Store, chatID string, format export.Format) ([]byte, error) {
	chat, err := st.GetChat(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("loading chat %s: %w", chatID, err)
	}

	messages, err := st.GetChatMessages(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}

	transcript := export.Transcript{Chat: *chat}
	for _, m := range messages {
		transcript.Messages = append(transcript.Messages, *m)
	}
	if conn, err := st.GetConnection(ctx, chat.ConnectionID); err == nil {
		transcript.Connection = conn
	}
	if usage, err := st.GetChatUsage(ctx, chatID); err == nil {
		transcript.Usage = usage
	}

	return export.Render(format, transcript)
}
