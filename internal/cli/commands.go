package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"localchat-go/internal/service"
	"localchat-go/pkg/sse"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:3000"

// chatOptions 是 chat 命令的参数。
type chatOptions struct {
	conversationID string
	projectID      string
	model          string
	thinking       bool
	hideThinking   bool
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	var server string

	rootCmd := &cobra.Command{
		Use:           "chatctl",
		Short:         "Command-line client for the local chat server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&server, "server", envOr("LOCALCHAT_SERVER", defaultServer), "Chat server base URL")

	clientFn := func() *Client { return NewClient(server) }
	rootCmd.AddCommand(newChatCmd(clientFn))
	rootCmd.AddCommand(newConversationsCmd(clientFn))
	rootCmd.AddCommand(newHistoryCmd(clientFn))
	rootCmd.AddCommand(newTitleCmd(clientFn))
	return rootCmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// newChatCmd creates the chat command
func newChatCmd(clientFn func() *Client) *cobra.Command {
	opts := &chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat [MESSAGE]",
		Short: "Send a message and stream the reply",
		Long: `Send a message and stream the reply to the terminal.
Without MESSAGE, starts an interactive session that keeps the conversation across turns.
Example: chatctl chat "Explain goroutines" --thinking`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client := clientFn()
			if len(args) == 1 {
				_, err := runChat(ctx, client, cmd.OutOrStdout(), opts, args[0])
				return err
			}
			return runInteractive(ctx, client, cmd.InOrStdin(), cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.conversationID, "conversation", "c", "", "Continue an existing conversation")
	cmd.Flags().StringVarP(&opts.projectID, "project", "p", "", "Create the conversation inside a project")
	cmd.Flags().StringVarP(&opts.model, "model", "m", "", "Model ID (server default if empty)")
	cmd.Flags().BoolVar(&opts.thinking, "thinking", false, "Enable extended thinking")
	cmd.Flags().BoolVar(&opts.hideThinking, "hide-thinking", false, "Do not print thinking output")
	return cmd
}

// runChat 发送一条消息并渲染回复，返回回复所属的会话 ID。
func runChat(ctx context.Context, client *Client, out io.Writer, opts *chatOptions, message string) (string, error) {
	renderer := NewRenderer(out, !opts.hideThinking)
	acc := &sse.Accumulator{OnFrame: renderer.Render}

	req := service.ChatRequest{
		Message:         message,
		Model:           opts.model,
		ConversationID:  opts.conversationID,
		ProjectID:       opts.projectID,
		ThinkingEnabled: opts.thinking,
	}
	if err := client.Chat(ctx, req, acc); err != nil {
		return "", err
	}
	if acc.Failed() {
		return "", errors.New(acc.Err)
	}
	if !acc.Done {
		return "", errors.New("stream ended before the reply was complete")
	}
	return acc.ConversationID, nil
}

// runInteractive 逐行读取输入，同一会话内连续对话，输入 exit 或 EOF 结束。
func runInteractive(ctx context.Context, client *Client, in io.Reader, out io.Writer, opts *chatOptions) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprintln(out, labelStyle.Render("Interactive chat. Type 'exit' to quit."))
	for {
		fmt.Fprint(out, labelStyle.Render("> "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		conversationID, err := runChat(ctx, client, out, opts, line)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintln(out, errorStyle.Render("Error: "+err.Error()))
			continue
		}
		if opts.conversationID == "" {
			opts.conversationID = conversationID
			// 只在新建会话时指定项目
			opts.projectID = ""
		}
		fmt.Fprintln(out)
	}
}

// newConversationsCmd creates the conversations command
func newConversationsCmd(clientFn func() *Client) *cobra.Command {
	var archived bool
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"ls"},
		Short:   "List conversations, most recently updated first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			convs, err := clientFn().Conversations(cmd.Context(), archived)
			if err != nil {
				return err
			}
			t := table.New().
				Border(lipgloss.NormalBorder()).
				BorderStyle(statsStyle).
				Headers("ID", "TITLE", "MODEL", "MESSAGES", "UPDATED")
			for _, c := range convs {
				t.Row(c.ID, truncateTitle(c.Title, 48), c.Model, fmt.Sprint(c.MessageCount), c.UpdatedAt.Local().Format("2006-01-02 15:04"))
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return nil
		},
	}
	cmd.Flags().BoolVar(&archived, "archived", false, "List archived conversations instead")
	return cmd
}

// newHistoryCmd creates the history command
func newHistoryCmd(clientFn func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "history CONVERSATION_ID",
		Short: "Print the messages of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conv, err := clientFn().Conversation(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, labelStyle.Render(conv.Title))
			for _, m := range conv.Messages {
				fmt.Fprintf(out, "\n%s\n", labelStyle.Render(m.Role))
				if m.ThinkingContent != nil && *m.ThinkingContent != "" {
					fmt.Fprintln(out, thinkingStyle.Render(*m.ThinkingContent))
				}
				fmt.Fprintln(out, m.Content)
				if m.InputTokens != nil && m.OutputTokens != nil {
					fmt.Fprintf(out, "%s\n", statsStyle.Render(fmt.Sprintf("%d in / %d out tokens", *m.InputTokens, *m.OutputTokens)))
				}
			}
			return nil
		},
	}
}

// newTitleCmd creates the title command
func newTitleCmd(clientFn func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "title CONVERSATION_ID",
		Short: "Generate a title for a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := clientFn().GenerateTitle(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			suffix := ""
			if !result.Generated {
				suffix = statsStyle.Render(" (unchanged)")
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.Title+suffix)
			return nil
		},
	}
}

func truncateTitle(s string, n int) string {
	runes := []rune(strings.ReplaceAll(s, "\n", " "))
	if len(runes) <= n {
		return string(runes)
	}
	return string(runes[:n-1]) + "…"
}
