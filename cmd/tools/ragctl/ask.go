package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/docchat/backend/internal/model/chat"
)

func newAskCmd() *cobra.Command {
	var (
		products bool
		history  []string
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Resolve one question exactly as the chat endpoint would",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			r, err := a.NewResolver(ctx)
			if err != nil {
				return err
			}

			conv := buildConversation(history, strings.Join(args, " "), products)
			resolved, idx := r.Resolve(ctx, conv)
			return printTurn(cmd, resolved.Turns[idx])
		},
	}

	cmd.Flags().BoolVar(&products, "products", false, "search products instead of answering")
	cmd.Flags().StringArrayVar(&history, "history", nil, "earlier user message, oldest first (repeatable)")
	return cmd
}

// buildConversation lays out earlier messages as already-answered turns
// followed by the question and its pending reply.
func buildConversation(history []string, question string, productMode bool) chat.Conversation {
	turns := make([]chat.Turn, 0, 2*len(history)+2)
	for _, msg := range history {
		turns = append(turns, chat.UserTurn(msg), chat.Turn{Role: chat.RoleAssistant})
	}
	turns = append(turns, chat.UserTurn(question), chat.PendingAssistantTurn())

	return chat.Conversation{SessionID: "ragctl", Turns: turns, ProductMode: productMode}
}

func printTurn(cmd *cobra.Command, turn chat.Turn) error {
	out := cmd.OutOrStdout()
	if len(turn.ProductResult) == 0 {
		fmt.Fprintln(out, turn.Content)
		return nil
	}
	for _, p := range turn.ProductResult {
		fmt.Fprintf(out, "- %s | %s | %s\n  %s\n", p.Name, p.Price, p.MerchantDomain, p.DirectURL)
	}
	return nil
}
