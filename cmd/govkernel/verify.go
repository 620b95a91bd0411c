package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Re-verify the persisted ledger and refusal log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			// Loading already verifies both chains; a broken chain fails here.
			rt, err := loadRuntime(ctx, cmd.ErrOrStderr())
			if err != nil {
				return fmt.Errorf("verification failed: %w", err)
			}
			defer func() { _ = rt.Close(ctx) }()

			l, rl := rt.kernel.Ledger(), rt.kernel.Refusals()
			head, n := l.Head()
			if n == 0 {
				head = rt.anchor.Anchor().RootHash
			}
			state, err := rt.kernel.StateHash()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"ok":           true,
				"entries":      n,
				"ledger_head":  head,
				"refusals":     rl.Len(),
				"refusal_head": rl.Head(),
				"state_hash":   state,
			})
		},
	}
}
