package main

import (
	"errors"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

func newEvaluateCmd() *cobra.Command {
	var fromStdin bool
	cmd := &cobra.Command{
		Use:   "evaluate [text]",
		Short: "Run one proposal through the gate and print the outcome",
		Long:  "Evaluates a single proposal against the configured ledger. With an empty DATABASE_URL\nthe ledger is in-memory and the result is not persisted.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var content string
			switch {
			case fromStdin:
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				content = string(b)
			case len(args) == 1:
				content = args[0]
			default:
				return errors.New("evaluate: provide the proposal as an argument or with --stdin")
			}

			ctx := cmd.Context()
			rt, err := loadRuntime(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close(ctx) }()

			out, err := rt.kernel.Evaluate(ctx, strings.TrimSuffix(content, "\n"))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "Read the proposal from standard input")
	return cmd
}
