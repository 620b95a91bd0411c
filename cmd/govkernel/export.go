package main

import (
	"github.com/spf13/cobra"

	"github.com/TrueAlpha-spiral/governance-kernel/pkg/archive"
)

func newExportCmd() *cobra.Command {
	var check string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Archive a verified snapshot of the ledger",
		Long:  "Verifies both chains and writes a canonical snapshot to the store selected by\nARCHIVE_STORAGE_TYPE (fs, s3, gcs). Prints the snapshot's content hash.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := loadRuntime(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close(ctx) }()

			store, err := archive.NewStoreFromEnv(ctx)
			if err != nil {
				return err
			}
			exp := archive.NewExporter(store, rt.anchor.Anchor(), rt.policy.Version, rt.anchor.Verifier(), rt.logger).
				WithProofVerifier(rt.anchor.ProofVerifier())

			if check != "" {
				snap, err := exp.Fetch(ctx, check)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"hash":        check,
					"verified":    true,
					"entries":     len(snap.Entries),
					"refusals":    len(snap.Refusals),
					"ledger_head": snap.LedgerHead,
					"merkle_root": snap.MerkleRoot,
				})
			}

			hash, err := exp.Export(ctx, rt.kernel.Ledger(), rt.kernel.Refusals())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{"hash": hash})
		},
	}
	cmd.Flags().StringVar(&check, "check", "", "Fetch and re-verify an archived snapshot by hash instead of exporting")
	return cmd
}
