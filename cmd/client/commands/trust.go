package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func trustCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trust",
		Short: "Inspect or reset pinned peer fingerprints",
	}
	cmd.AddCommand(trustListCmd(), trustResetCmd())
	return cmd
}

func trustListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pinned fingerprints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var cl closers
			defer cl.close()

			store, err := openTrustStore(cmd.Context(), &cl)
			if err != nil {
				return err
			}
			records, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No pinned peers")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PEER\tFINGERPRINT\tFIRST SEEN")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\n", r.Peer, r.Fingerprint, r.FirstSeenAt.Local().Format(time.DateTime))
			}
			return w.Flush()
		},
	}
}

func trustResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <peer>",
		Short: "Forget the pinned fingerprint of peer; the next contact prompts again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var cl closers
			defer cl.close()

			store, err := openTrustStore(cmd.Context(), &cl)
			if err != nil {
				return err
			}
			removed, err := store.Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !removed {
				fmt.Fprintf(cmd.OutOrStdout(), "No pinned fingerprint for %s\n", args[0])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed pinned fingerprint for %s\n", args[0])
			return nil
		},
	}
}
