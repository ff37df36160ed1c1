package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"tofu_chat/internal/cryptographic/fingerprint"
	"tofu_chat/internal/service/keystore"
)

func fingerprintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fingerprint",
		Short: "Print your identity fingerprint, creating the identity if needed",
		RunE: func(cmd *cobra.Command, args []string) error {
			var cl closers
			defer cl.close()

			repo, err := openIdentityRepo(cmd.Context(), &cl)
			if err != nil {
				return err
			}
			id, err := keystore.NewKeyStore(repo, cfg.Passphrase).EnsureIdentity(cmd.Context(), cfg.Username)
			if err != nil {
				return err
			}
			fp, err := fingerprint.Compute(id.PublicKey)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Fingerprint: %s\n", fp)
			return nil
		},
	}
	return cmd
}
