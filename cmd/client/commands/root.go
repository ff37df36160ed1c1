package commands

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"tofu_chat/internal/config"
	"tofu_chat/internal/utils/log"
)

var cfg *config.Config

func Execute() error {
	root := &cobra.Command{
		Use:          "tofuchat",
		Short:        "End-to-end encrypted chat with trust on first use",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			if err := cfg.ValidateClient(); err != nil {
				return err
			}

			output := cfg.Log.File
			// The chat UI owns the terminal.
			if output == "" && cmd.Name() == "chat" {
				output = filepath.Join(cfg.Storage.Dir, "tofuchat.log")
			}
			return log.Init(cfg.Log.Level, cfg.Log.Development, output)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			log.Sync()
		},
	}

	config.BindFlags(root.PersistentFlags())

	root.AddCommand(chatCmd(), fingerprintCmd(), trustCmd())
	return root.Execute()
}
