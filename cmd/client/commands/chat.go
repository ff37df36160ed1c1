package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tofu_chat/internal/errs"
	"tofu_chat/internal/protocol/tofu"
	"tofu_chat/internal/service/app"
	"tofu_chat/internal/service/directory"
	"tofu_chat/internal/service/keystore"
	"tofu_chat/internal/service/resolver"
	"tofu_chat/internal/service/session"
	"tofu_chat/internal/service/transport"
	"tofu_chat/internal/utils/log"
)

func chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open the chat UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var cl closers
			defer cl.close()

			idRepo, err := openIdentityRepo(ctx, &cl)
			if err != nil {
				return err
			}
			trustStore, err := openTrustStore(ctx, &cl)
			if err != nil {
				return err
			}

			ui := app.NewApp(cfg.Username)
			dir := directory.NewClient(cfg.Server.URL, nil, cfg.Directory.Timeout)
			serverURL := cfg.Server.URL

			ctl := session.New(session.Deps{
				Username:  cfg.Username,
				KeyStore:  keystore.NewKeyStore(idRepo, cfg.Passphrase),
				Registrar: dir,
				Resolver:  resolver.NewResolver(dir, tofu.NewVerifier(trustStore, ui, ui), ui),
				Dial: func(ctx context.Context, username string) (session.Transport, error) {
					conn, err := transport.Dial(ctx, serverURL, username)
					if err != nil {
						return nil, err
					}
					return conn, nil
				},
				Display:     ui,
				BindHeaders: cfg.Envelope.BindHeaders,
			})
			ui.SetSender(ctl)
			defer ctl.Close()

			startErr := make(chan error, 1)
			go func() {
				if err := ctl.Start(ctx); err != nil {
					log.Error("session failed to start", zap.Error(err))
					startErr <- err
					ui.Stop()
					return
				}
				ui.SetFingerprint(ctl.Fingerprint())

				select {
				case <-ctl.Done():
					log.Warn("disconnected from server")
				case <-ctx.Done():
				}
				ui.Stop()
			}()

			if err := ui.Run(); err != nil {
				return err
			}

			select {
			case err := <-startErr:
				cmd.PrintErrln(errs.Describe(err))
				return err
			default:
				return nil
			}
		},
	}
	return cmd
}
