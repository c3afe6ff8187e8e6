package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ytget/mediaporter/internal/account"
	"github.com/ytget/mediaporter/internal/session"
)

func newLoginCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in by scanning a QR code with the mobile app",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := newDeps(settings, log)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			ch, err := d.auth.StartQRLogin(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Open this link as a QR code and scan it with the app:\n\n  %s\n\nExpires at %s\n",
				ch.URL, ch.ExpiresAt.Local().Format("15:04:05"))

			var last session.QRStatus
			sess, err := d.auth.WaitQRLogin(ctx, ch, func(st session.QRState) {
				if st.Status != last {
					last = st.Status
					fmt.Fprintf(out, "Status: %s\n", st.Status)
				}
			})
			if err != nil {
				return err
			}

			st, err := d.account.Status(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, account.FormatReport(st, sess.CookieRef))
			return nil
		},
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show login and VIP status of the saved cookies",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := newDeps(settings, log)
			if err != nil {
				return err
			}
			if _, err := os.Stat(settings.CookieFile); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Not logged in (no cookie file at %s)\n", settings.CookieFile)
				return nil
			}
			if err := d.account.LoadCookies(settings.CookieFile); err != nil {
				return err
			}
			st, err := d.account.Status(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), account.FormatReport(st, settings.CookieFile))
			return nil
		},
	}
}
