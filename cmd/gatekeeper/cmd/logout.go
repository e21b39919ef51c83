package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

const logoutPath = "/auth/logout"

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and clear stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openClient(a.cfg)
			if err != nil {
				return err
			}
			defer c.close()

			if !c.machine.State().IsAuthenticated() {
				fmt.Fprintln(cmd.OutOrStdout(), "Not logged in")
				return nil
			}
			// Telling the server is best effort; the local session ends either way.
			if err := c.gw.Post(cmd.Context(), logoutPath, nil, nil); err != nil {
				slog.Warn("server logout failed", slog.String("error", err.Error()))
			}
			if err := c.machine.Logout(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}
