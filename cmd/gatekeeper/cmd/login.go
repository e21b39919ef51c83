package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/courseforge/gatekeeper/auth"
)

func newLoginCmd(a *app) *cobra.Command {
	var (
		email         string
		password      string
		passwordStdin bool
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and persist the session",
		Long: `Exchange email and password for a session token. The session is stored
in the configured backend and reused by later commands until it is
revoked or you log out.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if passwordStdin || password == "" {
				p, err := readPassword(cmd.InOrStdin())
				if err != nil {
					return err
				}
				password = p
			}

			c, err := openClient(a.cfg)
			if err != nil {
				return err
			}
			defer c.close()

			sess, err := c.machine.Login(cmd.Context(), email, password)
			if err != nil {
				return fmt.Errorf("login failed (%s): %w", auth.KindOf(err), err)
			}
			u := sess.User
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s <%s> (%s)\n", u.Name, u.Email, u.Role)
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Account password (prefer --password-stdin)")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")
	return cmd
}

func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
