package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/courseforge/gatekeeper/auth"
	"github.com/courseforge/gatekeeper/rbac"
)

const mePath = "/auth/me"

type identity struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Email       string   `json:"email" yaml:"email"`
	Role        string   `json:"role" yaml:"role"`
	Avatar      string   `json:"avatar,omitempty" yaml:"avatar,omitempty"`
	Permissions []string `json:"permissions" yaml:"permissions"`
}

func newIdentity(u auth.User) identity {
	id := identity{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role.String(), Avatar: u.Avatar}
	id.Permissions = []string{}
	for _, p := range rbac.AllPermissions() {
		if rbac.Can(&u, p) {
			id.Permissions = append(id.Permissions, p.String())
		}
	}
	return id
}

func newWhoamiCmd(a *app) *cobra.Command {
	var (
		output string
		remote bool
	)
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the current user, role and permissions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openClient(a.cfg)
			if err != nil {
				return err
			}
			defer c.close()

			user := c.machine.State().User()
			if user == nil {
				return errNotLoggedIn
			}
			if remote {
				var fresh auth.User
				if err := c.gw.Get(cmd.Context(), mePath, &fresh); err != nil {
					if c.expired() {
						return fmt.Errorf("session expired; log in again: %w", err)
					}
					return err
				}
				if err := c.machine.UpdateUser(fresh); err != nil {
					return err
				}
				user = &fresh
			}
			return writeIdentity(cmd.OutOrStdout(), output, newIdentity(*user))
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text, json or yaml")
	cmd.Flags().BoolVar(&remote, "remote", false, "Confirm the session with the server and refresh the stored profile")
	return cmd
}

func writeIdentity(w io.Writer, format string, id identity) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(id)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(id); err != nil {
			return err
		}
		return enc.Close()
	case "text", "":
		fmt.Fprintf(w, "ID:          %s\n", id.ID)
		fmt.Fprintf(w, "Name:        %s\n", id.Name)
		fmt.Fprintf(w, "Email:       %s\n", id.Email)
		fmt.Fprintf(w, "Role:        %s\n", id.Role)
		fmt.Fprintf(w, "Permissions: %s\n", strings.Join(id.Permissions, ", "))
		return nil
	default:
		return fmt.Errorf("unknown output format %q (valid: text, json, yaml)", format)
	}
}
