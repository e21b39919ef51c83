package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

func newRequestCmd(a *app) *cobra.Command {
	var data string
	cmd := &cobra.Command{
		Use:   "request METHOD PATH",
		Short: "Send an authenticated request through the gateway",
		Long: `Send one request with the stored bearer token and print the JSON response.
A 401 ends the local session.`,
		Example: `  gatekeeper request GET /cursos
  gatekeeper request POST /admin/sessions/revoke --data '{"user_id":"6"}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			method := strings.ToUpper(args[0])
			switch method {
			case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			default:
				return fmt.Errorf("unsupported method %q", args[0])
			}

			var in any
			if data != "" {
				if !json.Valid([]byte(data)) {
					return fmt.Errorf("--data is not valid JSON")
				}
				in = json.RawMessage(data)
			}

			c, err := openClient(a.cfg)
			if err != nil {
				return err
			}
			defer c.close()

			var out json.RawMessage
			if err := c.gw.Do(cmd.Context(), method, args[1], in, &out); err != nil {
				if c.expired() {
					return fmt.Errorf("session expired; log in again: %w", err)
				}
				return err
			}
			if len(out) == 0 {
				return nil
			}
			var buf bytes.Buffer
			if err := json.Indent(&buf, out, "", "  "); err != nil {
				return err
			}
			buf.WriteByte('\n')
			_, err = buf.WriteTo(cmd.OutOrStdout())
			return err
		},
	}
	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body")
	return cmd
}
