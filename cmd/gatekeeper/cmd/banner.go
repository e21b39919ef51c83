package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X ...cmd.Version=...".
var Version = "dev"

const banner = `
   ____       _       _
  / ___| __ _| |_ ___| | _____  ___ _ __   ___ _ __
 | |  _ / _` + "`" + ` | __/ _ \ |/ / _ \/ _ \ '_ \ / _ \ '__|
 | |_| | (_| | ||  __/   <  __/  __/ |_) |  __/ |
  \____|\__,_|\__\___|_|\_\___|\___| .__/ \___|_|
                                   |_|
`

func printBanner(w io.Writer) {
	fmt.Fprintf(w, "\x1b[34m%s\x1b[0m", banner)
	fmt.Fprintf(w, "\x1b[32m  Session dev server - Version %s\x1b[0m\n\n", Version)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the gatekeeper version",
		Args:  cobra.NoArgs,
		// Printing the version needs no configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gatekeeper %s\n", Version)
		},
	}
}
