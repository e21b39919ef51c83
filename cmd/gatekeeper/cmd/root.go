package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/courseforge/gatekeeper/internal/config"
	"github.com/courseforge/gatekeeper/internal/logging"
)

// app carries the resolved configuration to every subcommand.
type app struct {
	cfgFile string
	cfg     *config.Config
}

// NewRootCmd builds the full command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:   "gatekeeper",
		Short: "gatekeeper manages the dashboard session from the command line",
		Long: `Log in to the course-production backend, keep the session across runs,
inspect the current user and role, send authenticated requests and check
which routes the current session may enter.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := config.New()
			if err := config.BindFlags(v, cmd.Flags()); err != nil {
				return err
			}
			cfg, err := config.Load(v, a.cfgFile)
			if err != nil {
				return err
			}
			if _, err := logging.Setup(logging.Options{
				Level:  cfg.Log.Level,
				Format: cfg.Log.Format,
				Output: cmd.ErrOrStderr(),
			}); err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "Config file (default: ./gatekeeper.yaml or $HOME/.gatekeeper/gatekeeper.yaml)")
	pf.String("base-url", "", "Backend base URL")
	pf.Duration("timeout", 0, "Per-request timeout")
	pf.String("storage", "", "Credential backend: bolt, memory or redis")
	pf.String("storage-path", "", "BBolt file for the bolt backend")
	pf.String("namespace", "", "Namespace of the persisted credential keys")
	pf.String("seal-secret", "", "Encrypt the persisted session with a key derived from this secret")
	pf.String("redis-addr", "", "Redis address for the redis backend")
	pf.String("redis-password", "", "Redis password")
	pf.Int("redis-db", 0, "Redis database number")
	pf.String("log-level", "", "Log level: "+logging.LevelNames())
	pf.String("log-format", "", "Log format: text or json")

	rootCmd.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newRequestCmd(a),
		newCheckCmd(a),
		newDevserverCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

func Execute() {
	err := NewRootCmd().Execute()
	if err != nil {
		os.Exit(1)
	}
}
