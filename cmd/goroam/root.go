package main

import (
	"fmt"
	"io"

	"github.com/MrEthical07/goRoam/internal/envconfig"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type cli struct {
	envFile string
	env     *envconfig.Env
	logger  zerolog.Logger
	out     io.Writer
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "goroam",
		Short: "Cross-site session roaming server",
		Long: `goroam carries an authenticated session across the tenants of a
multi-site platform that share one parent domain. It serves the roaming
middleware, remote-login links and account linking over HTTP, and ships
maintenance commands for operators.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			env, err := envconfig.Load(c.envFile)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			c.env = env
			c.out = cmd.OutOrStdout()
			c.logger = env.Logger(cmd.ErrOrStderr())
			return nil
		},
	}

	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "dotenv file read before the environment (ignored when missing)")

	root.AddCommand(
		newServeCmd(c),
		newMintLinkCmd(c),
		newCheckConfigCmd(c),
		newResetAttemptsCmd(c),
		newDrainCleanupCmd(c),
	)
	return root
}
