package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	goRoam "github.com/MrEthical07/goRoam"
	"github.com/spf13/cobra"
)

func newMintLinkCmd(c *cli) *cobra.Command {
	var clientIP string

	cmd := &cobra.Command{
		Use:   "mint-link <identity-id> <site-id>",
		Short: "Print a remote-login URL for an identity",
		Long: `Mint a signed one-time login URL for the identity on its site. With IP
binding enforced, the URL only works from --ip.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, c.env, c.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			link, err := a.engine.GenerateLoginURL(goRoam.WithClientIP(ctx, clientIP), args[0], args[1])
			if err != nil {
				return fmt.Errorf("failed to mint link: %w", err)
			}
			fmt.Fprintln(c.out, link)
			return nil
		},
	}
	cmd.Flags().StringVar(&clientIP, "ip", "", "client IP the link is bound to")
	return cmd
}

func newCheckConfigCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration without starting anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := c.env.EngineConfig()
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			sites, err := c.env.SiteList()
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if !cfg.Settings.SecretRotated() {
				fmt.Fprintln(c.out, "warning: roaming secret key is the shipped default")
			}
			fmt.Fprintf(c.out, "configuration ok: domain=%s root_site=%s sites=%d\n",
				cfg.Platform.NetworkDomain, cfg.Platform.RootSiteID, len(sites))
			return nil
		},
	}
}

func newResetAttemptsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-attempts <identity-id>",
		Short: "Clear the remote-login attempt counter for an identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, c.env, c.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			attempts, err := a.engine.RemoteLoginAttempts(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to read attempts: %w", err)
			}
			if err := a.engine.ResetRemoteLoginAttempts(ctx, args[0]); err != nil {
				return fmt.Errorf("failed to reset attempts: %w", err)
			}
			fmt.Fprintf(c.out, "cleared %d attempts for %s\n", attempts, args[0])
			return nil
		},
	}
}

func newDrainCleanupCmd(c *cli) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "drain-cleanup",
		Short: "Remove identities queued for deferred removal after unlink",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, c.env, c.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			_, err = drainCleanup(ctx, a, c.out, dryRun)
			return err
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list pending removals without deleting")
	return cmd
}

// drainCleanup removes every identity queued by unlink and clears its queue
// entry. Identities already gone count as removed. Identities linked again
// since they were queued are kept and only their entry is cleared.
func drainCleanup(ctx context.Context, a *app, out io.Writer, dryRun bool) (int, error) {
	pending, err := a.cleanup.Pending(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending removals: %w", err)
	}

	removed := 0
	for _, p := range pending {
		if dryRun {
			fmt.Fprintf(out, "would remove %s (site %s)\n", p.IdentityID, p.SiteID)
			continue
		}
		current, err := a.ids.IdentityByID(ctx, p.IdentityID)
		switch {
		case err == nil && current.MainID != "":
			if err := a.cleanup.Done(ctx, p.IdentityID, p.SiteID); err != nil {
				return removed, fmt.Errorf("failed to clear queue entry: %w", err)
			}
			fmt.Fprintf(out, "kept %s (site %s): linked again\n", p.IdentityID, p.SiteID)
			continue
		case err != nil && !errors.Is(err, goRoam.ErrIdentityNotFound):
			a.logger.Error().Err(err).Str("identity_id", p.IdentityID).Msg("lookup failed")
			continue
		}
		if err := a.ids.RemoveIdentity(ctx, p.IdentityID); err != nil && !errors.Is(err, goRoam.ErrIdentityNotFound) {
			a.logger.Error().Err(err).Str("identity_id", p.IdentityID).Msg("remove failed")
			continue
		}
		if err := a.cleanup.Done(ctx, p.IdentityID, p.SiteID); err != nil {
			return removed, fmt.Errorf("failed to clear queue entry: %w", err)
		}
		removed++
	}
	if !dryRun {
		fmt.Fprintf(out, "removed %d of %d pending identities\n", removed, len(pending))
	}
	return removed, nil
}
