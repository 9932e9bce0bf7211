package main

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"

	"spamfightbot/internal/config"
	"spamfightbot/internal/pairing"
	"spamfightbot/internal/storage"

	"github.com/spf13/cobra"
)

func pairsCmd(opts *cliOptions) *cobra.Command {
	var storeDSN string
	cmd := &cobra.Command{
		Use:   "pairs",
		Short: "Inspect and edit stored group/front pairings offline",
	}
	cmd.PersistentFlags().StringVar(&storeDSN, "store", "", "store file or DSN, overrides the configuration")

	open := func(ctx context.Context) (*pairing.Registry, func(), error) {
		cfg, err := config.Load(opts.configPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load config: %w", err)
		}
		if storeDSN != "" {
			cfg.Store.DSN = storeDSN
		}
		store, err := storage.Open(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open store: %w", err)
		}
		return pairing.NewRegistry(store), func() { _ = store.Close() }, nil
	}

	cmd.AddCommand(pairsListCmd(open))
	cmd.AddCommand(pairsRemoveCmd(open))
	return cmd
}

type registryOpener func(ctx context.Context) (*pairing.Registry, func(), error)

func pairsListCmd(open registryOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every pairing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, closeStore, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			pairs, err := registry.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(pairs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No pairings.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "GROUP\tFRONT")
			for _, p := range pairs {
				fmt.Fprintf(tw, "%d\t%d\n", p.GroupID, p.FrontID)
			}
			return tw.Flush()
		},
	}
}

func pairsRemoveCmd(open registryOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <group-id>",
		Short: "Forget the pairing of a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			groupID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid group id %q", args[0])
			}

			registry, closeStore, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			if _, ok, err := registry.Lookup(cmd.Context(), groupID); err != nil {
				return err
			} else if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "Group %d is not paired.\n", groupID)
				return nil
			}
			if err := registry.Unpair(cmd.Context(), groupID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed pairing of %d.\n", groupID)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "SpamFightBot %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		},
	}
}
