package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goforj/cachez"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	folder string
}

// resolvedFolder returns --folder when given, else the configured persist folder.
func (o *rootOptions) resolvedFolder() string {
	if o.folder != "" {
		return o.folder
	}
	return cachez.GetPersistFolder()
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "cachez",
		Short:         "Inspect the cachez persist folder",
		Long:          "Inspect, prune and purge results stored by cachez persisted functions.",
		Example:       "cachez ls\ncachez prune --older-than 24h\ncachez --folder /tmp/cache purge",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.folder, "folder", "", "persist folder (default $CACHEZ_PERSIST_FOLDER or ~/.cachez)")

	root.AddCommand(
		newPathCmd(opts),
		newListCmd(opts),
		newPruneCmd(opts),
		newPurgeCmd(opts),
	)
	return root
}

func newPathCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the persist folder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), opts.resolvedFolder())
			return nil
		},
	}
}

func newListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List persisted entries, oldest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, err := cachez.ListPersisted(cmd.Context(), opts.resolvedFolder())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			var total uint64
			for _, e := range entries {
				total += uint64(e.Size)
				fmt.Fprintf(out, "%s\t%s\t%s\n", e.Name, humanize.Bytes(uint64(e.Size)), humanize.Time(e.ModTime))
			}
			fmt.Fprintf(out, "%d entries, %s\n", len(entries), humanize.Bytes(total))
			return nil
		},
	}
}

func newPruneCmd(opts *rootOptions) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete entries older than a duration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			n, err := cachez.PrunePersisted(cmd.Context(), opts.resolvedFolder(), olderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d entries\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "remove entries whose age exceeds this duration")
	_ = cmd.MarkFlagRequired("older-than")
	return cmd
}

func newPurgeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete every persisted entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := cachez.PurgePersisted(cmd.Context(), opts.resolvedFolder())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d entries\n", n)
			return nil
		},
	}
}
