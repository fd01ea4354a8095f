package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/keg/internal/tap"
)

func (a *app) taps() (*tap.Manager, error) {
	cfg, err := a.load()
	if err != nil {
		return nil, err
	}
	return tap.NewManager(cfg.TapsDir(), a.logger), nil
}

func newTapCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tap",
		Short: "Manage git repositories of manifests",
		Long: `A tap is a git repository of manifests. Packages installed by name are
looked up in every tap, at the repository root or under Formula/.`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <name> <url>",
			Short: "Clone a tap",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				taps, err := a.taps()
				if err != nil {
					return err
				}
				t, err := taps.Add(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added tap %s (%s) at %s\n", t.Name, t.URL, shortHash(t.Head))
				return nil
			},
		},
		&cobra.Command{
			Use:   "update [name]...",
			Short: "Pull the latest manifests (all taps by default)",
			RunE: func(cmd *cobra.Command, args []string) error {
				taps, err := a.taps()
				if err != nil {
					return err
				}
				names := args
				if len(names) == 0 {
					all, err := taps.List()
					if err != nil {
						return err
					}
					for _, t := range all {
						names = append(names, t.Name)
					}
				}

				var errs []error
				for _, name := range names {
					changed, err := taps.Update(cmd.Context(), name)
					if err != nil {
						errs = append(errs, err)
						continue
					}
					status := "already up to date"
					if changed {
						status = "updated"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", name, status)
				}
				return errors.Join(errs...)
			},
		},
		&cobra.Command{
			Use:     "remove <name>",
			Aliases: []string{"rm"},
			Short:   "Delete a tap",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				taps, err := a.taps()
				if err != nil {
					return err
				}
				if err := taps.Remove(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed tap %s\n", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:     "list",
			Aliases: []string{"ls"},
			Short:   "Show taps",
			Args:    cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				taps, err := a.taps()
				if err != nil {
					return err
				}
				all, err := taps.List()
				if err != nil {
					return err
				}
				if len(all) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No taps.")
					return nil
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "TAP\tURL\tHEAD")
				for _, t := range all {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", t.Name, t.URL, shortHash(t.Head))
				}
				return tw.Flush()
			},
		},
	)
	return cmd
}

func shortHash(h string) string {
	if len(h) > 7 {
		return h[:7]
	}
	return h
}
