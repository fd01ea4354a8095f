package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/keg/internal/drift"
	"github.com/ZebulonRouseFrantzich/keg/internal/record"
	"github.com/ZebulonRouseFrantzich/keg/internal/service"
	"github.com/ZebulonRouseFrantzich/keg/internal/shell"
)

// errVerifyFailed is returned by verify when files are missing or modified.
var errVerifyFailed = errors.New("installed files do not match the record")

func newInstallCmd(a *app) *cobra.Command {
	var hostKey string

	cmd := &cobra.Command{
		Use:   "install <package|manifest>...",
		Short: "Install packages",
		Long: `Install packages from manifest files or from the registered taps.

A package may be pinned as name@version. Several packages are installed
in parallel.

Example:
  keg install multi-query
  keg install ./Formula/multi-query.lua
  keg install multi-query@0.0.8 --platform macos/x86_64`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inst, err := a.installer(hostKey)
			if err != nil {
				return err
			}

			results, err := inst.InstallAll(cmd.Context(), args)
			for _, res := range results {
				if res == nil {
					continue
				}
				printInstalled(cmd.OutOrStdout(), res)
				printCompletionHint(cmd.Context(), cmd.OutOrStdout(), res.Record)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&hostKey, "platform", "", "install for os/arch instead of this host")
	return cmd
}

func printInstalled(w io.Writer, res *service.Result) {
	switch {
	case res.Unchanged:
		fmt.Fprintf(w, "%s %s is already installed\n", res.Package, res.Version)
	case res.Previous != "" && res.Previous != res.Version:
		fmt.Fprintf(w, "Upgraded %s %s -> %s (%d files)\n", res.Package, res.Previous, res.Version, len(res.Record.Files))
	default:
		fmt.Fprintf(w, "Installed %s %s (%d files)\n", res.Package, res.Version, len(res.Record.Files))
	}
}

// printCompletionHint tells the user where their shell's completion went.
func printCompletionHint(ctx context.Context, w io.Writer, rec *record.Record) {
	detection := shell.DetectShell(ctx)
	if !detection.Shell.IsValid() {
		return
	}
	kind, ok := shell.CompletionKind(detection.Shell)
	if !ok {
		return
	}
	for _, f := range rec.FilesOfKind(kind) {
		fmt.Fprintf(w, "  %s completion: %s\n", detection.Shell, f.Path)
	}
}

func newUninstallCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "uninstall <package>...",
		Aliases: []string{"remove", "rm"},
		Short:   "Remove installed packages",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inst, err := a.installer("")
			if err != nil {
				return err
			}

			var errs []error
			for _, pkg := range args {
				rec, err := inst.Uninstall(cmd.Context(), pkg)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Uninstalled %s %s (%d files)\n", rec.Package, rec.Version, len(rec.Files))
			}
			return errors.Join(errs...)
		},
	}
}

func newUpgradeCmd(a *app) *cobra.Command {
	var (
		opts    service.UpgradeOptions
		hostKey string
	)

	cmd := &cobra.Command{
		Use:   "upgrade <package>",
		Short: "Replace an installed package with another version",
		Long: `Upgrade an installed package.

The new version is downloaded and verified before any installed file is
touched. Reinstalling the installed version requires --force and moving
to a lower version requires --allow-downgrade.

Example:
  keg upgrade multi-query
  keg upgrade multi-query --to 0.0.7 --allow-downgrade`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inst, err := a.installer(hostKey)
			if err != nil {
				return err
			}
			res, err := inst.Upgrade(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			printInstalled(cmd.OutOrStdout(), res)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.To, "to", "", "target version")
	cmd.Flags().StringVar(&opts.Manifest, "manifest", "", "install from this manifest file")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "reinstall when the version is unchanged")
	cmd.Flags().BoolVar(&opts.AllowDowngrade, "allow-downgrade", false, "allow installing a lower version")
	cmd.Flags().StringVar(&hostKey, "platform", "", "install for os/arch instead of this host")
	return cmd
}

func newVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <package>",
		Short: "Check installed files against their record",
		Long: `Compare every file of an installed package with the digest recorded
at install time.

Exit codes:
  0  All files match (external overrides are reported as warnings)
  1  Files are missing or modified`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inst, err := a.installer("")
			if err != nil {
				return err
			}
			report, err := inst.Verify(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), drift.FormatReport(report))
			if report.Broken() {
				return fmt.Errorf("%s: %w", args[0], errVerifyFailed)
			}
			return nil
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Show installed packages",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			inst, err := a.installer("")
			if err != nil {
				return err
			}
			recovered, err := inst.RecoverAll(cmd.Context())
			if err != nil {
				a.logger.Warn("could not recover interrupted operations", "error", err)
			}
			for _, pkg := range recovered {
				fmt.Fprintf(cmd.ErrOrStderr(), "Recovered interrupted operation on %s\n", pkg)
			}
			records, err := inst.List()
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No packages installed.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PACKAGE\tVERSION\tPLATFORM\tFILES")
			for _, rec := range records {
				fmt.Fprintf(tw, "%s\t%s\t%s/%s\t%d\n", rec.Package, rec.Version, rec.Variant.OS, rec.Variant.Arch, len(rec.Files))
			}
			return tw.Flush()
		},
	}
}
