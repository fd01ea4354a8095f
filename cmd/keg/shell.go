package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/keg/internal/manifest"
	"github.com/ZebulonRouseFrantzich/keg/internal/shell"
)

func newShellCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Set up shell integration",
	}

	var opts shell.SetupOptions
	setup := &cobra.Command{
		Use:   "setup [bash|zsh|fish]",
		Short: "Add keg to your shell's rc file",
		Long: `Add a line to your shell's rc file that puts keg's binary directory on
PATH and its completion directory on the completion search path.

Without an argument the shell is detected from $SHELL or the parent
process.`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"bash", "zsh", "fish"},
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := shell.NewManager(shell.Config{})
			if err != nil {
				return err
			}

			var result *shell.SetupResult
			if len(args) == 1 {
				result, err = mgr.SetupIntegration(shell.ShellType(args[0]), opts)
			} else {
				result, err = mgr.DetectAndSetup(cmd.Context(), opts)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case opts.DryRun:
				fmt.Fprintf(out, "Would add to %s:\n  %s\n", result.RCFile, result.ActivationCommand)
			case result.Added:
				fmt.Fprintf(out, "Added keg to %s\n", result.RCFile)
				if result.BackupPath != "" {
					fmt.Fprintf(out, "Backup: %s\n", result.BackupPath)
				}
				fmt.Fprintln(out, "Restart your shell to apply.")
			default:
				fmt.Fprintf(out, "%s already sets up keg\n", result.RCFile)
			}
			return nil
		},
	}
	setup.Flags().BoolVar(&opts.Force, "force", false, "add the line even if one is present")
	setup.Flags().BoolVar(&opts.Backup, "backup", false, "back up the rc file first")
	setup.Flags().BoolVarP(&opts.DryRun, "dry-run", "n", false, "show the change without writing")

	cmd.AddCommand(setup)
	return cmd
}

func newShellEnvCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "shell-env <bash|zsh|fish>",
		Short:     "Print shell statements that activate keg's directories",
		Hidden:    true,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"bash", "zsh", "fish"},
		RunE: func(cmd *cobra.Command, args []string) error {
			sh := shell.ShellType(args[0])
			if err := shell.ValidateShell(sh); err != nil {
				return err
			}
			layout, err := a.layout()
			if err != nil {
				return err
			}

			var completionDir string
			if kind, ok := shell.CompletionKind(sh); ok {
				completionDir = layout[kind]
			}
			env, err := shell.GenerateEnv(sh, layout[manifest.KindBinary], completionDir)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), env)
			return nil
		},
	}
}
