package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/keg/internal/config"
	"github.com/ZebulonRouseFrantzich/keg/internal/install"
	"github.com/ZebulonRouseFrantzich/keg/internal/platform"
	"github.com/ZebulonRouseFrantzich/keg/internal/service"
)

// app carries global flags and lazily built collaborators for one
// invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer

	verbose    bool
	configPath string

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "keg",
		Short: "Install prebuilt command-line tools from declarative manifests",
		Long: `keg installs prebuilt release archives described by manifests.

It resolves the archive for this platform, verifies it against the
manifest's pinned SHA-256 digest and places the binary, man page and
shell completions into the configured directories.

Commands:
  install    Install packages from manifests or taps
  uninstall  Remove installed packages
  upgrade    Replace an installed package with another version
  verify     Check installed files against their record
  list       Show installed packages
  tap        Manage git repositories of manifests
  manifest   Lint and promote manifests
  shell      Set up shell integration`,
		Version:       Version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default: $KEG_DIR/config.yaml)")

	root.AddCommand(
		newInstallCmd(a),
		newUninstallCmd(a),
		newUpgradeCmd(a),
		newVerifyCmd(a),
		newListCmd(a),
		newTapCmd(a),
		newManifestCmd(a),
		newShellCmd(a),
		newShellEnvCmd(a),
		newConfigCmd(a),
	)
	return root
}

// load reads the configuration and sets up logging.
func (a *app) load() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	level := slog.LevelInfo
	if a.verbose || cfg.Debug {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: level}))
	a.logger.Debug("loaded config", "keg_dir", cfg.KegDir, "prefix", cfg.Prefix)

	a.cfg = cfg
	return cfg, nil
}

// installer builds the install pipeline. A non-empty hostKey ("os/arch")
// installs for that platform instead of the running one.
func (a *app) installer(hostKey string) (*service.Installer, error) {
	cfg, err := a.load()
	if err != nil {
		return nil, err
	}

	opts, err := service.OptionsFromConfig(cfg, a.logger)
	if err != nil {
		return nil, err
	}
	if hostKey != "" {
		host, err := platform.ParseKey(hostKey)
		if err != nil {
			return nil, fmt.Errorf("invalid --platform: %w", err)
		}
		opts.Detector = platform.StaticDetector{Info: host}
	}
	return service.New(opts)
}

// layout returns the configured destination directories.
func (a *app) layout() (install.Layout, error) {
	cfg, err := a.load()
	if err != nil {
		return nil, err
	}
	layout := install.DefaultLayout(cfg.Prefix).Merge(cfg.DirOverrides())
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	return layout, nil
}
