package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/keg/internal/fetch"
	"github.com/ZebulonRouseFrantzich/keg/internal/manifest"
)

var errLintFailed = errors.New("manifest lint failed")

func newManifestCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Lint and promote manifests",
	}
	cmd.AddCommand(newManifestLintCmd(a), newManifestPromoteCmd(a))
	return cmd
}

func newManifestLintCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "lint <file>...",
		Short: "Validate manifest files",
		Long: `Decode and validate manifests (.lua, .yaml, .yml or .json) and report
whether each is RELEASABLE or still a DRAFT.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				m, err := manifest.LoadFile(cmd.Context(), path)
				if err != nil {
					failed++
					fmt.Fprintf(out, "FAIL  %s: %s\n", path, manifest.FormatError(err, a.verbose))
					continue
				}
				fmt.Fprintf(out, "ok    %s: %s %s %s\n", path, m.Name, displayVersion(m.Version), m.Lifecycle(""))
				if missing := m.DraftVariants(); len(missing) > 0 {
					fmt.Fprintf(out, "      missing digests: %s\n", strings.Join(missing, ", "))
				}
			}
			if failed > 0 {
				return fmt.Errorf("%w: %d of %d", errLintFailed, failed, len(args))
			}
			return nil
		},
	}
}

func displayVersion(v string) string {
	if v == "" {
		return "(no version)"
	}
	return v
}

func newManifestPromoteCmd(a *app) *cobra.Command {
	var (
		digestFlags []string
		release     string
		measure     bool
		output      string
	)

	cmd := &cobra.Command{
		Use:   "promote <file>",
		Short: "Fill in digests and turn a DRAFT manifest into a releasable one",
		Long: `Promote a DRAFT manifest by pinning the SHA-256 digest of every variant.

Digests are given per variant as os/arch=hex (or os=hex when the os has a
single variant). With --fetch, variants still missing a digest are
downloaded and measured. The result is written as a Lua formula.

Example:
  keg manifest promote multi-query.lua --release 0.0.8 \
      --sha256 macos/x86_64=<hex> --sha256 linux/x86_64=<hex> -o Formula/multi-query.lua
  keg manifest promote multi-query.lua --release 0.0.8 --fetch`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "" && output != "-" && filepath.Ext(output) != ".lua" {
				return fmt.Errorf("promoted manifests are written as Lua; use a .lua output path")
			}

			m, err := manifest.LoadFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			digests, err := parseDigests(digestFlags)
			if err != nil {
				return err
			}

			version := release
			if version == "" {
				version = m.Version
			}
			if measure {
				if err := a.measureDrafts(cmd, m, version, digests); err != nil {
					return err
				}
			}

			promoted, err := manifest.Promote(m, version, digests)
			if err != nil {
				return err
			}
			formula, err := manifest.NewGenerator().Generate(promoted)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), output, []byte(formula))
		},
	}

	cmd.Flags().StringArrayVar(&digestFlags, "sha256", nil, "variant digest as os/arch=hex (repeatable)")
	cmd.Flags().StringVar(&release, "release", "", "version to release (default: the manifest's version)")
	cmd.Flags().BoolVar(&measure, "fetch", false, "download variants without a digest and measure them")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the promoted formula to this file (default: stdout)")
	return cmd
}

// measureDrafts downloads every variant of m that has neither a digest nor
// an entry in digests and records its SHA-256.
func (a *app) measureDrafts(cmd *cobra.Command, m *manifest.Manifest, version string, digests map[string]string) error {
	if version == "" {
		return fmt.Errorf("%s has no version; pass --release", m.Name)
	}
	cfg, err := a.load()
	if err != nil {
		return err
	}
	fetcher := fetch.New(fetch.Options{
		Retries: cfg.Retries(),
		Timeout: cfg.Network.Timeout,
		Backoff: cfg.Network.Backoff,
		Logger:  a.logger,
	})

	for _, v := range m.Variants {
		if !v.IsDraft() {
			continue
		}
		if _, ok := digests[v.Key()]; ok {
			continue
		}
		if _, ok := digests[v.OS.String()]; ok {
			continue
		}
		archive, err := fetcher.Measure(cmd.Context(), v.URL(version))
		if err != nil {
			return fmt.Errorf("measure %s: %w", v.Key(), err)
		}
		digests[v.Key()] = archive.SHA256
		fmt.Fprintf(cmd.ErrOrStderr(), "measured %s: %s (%d bytes)\n", v.Key(), archive.SHA256, archive.Size)
	}
	return nil
}

// writeOutput writes data to path, or to w when path is empty or "-".
func writeOutput(w io.Writer, path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := w.Write(data)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// parseDigests parses repeated os/arch=hex flags.
func parseDigests(values []string) (map[string]string, error) {
	digests := make(map[string]string, len(values))
	for _, v := range values {
		key, digest, ok := strings.Cut(v, "=")
		if !ok || key == "" || digest == "" {
			return nil, fmt.Errorf("invalid --sha256 %q (want os/arch=hex)", v)
		}
		digests[key] = digest
	}
	return digests, nil
}
