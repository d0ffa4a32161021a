package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fianchetto/kibitz/internal/config"
	"github.com/fianchetto/kibitz/internal/registry"
	"github.com/fianchetto/kibitz/internal/ui"
)

const probeTimeout = 10 * time.Second

var enginesCmd = &cobra.Command{
	Use:   "engines [--add <name> <path>]",
	Short: "List, probe, and register engine profiles",
	Long: `Engines manages the profile catalog (~/.kibitz/engines.toml). Without
flags it lists the registered profiles. With --probe it handshakes each
engine and reports the identity it announces. With --add it registers or
replaces a profile under the given name.`,
	Args: cobra.MaximumNArgs(2),
	RunE: runEngines,
}

func init() {
	enginesCmd.Flags().Bool("probe", false, "handshake each engine and report its identity")
	enginesCmd.Flags().Bool("add", false, "register a profile: --add <name> <path>")
	enginesCmd.Flags().Int("hash", 0, "hash table size in MiB for --add")
	enginesCmd.Flags().Int("threads", 0, "search threads for --add")
	enginesCmd.Flags().Int("depth", 0, "default search depth for --add")
	enginesCmd.Flags().Int("lines", 0, "default candidate lines for --add")
	rootCmd.AddCommand(enginesCmd)
}

func runEngines(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	printer := ui.New()
	path := registryPath(&cfg)

	cat, err := registry.Load(path)
	if err != nil {
		return err
	}

	if add, _ := cmd.Flags().GetBool("add"); add {
		return addProfile(cmd, args, cat, path, printer)
	}
	if len(args) != 0 {
		return fmt.Errorf("unexpected arguments %v; did you mean --add?", args)
	}
	if probe, _ := cmd.Flags().GetBool("probe"); probe {
		return probeProfiles(cat, printer)
	}
	printer.Profiles(cat.Profiles)
	return nil
}

func addProfile(cmd *cobra.Command, args []string, cat *registry.Catalog, path string, printer *ui.Printer) error {
	if len(args) != 2 {
		return fmt.Errorf("--add wants a profile name and a binary path")
	}
	hash, _ := cmd.Flags().GetInt("hash")
	threads, _ := cmd.Flags().GetInt("threads")
	depth, _ := cmd.Flags().GetInt("depth")
	lines, _ := cmd.Flags().GetInt("lines")
	p := registry.Profile{
		Name:         args[0],
		Path:         args[1],
		HashMB:       hash,
		Threads:      threads,
		DefaultDepth: depth,
		DefaultLines: lines,
	}
	replaced := cat.Put(p)
	if err := registry.Save(path, cat); err != nil {
		return err
	}
	printer.ProfileSaved(replaced, p)
	return nil
}

// probeProfiles handshakes every profile in turn. Engines that fail to
// respond are reported inline; the command fails if any did.
func probeProfiles(cat *registry.Catalog, printer *ui.Printer) error {
	if len(cat.Profiles) == 0 {
		printer.Profiles(nil)
		return nil
	}
	var failed int
	for _, p := range cat.Profiles {
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		ident, err := registry.Probe(ctx, p)
		cancel()
		printer.ProbeResult(p.Name, ident, err)
		if err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d engine(s) failed to respond", failed)
	}
	return nil
}

// registryPath returns the catalog path, preferring configuration over the
// conventional default.
func registryPath(cfg *config.Config) string {
	if cfg.Registry.Path != "" {
		return cfg.Registry.Path
	}
	return registry.DefaultPath()
}
