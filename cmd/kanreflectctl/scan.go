package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bearlytools/kanreflect/intern"
	kreflect "github.com/bearlytools/kanreflect/reflect"
	"github.com/bearlytools/kanreflect/resource"
)

func newScanCmd() *cobra.Command {
	var fixturePath string

	cmd := &cobra.Command{
		Use:   "scan <directory>",
		Short: "Scan a resource directory once and report what was found",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := args[0]

			r, err := registryFromFixtureOrEmpty(fixturePath)
			if err != nil {
				return err
			}

			vfs, err := resource.NewOSVFS(root)
			if err != nil {
				return err
			}

			cfg := resource.Configuration{
				ResourceDirectoryPath: root,
				ServeBudget:           100 * time.Millisecond,
				ChangeWaitTime:        -1, // one-shot scan: no watcher needed.
			}
			p := resource.NewProvider(cfg, r, vfs)

			if err := p.Scan(ctxBackground()); err != nil {
				return err
			}

			entries := p.Entries()
			fmt.Fprintf(cmd.OutOrStdout(), "scanned %s: %d resource(s)\n", root, len(entries))
			for _, ge := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "  %-24s %-24s %s\n", intern.String(ge.Type), intern.String(ge.Name), ge.Path)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&fixturePath, "fixture", "", "optional JSON fixture registering resource types ahead of the scan")
	return cmd
}

// registryFromFixtureOrEmpty loads a registry fixture when the caller
// supplied one, or returns an empty registry: Scan only needs a
// registry to exist, not to contain the scanned types, since plain
// scanning never consults it (type bindings are only needed for
// Execute's load step, out of scope for this one-shot command).
func registryFromFixtureOrEmpty(path string) (*kreflect.Registry, error) {
	if path == "" {
		return kreflect.New(), nil
	}
	fx, err := loadFixture(path)
	if err != nil {
		return nil, err
	}
	return buildRegistry(fx)
}
