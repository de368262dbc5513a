// Command kanreflectctl is a small inspection tool built over the
// reflect, migrate and resource packages: populate a registry from a
// JSON fixture, diff two such fixtures against the migration seed, or
// scan a resource directory. It plays the same role saferwall-pe's
// pedumper plays over the peparser library it wraps — optional tooling
// on top of a library that needs no command-line surface of its own.
package main

import (
	"fmt"
	"os"

	"github.com/gostdlib/base/context"
	"github.com/spf13/cobra"
)

// ctxBackground is the one Context every subcommand's one-shot run
// needs, mirroring the way package resource's osVFS constructors reach
// for context.Background() at a call site with no request-scoped
// Context of its own to thread through.
func ctxBackground() context.Context {
	return context.Background()
}

func main() {
	root := &cobra.Command{
		Use:   "kanreflectctl",
		Short: "Inspect reflect/migrate/resource fixtures from the command line",
		Long: "kanreflectctl is optional tooling over the reflect, migrate and resource\n" +
			"packages: populate a registry from a JSON fixture, diff two such\n" +
			"fixtures against the migration seed, or scan a resource directory.\n" +
			"It is scaffolding, not a protocol the library itself requires.",
	}

	root.AddCommand(newDumpCmd())
	root.AddCommand(newDiffCmd())
	root.AddCommand(newScanCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
