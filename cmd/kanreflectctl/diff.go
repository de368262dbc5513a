package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bearlytools/kanreflect/intern"
	"github.com/bearlytools/kanreflect/migrate"
	kreflect "github.com/bearlytools/kanreflect/reflect"
)

func newDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff <source.json> <target.json>",
		Short: "Report the migration seed between two fixtures",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			srcFx, err := loadFixture(args[0])
			if err != nil {
				return err
			}
			dstFx, err := loadFixture(args[1])
			if err != nil {
				return err
			}
			source, err := buildRegistry(srcFx)
			if err != nil {
				return err
			}
			target, err := buildRegistry(dstFx)
			if err != nil {
				return err
			}

			seed := migrate.Build(ctxBackground(), source, target)
			printSeedReport(cmd.OutOrStdout(), source, seed)
			return nil
		},
	}
}

func printSeedReport(w io.Writer, source *kreflect.Registry, seed *migrate.Seed) {
	for e := range source.EnumIter() {
		n, ok := seed.QueryEnum(e.Name)
		if !ok {
			continue
		}
		fmt.Fprintf(w, "enum   %-24s %s\n", intern.String(e.Name), n.Status)
	}
	for s := range source.StructIter() {
		n, ok := seed.QueryStruct(s.Name)
		if !ok {
			continue
		}
		fmt.Fprintf(w, "struct %-24s %s\n", intern.String(s.Name), n.Status)
		if n.Status != migrate.StatusNeeded {
			continue
		}
		for _, fr := range n.FieldRemap {
			if fr.Target == nil {
				fmt.Fprintf(w, "  - %s dropped\n", intern.String(fr.Source.Name))
				continue
			}
			if fr.Source.Offset != fr.Target.Offset || fr.Source.Size != fr.Target.Size {
				fmt.Fprintf(w, "  ~ %s moved offset=%d->%d size=%d->%d\n",
					intern.String(fr.Source.Name), fr.Source.Offset, fr.Target.Offset, fr.Source.Size, fr.Target.Size)
			}
		}
	}
}
