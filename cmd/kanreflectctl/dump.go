package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bearlytools/kanreflect/intern"
	kreflect "github.com/bearlytools/kanreflect/reflect"
)

func newDumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump <fixture.json>",
		Short: "Load a fixture and print its registered enums and structs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fx, err := loadFixture(args[0])
			if err != nil {
				return err
			}
			r, err := buildRegistry(fx)
			if err != nil {
				return err
			}
			dumpRegistry(cmd.OutOrStdout(), r)
			return nil
		},
	}
}

func dumpRegistry(w io.Writer, r *kreflect.Registry) {
	for e := range r.EnumIter() {
		fmt.Fprintf(w, "enum %s", intern.String(e.Name))
		if e.IsFlags {
			fmt.Fprint(w, " (flags)")
		}
		fmt.Fprintln(w)
		for _, v := range e.Values {
			fmt.Fprintf(w, "  %s = %d\n", intern.String(v.Name), v.Value)
		}
	}

	for s := range r.StructIter() {
		fmt.Fprintf(w, "struct %s (size=%d align=%d)\n", intern.String(s.Name), s.Size, s.Alignment)
		for _, f := range s.Fields {
			fmt.Fprintf(w, "  %-20s offset=%-4d size=%-4d %s", intern.String(f.Name), f.Offset, f.Size, f.Archetype)
			switch f.Archetype {
			case kreflect.ArchetypeEnum:
				fmt.Fprintf(w, "<%s>", intern.String(f.EnumName))
			case kreflect.ArchetypeStruct, kreflect.ArchetypeStructPointer, kreflect.ArchetypePatch:
				fmt.Fprintf(w, "<%s>", intern.String(f.StructName))
			case kreflect.ArchetypeInlineArray, kreflect.ArchetypeDynamicArray:
				fmt.Fprintf(w, "<%s x%d>", f.ItemArchetype, f.Count)
			}
			if f.HasVisibilityCondition() {
				fmt.Fprintf(w, " if %s in %v", intern.String(f.VisibilityConditionField), f.VisibilityConditionValues)
			}
			fmt.Fprintln(w)
		}
	}
}
