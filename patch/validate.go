package patch

import (
	"github.com/gostdlib/base/context"

	"github.com/bearlytools/kanreflect/errs"
	kreflect "github.com/bearlytools/kanreflect/reflect"
)

// Validate walks every compiled node against structName's registered
// layout in registry and rejects nodes that target a field archetype
// a patch cannot legally touch, per spec.md §4.C "Validation (debug)":
// primitives, interned strings, enums, inline arrays of those, and
// structs (recursively) are acceptable; pointers, dynamic arrays and
// Patch fields are not. This is an optional debug-build pass, not run
// automatically by Build.
func (c *Compiled) Validate(ctx context.Context, registry *kreflect.Registry) error {
	s, ok := registry.QueryStruct(c.structName)
	if !ok {
		return errs.E(ctx, errs.CatUser, errs.TypePatchBuild, unknownStructErr(c.structName))
	}

	for _, n := range c.nodes {
		if err := validateRange(registry, s, n.Offset, n.Size); err != nil {
			return errs.E(ctx, errs.CatUser, errs.TypePatchBuild, err)
		}
	}
	return nil
}

// validateRange checks that every field of s whose byte range
// overlaps [offset, offset+size) has an archetype a patch may target,
// recursing into nested struct fields with the range rebased to the
// nested struct's own origin.
func validateRange(registry *kreflect.Registry, s *kreflect.StructDescr, offset, size uint32) error {
	end := offset + size

	for i, f := range s.Fields {
		fStart := f.Offset
		fEnd := fStart + s.SizeWithPadding(i)
		if fEnd <= offset || fStart >= end {
			continue // no overlap with this field
		}

		if err := validateField(registry, f); err != nil {
			return err
		}

		if f.Archetype == kreflect.ArchetypeStruct {
			nested, ok := registry.QueryStruct(f.StructName)
			if !ok {
				return unknownStructErr(f.StructName)
			}
			// Rebase the covered range onto the nested struct's origin;
			// clamp to the nested struct's own extent.
			lo := uint32(0)
			if offset > fStart {
				lo = offset - fStart
			}
			hi := fEnd - fStart
			if end-fStart < hi {
				hi = end - fStart
			}
			if err := validateRange(registry, nested, lo, hi-lo); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateField(registry *kreflect.Registry, f *kreflect.FieldDescr) error {
	switch f.Archetype {
	case kreflect.ArchetypeSignedInt, kreflect.ArchetypeUnsignedInt, kreflect.ArchetypeFloating,
		kreflect.ArchetypeInternedString, kreflect.ArchetypeEnum, kreflect.ArchetypeStruct:
		return nil
	case kreflect.ArchetypeInlineArray:
		if f.ItemArchetype == kreflect.ArchetypeExternalPointer ||
			f.ItemArchetype == kreflect.ArchetypeStructPointer ||
			f.ItemArchetype == kreflect.ArchetypeStringPointer ||
			f.ItemArchetype == kreflect.ArchetypePatch {
			return badTargetErr(f.ItemArchetype)
		}
		return nil
	case kreflect.ArchetypeExternalPointer, kreflect.ArchetypeStructPointer,
		kreflect.ArchetypeStringPointer, kreflect.ArchetypePatch, kreflect.ArchetypeDynamicArray:
		return badTargetErr(f.Archetype)
	default:
		return badTargetErr(f.Archetype)
	}
}

