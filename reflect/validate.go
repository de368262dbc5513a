package reflect

import (
	"fmt"

	"github.com/bearlytools/kanreflect/intern"
)

// validateStruct checks the invariants spec.md §3 and §8 place on a
// struct descriptor: size % alignment == 0, fields sorted by
// non-decreasing offset, primitive widths within the allowed set, and no
// array-of-array nesting.
func validateStruct(s *StructDescr) error {
	if s.Alignment == 0 || s.Size%s.Alignment != 0 {
		return fmt.Errorf("reflect: struct %v: size %d is not a multiple of alignment %d", s.Name, s.Size, s.Alignment)
	}

	var prevOffset uint32
	for i, f := range s.Fields {
		if i > 0 && f.Offset < prevOffset {
			return fmt.Errorf("reflect: struct %v: field %d (%v) offset %d is before previous field's offset %d",
				s.Name, i, f.Name, f.Offset, prevOffset)
		}
		prevOffset = f.Offset

		if err := validateField(s, f); err != nil {
			return err
		}
	}
	return nil
}

func validateField(s *StructDescr, f *FieldDescr) error {
	if !ValidPrimitiveSize(f.Archetype, f.Size) {
		return fmt.Errorf("reflect: struct %v: field %v has invalid size %d for archetype %v",
			s.Name, f.Name, f.Size, f.Archetype)
	}
	if f.Archetype.IsArray() && f.ItemArchetype.IsArray() {
		return fmt.Errorf("reflect: struct %v: field %v is an array of arrays, which is forbidden",
			s.Name, f.Name)
	}
	return nil
}

func enumEmptyErr(name intern.Name) error {
	return fmt.Errorf("reflect: enum %v has no values", name)
}

func functionArrayErr(fn intern.Name, arg intern.Name) error {
	return fmt.Errorf("reflect: function %v: argument/return %v may not be an array", fn, arg)
}
