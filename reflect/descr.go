package reflect

import (
	"unsafe"

	"github.com/bearlytools/kanreflect/intern"
)

// FieldDescr describes a single field of a registered struct, per
// spec.md §3 "Field descriptor". The archetype-specific payload is spread
// across EnumName/StructName/Item* rather than a tagged union, which is
// the idiomatic Go rendering of the C original's anonymous union of
// archetype payloads (see original_source/reflection.c's
// kan_reflection_field_t).
type FieldDescr struct {
	Name      intern.Name
	Offset    uint32
	Size      uint32
	Archetype Archetype

	// EnumName is set when Archetype == ArchetypeEnum.
	EnumName intern.Name
	// StructName is set when Archetype is Struct, StructPointer or Patch
	// (the patched struct's name). Array fields name their element type
	// in ItemStructName/ItemEnumName instead.
	StructName intern.Name

	// ItemArchetype, ItemSize and ItemEnumName/ItemStructName describe the
	// element type of an InlineArray or DynamicArray field. ItemArchetype
	// must not itself be InlineArray or DynamicArray (spec.md §3).
	ItemArchetype  Archetype
	ItemSize       uint32
	ItemEnumName   intern.Name
	ItemStructName intern.Name

	// Count is the declared element count of an InlineArray. Unused for
	// DynamicArray, whose length is carried at runtime.
	Count uint32

	// VisibilityConditionField, when non-zero, names another field in the
	// same struct whose current value gates this field's visibility.
	VisibilityConditionField intern.Name
	// VisibilityConditionValues is the value set the condition field is
	// checked against.
	VisibilityConditionValues []int64
}

// HasVisibilityCondition reports whether this field is conditionally
// visible.
func (f *FieldDescr) HasVisibilityCondition() bool {
	return !f.VisibilityConditionField.IsZero()
}

// EnumValueDescr describes one enumerated value.
type EnumValueDescr struct {
	Name  intern.Name
	Value int64
}

// EnumDescr describes an enum, per spec.md §3 "Enum descriptor". Values
// must be non-empty; this is asserted by Registry.AddEnum when
// Registry.Validate is set.
type EnumDescr struct {
	Name    intern.Name
	IsFlags bool
	Values  []EnumValueDescr
}

// ValueByName returns the value named n, if any.
func (e *EnumDescr) ValueByName(n intern.Name) (EnumValueDescr, bool) {
	for _, v := range e.Values {
		if v.Name == n {
			return v, true
		}
	}
	return EnumValueDescr{}, false
}

// ValueByInt returns the first value whose integer equals v, if any.
func (e *EnumDescr) ValueByInt(v int64) (EnumValueDescr, bool) {
	for _, ev := range e.Values {
		if ev.Value == v {
			return ev, true
		}
	}
	return EnumValueDescr{}, false
}

// StructDescr describes a struct, per spec.md §3 "Struct descriptor".
// Fields must be sorted by Offset; fields sharing one offset are union
// members. Init/Shutdown are optional lifecycle hooks run over the
// aligned payload of a container (see resource package); UserData is an
// opaque, caller-owned annotation slot.
type StructDescr struct {
	Name      intern.Name
	Size      uint32
	Alignment uint32
	Fields    []*FieldDescr

	Init     func(ptr unsafe.Pointer)
	Shutdown func(ptr unsafe.Pointer)
	UserData any
}

// FieldByName returns the first field named n, or nil.
func (s *StructDescr) FieldByName(n intern.Name) *FieldDescr {
	for _, f := range s.Fields {
		if f.Name == n {
			return f
		}
	}
	return nil
}

// SizeWithPadding returns the padded extent of the field at index i: the
// distance to the next field at a strictly higher offset (skipping union
// members that share i's offset), or the remaining struct size if i is
// the last distinct offset. This is the computation spec.md §4.B uses to
// answer "size_with_padding" for a resolved field path.
func (s *StructDescr) SizeWithPadding(i int) uint32 {
	f := s.Fields[i]
	for j := i + 1; j < len(s.Fields); j++ {
		if s.Fields[j].Offset > f.Offset {
			return s.Fields[j].Offset - f.Offset
		}
	}
	return s.Size - f.Offset
}

// FunctionArgument describes one argument (or, reused, the return slot)
// of a registered function.
type FunctionArgument struct {
	Name      intern.Name
	Archetype Archetype
	Size      uint32
	// TypeName optionally names the referenced enum or struct type.
	TypeName intern.Name
}

// Call is the signature every registered function's implementation must
// have. Arguments and the return value are passed as opaque values;
// spec.md §3 leaves calling convention unspecified beyond "arguments are
// not allowed to be arrays".
type Call func(args []any) (any, error)

// FunctionDescr describes a function, per spec.md §3 "Function
// descriptor". Arrays are not allowed as arguments or return type.
type FunctionDescr struct {
	Name       intern.Name
	ReturnType *FunctionArgument
	Arguments  []FunctionArgument
	Call       Call
}
