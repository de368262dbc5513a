package migrate

import (
	"github.com/bearlytools/kanreflect/intern"
	kreflect "github.com/bearlytools/kanreflect/reflect"
)

// NoCondition marks a command as unconditional.
const NoCondition = -1

// ConditionCmd records one deduplicated visibility condition in the
// Condition stream (spec.md §4.E). Parent == NoCondition means the
// condition has no enclosing condition.
type ConditionCmd struct {
	SrcOffset uint32
	Size      uint32
	Archetype kreflect.Archetype
	Field     intern.Name
	Values    []int64
	Parent    int
}

// CopyCmd bit-copies Size bytes from SrcOffset to DstOffset.
type CopyCmd struct {
	SrcOffset, DstOffset uint32
	Size                 uint32
	Condition            int
}

// AdaptNumericCmd converts a signed/unsigned/float value between
// source and target widths.
type AdaptNumericCmd struct {
	SrcOffset, DstOffset uint32
	SrcSize, DstSize     uint32
	Archetype            kreflect.Archetype
	Condition            int
}

// AdaptEnumCmd remaps one enum value by name/bit.
type AdaptEnumCmd struct {
	SrcOffset, DstOffset uint32
	EnumName             intern.Name
	Condition            int
}

// AdaptDynamicArrayCmd rebuilds a dynamic array element by element.
type AdaptDynamicArrayCmd struct {
	SrcOffset, DstOffset uint32
	SrcField, DstField   *kreflect.FieldDescr
	Condition            int
}

// SetZeroCmd zeroes Size bytes at SrcOffset in the source, used after
// transferring ownership of a pointer/handle field (spec.md §4.E).
type SetZeroCmd struct {
	SrcOffset uint32
	Size      uint32
	Condition int
}

// Program is one struct's compiled migrator: six parallel command
// streams sharing the Conditions index space (spec.md §3 "Migrator
// program").
type Program struct {
	Conditions        []ConditionCmd
	Copy              []CopyCmd
	AdaptNumeric      []AdaptNumericCmd
	AdaptEnum         []AdaptEnumCmd
	AdaptDynamicArray []AdaptDynamicArrayCmd
	SetZero           []SetZeroCmd
}

// counts mirrors struct_migrator_node_t's six stream lengths, recorded
// per spec.md §4.E "record the six counts on the per-struct migrator
// node".
func (p *Program) counts() [6]int {
	return [6]int{len(p.Conditions), len(p.Copy), len(p.AdaptNumeric), len(p.AdaptEnum), len(p.AdaptDynamicArray), len(p.SetZero)}
}

// condKey deduplicates conditions on (src_offset, condition_field,
// values, parent_condition_index), per spec.md §4.E.
type condKey struct {
	srcOffset uint32
	field     intern.Name
	valuesKey string
	parent    int
}

func valuesKey(values []int64) string {
	b := make([]byte, 0, len(values)*8)
	for _, v := range values {
		u := uint64(v)
		for i := 0; i < 8; i++ {
			b = append(b, byte(u>>(8*i)))
		}
	}
	return string(b)
}

// builder accumulates a Program for one struct, including the
// temporary pre-coalesce Copy/SetZero queues.
type builder struct {
	prog     Program
	condSeen map[condKey]int
}

func newBuilder() *builder {
	return &builder{condSeen: make(map[condKey]int)}
}

// condition interns f's visibility condition (if any) into the
// Condition stream, returning its index or NoCondition. owner is the
// struct f itself belongs to, used to resolve
// f.VisibilityConditionField to the condition field's own offset,
// size and archetype — the condition must be evaluated by reading
// that field's current value, not f's (spec.md §4.E "check_visibility
// reads the named condition field, not the conditioned field"). parent
// is the enclosing condition index inherited from the recursion (e.g.
// the outer field's own condition when recursing into a nested
// struct).
func (b *builder) condition(owner *kreflect.StructDescr, f *kreflect.FieldDescr, parent int) int {
	if !f.HasVisibilityCondition() {
		return parent
	}

	condField := owner.FieldByName(f.VisibilityConditionField)
	if condField == nil {
		return parent // malformed descriptor: treat the field as unconditional rather than panic.
	}

	k := condKey{
		srcOffset: condField.Offset,
		field:     f.VisibilityConditionField,
		valuesKey: valuesKey(f.VisibilityConditionValues),
		parent:    parent,
	}
	if idx, ok := b.condSeen[k]; ok {
		return idx
	}

	idx := len(b.prog.Conditions)
	b.prog.Conditions = append(b.prog.Conditions, ConditionCmd{
		SrcOffset: condField.Offset,
		Size:      condField.Size,
		Archetype: condField.Archetype,
		Field:     f.VisibilityConditionField,
		Values:    append([]int64(nil), f.VisibilityConditionValues...),
		Parent:    parent,
	})
	b.condSeen[k] = idx
	return idx
}
