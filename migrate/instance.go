package migrate

import (
	"github.com/gostdlib/base/context"

	"github.com/bearlytools/kanreflect/errs"
	"github.com/bearlytools/kanreflect/intern"
	kbinary "github.com/bearlytools/kanreflect/internal/binary"
	kreflect "github.com/bearlytools/kanreflect/reflect"
)

// Instance runs a compiled Program once against one pair of buffers,
// per spec.md §4.E "Instance migration". src and dst must each be at
// least as large as the respective struct's Size.
//
// Conditions are evaluated in declaration order; a condition with a
// parent is false whenever its parent evaluated false (parents are
// guaranteed to appear earlier by construction, since a field's own
// condition is always interned before any nested condition that
// depends on it).
func Instance(ctx context.Context, m *Migrator, structDef *kreflect.StructDescr, prog *Program, src, dst []byte) error {
	results := make([]bool, len(prog.Conditions))
	for i, c := range prog.Conditions {
		ok := checkVisibility(c, src)
		if c.Parent != NoCondition {
			ok = ok && results[c.Parent]
		}
		results[i] = ok
	}

	active := func(cond int) bool {
		return cond == NoCondition || results[cond]
	}

	for _, c := range prog.Copy {
		if !active(c.Condition) {
			continue
		}
		copy(dst[c.DstOffset:c.DstOffset+c.Size], src[c.SrcOffset:c.SrcOffset+c.Size])
	}
	for _, c := range prog.SetZero {
		if !active(c.Condition) {
			continue
		}
		clear(src[c.SrcOffset : c.SrcOffset+c.Size])
	}
	for _, c := range prog.AdaptNumeric {
		if !active(c.Condition) {
			continue
		}
		adaptNumeric(c.Archetype, src[c.SrcOffset:c.SrcOffset+c.SrcSize], dst[c.DstOffset:c.DstOffset+c.DstSize])
	}
	for _, c := range prog.AdaptEnum {
		if !active(c.Condition) {
			continue
		}
		en, ok := m.seed.QueryEnum(c.EnumName)
		if !ok {
			return errs.E(ctx, errs.CatInternal, errs.TypeMigration, unknownEnumErr(c.EnumName))
		}
		adaptEnum(en, src[c.SrcOffset:c.SrcOffset+kreflect.PlatformIntSize], dst[c.DstOffset:c.DstOffset+kreflect.PlatformIntSize])
	}
	for _, c := range prog.AdaptDynamicArray {
		if !active(c.Condition) {
			continue
		}
		if err := adaptDynamicArray(ctx, m, c, src, dst); err != nil {
			return err
		}
	}
	return nil
}

// checkVisibility implements the check_visibility(field, values,
// base_ptr) predicate spec.md §3 requires: it reads the condition
// field's bytes at c.SrcOffset (already rebased for conditions
// inherited from nested structs) with c.Size and c.Archetype, and
// reports whether the value is one of c.Values. A condition whose
// range is empty or lies outside src evaluates false.
func checkVisibility(c ConditionCmd, src []byte) bool {
	if c.Size == 0 || uint64(c.SrcOffset)+uint64(c.Size) > uint64(len(src)) {
		return false
	}
	v, ok := decodeInt(c.Archetype, src[c.SrcOffset:c.SrcOffset+c.Size])
	if !ok {
		return false
	}
	for _, want := range c.Values {
		if v == want {
			return true
		}
	}
	return false
}

func decodeInt(a kreflect.Archetype, raw []byte) (int64, bool) {
	switch a {
	case kreflect.ArchetypeSignedInt, kreflect.ArchetypeEnum:
		switch len(raw) {
		case 1:
			return int64(kbinary.Get[int8](raw)), true
		case 2:
			return int64(kbinary.Get[int16](raw)), true
		case 4:
			return int64(kbinary.Get[int32](raw)), true
		case 8:
			return kbinary.Get[int64](raw), true
		}
	case kreflect.ArchetypeUnsignedInt:
		switch len(raw) {
		case 1:
			return int64(kbinary.Get[uint8](raw)), true
		case 2:
			return int64(kbinary.Get[uint16](raw)), true
		case 4:
			return int64(kbinary.Get[uint32](raw)), true
		case 8:
			return int64(kbinary.Get[uint64](raw)), true
		}
	}
	return 0, false
}

func unknownEnumErr(name intern.Name) error {
	return enumNotRegisteredErr(name)
}
