package reflect

import "unsafe"

// Archetype is the runtime-representation discriminator of a field or
// function argument, per spec.md §3.
type Archetype uint8

const (
	ArchetypeUnknown Archetype = iota
	ArchetypeSignedInt
	ArchetypeUnsignedInt
	ArchetypeFloating
	ArchetypeStringPointer
	ArchetypeInternedString
	ArchetypeEnum
	ArchetypeExternalPointer
	ArchetypeStruct
	ArchetypeStructPointer
	ArchetypePatch
	ArchetypeInlineArray
	ArchetypeDynamicArray
)

var archetypeNames = [...]string{
	"Unknown", "SignedInt", "UnsignedInt", "Floating", "StringPointer",
	"InternedString", "Enum", "ExternalPointer", "Struct", "StructPointer",
	"Patch", "InlineArray", "DynamicArray",
}

func (a Archetype) String() string {
	if int(a) < len(archetypeNames) {
		return archetypeNames[a]
	}
	return "Unknown"
}

// IsArray reports whether a is one of the two array archetypes, which
// spec.md §3 forbids nesting ("InlineArray items must not themselves be
// arrays; neither may DynamicArray").
func (a Archetype) IsArray() bool {
	return a == ArchetypeInlineArray || a == ArchetypeDynamicArray
}

// PointerSize is the size in bytes of an interned string, string pointer,
// struct pointer or external pointer field on this platform.
const PointerSize = uint32(unsafe.Sizeof(uintptr(0)))

// PlatformIntSize is the size in bytes of a platform "int", which is the
// required size of every Enum-archetype field per spec.md §3.
const PlatformIntSize = uint32(unsafe.Sizeof(int(0)))

// ValidPrimitiveSize reports whether size is an allowed width for the
// given archetype, enforcing the restrictions in spec.md §3:
//
//	SignedInt/UnsignedInt: 1, 2, 4 or 8 bytes.
//	Floating: 4 or 8 bytes.
//	Enum: size of a platform int.
//	InternedString/StringPointer: pointer-sized.
//
// Archetypes with no width restriction (ExternalPointer, Struct,
// StructPointer, Patch, InlineArray, DynamicArray) always return true;
// their size is derived from the referenced type or element layout.
func ValidPrimitiveSize(a Archetype, size uint32) bool {
	switch a {
	case ArchetypeSignedInt, ArchetypeUnsignedInt:
		switch size {
		case 1, 2, 4, 8:
			return true
		}
		return false
	case ArchetypeFloating:
		return size == 4 || size == 8
	case ArchetypeEnum:
		return size == PlatformIntSize
	case ArchetypeInternedString, ArchetypeStringPointer:
		return size == PointerSize
	default:
		return true
	}
}
