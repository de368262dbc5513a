package resource

import (
	"io"

	"github.com/bearlytools/kanreflect/intern"
	kbinary "github.com/bearlytools/kanreflect/internal/binary"
	kreflect "github.com/bearlytools/kanreflect/reflect"
)

// State is the tri-state result of one BinaryReader.Step, per spec.md §6
// "reader_step() -> InProgress|Finished|Failed".
type State uint8

const (
	StateInProgress State = iota
	StateFinished
	StateFailed
)

// BinaryReader is the "binary serialiser" collaborator spec.md §1/§6
// declare external: the core calls it but does not implement its wire
// format in general. This package ships one reference implementation
// (refReader) over a small self-describing format so the resource
// provider's scheduling, budgeting and hot-reload logic can be exercised
// end-to-end without a real engine serialiser plugged in.
type BinaryReader interface {
	// Step advances decoding by one field. Callers re-invoke Step until
	// it returns anything other than StateInProgress, checking a frame
	// deadline between calls (spec.md §5 "Suspension points").
	Step() (State, error)
}

// ReadTypeHeader reads the type-header block spec.md §6 describes
// ("Each file begins with a type-header block identifying the struct
// name") and interns the result against table (intern.Default if nil).
func ReadTypeHeader(r io.Reader, table *intern.Table) (intern.Name, error) {
	if table == nil {
		table = intern.Default
	}
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return intern.Name{}, err
	}
	n := int(kbinary.Get[uint16](lenBuf[:]))
	nameBuf := make([]byte, n)
	if _, err := io.ReadFull(r, nameBuf); err != nil {
		return intern.Name{}, err
	}
	return table.InternBytes(nameBuf), nil
}

// WriteTypeHeader writes the counterpart of ReadTypeHeader. Exposed for
// tests and for any caller producing reference-format resource files.
func WriteTypeHeader(w io.Writer, typeName string) error {
	var lenBuf [2]byte
	kbinary.Put(lenBuf[:], uint16(len(typeName)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write([]byte(typeName))
	return err
}

// leafStep is one field the reference reader/writer can walk: either a
// fixed-width primitive/enum copied byte-for-byte, an interned string
// encoded as a length-prefixed UTF-8 blob, or a bounded-size inline
// array of one of those. Nested structs are flattened into their own
// leaves at the enclosing field's absolute offset, matching the way
// patch nodes and migrator commands already work in absolute-offset
// space elsewhere in this module.
type leafStep struct {
	offset uint32
	size   uint32
	field  *kreflect.FieldDescr
}

// flattenLeaves walks structDef's fields (resolving Struct-archetype
// fields recursively through registry) and returns every
// directly-encodable leaf in declared order. Archetypes with no
// reference-format encoding (pointers, Patch, DynamicArray, InlineArray
// of Struct or InternedString) are skipped; their bytes are left zeroed, matching
// spec.md §7's "ill-formed but registered" tolerance for unsupported
// shapes in a best-effort rewrite.
func flattenLeaves(registry *kreflect.Registry, structDef *kreflect.StructDescr, base uint32) []leafStep {
	var out []leafStep
	for _, f := range structDef.Fields {
		abs := base + f.Offset
		switch f.Archetype {
		case kreflect.ArchetypeSignedInt, kreflect.ArchetypeUnsignedInt, kreflect.ArchetypeFloating, kreflect.ArchetypeEnum:
			out = append(out, leafStep{offset: abs, size: f.Size, field: f})
		case kreflect.ArchetypeInternedString:
			out = append(out, leafStep{offset: abs, size: f.Size, field: f})
		case kreflect.ArchetypeInlineArray:
			switch f.ItemArchetype {
			case kreflect.ArchetypeSignedInt, kreflect.ArchetypeUnsignedInt, kreflect.ArchetypeFloating, kreflect.ArchetypeEnum:
				out = append(out, leafStep{offset: abs, size: f.ItemSize * f.Count, field: f})
			}
		case kreflect.ArchetypeStruct:
			nested, ok := registry.QueryStruct(f.StructName)
			if ok {
				out = append(out, flattenLeaves(registry, nested, abs)...)
			}
		}
	}
	return out
}

// refReader is the reference BinaryReader: one Step decodes one
// flattened leaf from stream into dst, which must be at least
// structDef.Size bytes (the container's aligned payload).
type refReader struct {
	stream   io.Reader
	dst      []byte
	table    *intern.Table
	leaves   []leafStep
	idx      int
}

// NewReader builds a reference BinaryReader over dst for structDef,
// per spec.md §6 "reader_create(stream, out_ptr, type_name,
// script_storage, opt_string_registry, allocation_group)". script
// storage and allocation group are collaborators outside this module's
// scope (spec.md §1) and are not modeled; stringReg, when non-nil, is
// the resource's BoundStringRegistry.
func NewReader(stream io.Reader, dst []byte, registry *kreflect.Registry, structDef *kreflect.StructDescr, stringReg *intern.Table) BinaryReader {
	if stringReg == nil {
		stringReg = intern.Default
	}
	return &refReader{
		stream: stream,
		dst:    dst,
		table:  stringReg,
		leaves: flattenLeaves(registry, structDef, 0),
	}
}

func (r *refReader) Step() (State, error) {
	if r.idx >= len(r.leaves) {
		return StateFinished, nil
	}
	l := r.leaves[r.idx]
	r.idx++

	if l.field.Archetype == kreflect.ArchetypeInternedString {
		var lenBuf [4]byte
		if _, err := io.ReadFull(r.stream, lenBuf[:]); err != nil {
			return StateFailed, err
		}
		strLen := kbinary.Get[uint32](lenBuf[:])
		buf := make([]byte, strLen)
		if _, err := io.ReadFull(r.stream, buf); err != nil {
			return StateFailed, err
		}
		name := r.table.InternBytes(buf)
		handle := make([]byte, kreflect.PointerSize)
		kbinary.Put(handle, int64(name.ID()))
		copy(r.dst[l.offset:l.offset+kreflect.PointerSize], handle)
		if r.idx >= len(r.leaves) {
			return StateFinished, nil
		}
		return StateInProgress, nil
	}

	buf := r.dst[l.offset : l.offset+l.size]
	if _, err := io.ReadFull(r.stream, buf); err != nil {
		return StateFailed, err
	}
	if r.idx >= len(r.leaves) {
		return StateFinished, nil
	}
	return StateInProgress, nil
}

// WriteValue is the reference writer counterpart to refReader, used by
// tests to construct fixture resource files: it walks the same leaves
// in the same order, reading from src instead of writing to dst.
func WriteValue(w io.Writer, src []byte, registry *kreflect.Registry, structDef *kreflect.StructDescr, table *intern.Table) error {
	if table == nil {
		table = intern.Default
	}
	for _, l := range flattenLeaves(registry, structDef, 0) {
		if l.field.Archetype == kreflect.ArchetypeInternedString {
			raw := src[l.offset : l.offset+kreflect.PointerSize]
			id := kbinary.Get[int64](raw)
			s := table.String(intern.NameFromID(int32(id)))
			var lenBuf [4]byte
			kbinary.Put(lenBuf[:], uint32(len(s)))
			if _, err := w.Write(lenBuf[:]); err != nil {
				return err
			}
			if _, err := w.Write([]byte(s)); err != nil {
				return err
			}
			continue
		}
		if _, err := w.Write(src[l.offset : l.offset+l.size]); err != nil {
			return err
		}
	}
	return nil
}
