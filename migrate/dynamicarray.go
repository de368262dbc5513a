package migrate

import (
	"unsafe"

	"github.com/gostdlib/base/context"

	kbinary "github.com/bearlytools/kanreflect/internal/binary"
	kreflect "github.com/bearlytools/kanreflect/reflect"
)

// arrayHeader is the three-word runtime representation of a
// DynamicArray field: a data pointer, a length and a capacity, laid
// out exactly as original_source's kan_dynamic_array_t. It happens to
// match Go's own slice header shape, which is what lets this package
// reinterpret the raw bytes directly instead of modelling a separate
// C-style array type.
type arrayHeader struct {
	data     unsafe.Pointer
	length   uint64
	capacity uint64
}

func readArrayHeader(buf []byte, offset uint32) arrayHeader {
	ptr := uintptr(kbinary.Get[uint64](buf[offset : offset+8]))
	return arrayHeader{
		data:     unsafe.Pointer(ptr), //nolint:govet // reinterpreting an externally-owned array pointer, see DESIGN.md
		length:   kbinary.Get[uint64](buf[offset+8 : offset+16]),
		capacity: kbinary.Get[uint64](buf[offset+16 : offset+24]),
	}
}

func writeArrayHeader(buf []byte, offset uint32, h arrayHeader) {
	kbinary.Put(buf[offset:offset+8], uint64(uintptr(h.data)))
	kbinary.Put(buf[offset+8:offset+16], h.length)
	kbinary.Put(buf[offset+16:offset+24], h.capacity)
}

// adaptDynamicArray implements spec.md §4.E "Dynamic array adaptation":
// reserve capacity equal to the source's capacity, then convert each
// element with the archetype-appropriate routine. The freshly
// allocated Go backing array is pinned on m so it survives after this
// call returns even though dst only holds its raw address — Go's
// allocator does not relocate live heap objects, so the pin is enough
// to keep the unsafe pointer valid for the instance's lifetime (see
// DESIGN.md's note on this package's memory model).
func adaptDynamicArray(ctx context.Context, m *Migrator, c AdaptDynamicArrayCmd, src, dst []byte) error {
	srcHdr := readArrayHeader(src, c.SrcOffset)
	srcItemSize := int(c.SrcField.ItemSize)
	dstItemSize := int(c.DstField.ItemSize)

	count := int(srcHdr.length)
	capElems := int(srcHdr.capacity)
	if capElems < count {
		capElems = count
	}
	srcElems := unsafe.Slice((*byte)(srcHdr.data), count*srcItemSize)
	dstBuf := make([]byte, count*dstItemSize, capElems*dstItemSize)

	for i := 0; i < count; i++ {
		srcElem := srcElems[i*srcItemSize : (i+1)*srcItemSize]
		dstElem := dstBuf[i*dstItemSize : (i+1)*dstItemSize]

		switch c.SrcField.ItemArchetype {
		case kreflect.ArchetypeSignedInt, kreflect.ArchetypeUnsignedInt, kreflect.ArchetypeFloating:
			adaptNumeric(c.SrcField.ItemArchetype, srcElem, dstElem)
		case kreflect.ArchetypeEnum:
			en, ok := m.seed.QueryEnum(c.SrcField.ItemEnumName)
			if !ok {
				return enumNotRegisteredErr(c.SrcField.ItemEnumName)
			}
			adaptEnum(en, srcElem, dstElem)
		case kreflect.ArchetypeStruct:
			nestedDef, ok := m.seed.Source.QueryStruct(c.SrcField.ItemStructName)
			if !ok {
				continue
			}
			prog, ok := m.ProgramFor(ctx, c.SrcField.ItemStructName)
			if !ok {
				continue
			}
			if err := Instance(ctx, m, nestedDef, prog, srcElem, dstElem); err != nil {
				return err
			}
		}
	}

	var dataPtr unsafe.Pointer
	if cap(dstBuf) > 0 {
		dataPtr = unsafe.Pointer(unsafe.SliceData(dstBuf))
		m.pinned = append(m.pinned, dstBuf)
	}
	writeArrayHeader(dst, c.DstOffset, arrayHeader{data: dataPtr, length: srcHdr.length, capacity: uint64(capElems)})
	return nil
}
