package migrate

import (
	kbinary "github.com/bearlytools/kanreflect/internal/binary"
	kreflect "github.com/bearlytools/kanreflect/reflect"
)

// adaptNumeric converts the value in src to dst's width, per spec.md
// §4.E "Numeric adaptation": a full cross-product between
// {1,2,4,8}-byte signed integers, the same for unsigned integers, and
// between f32/f64, using the platform's truncating cast semantics.
func adaptNumeric(a kreflect.Archetype, src, dst []byte) {
	switch a {
	case kreflect.ArchetypeSignedInt:
		v := readSigned(src)
		writeSigned(dst, v)
	case kreflect.ArchetypeUnsignedInt:
		v := readUnsigned(src)
		writeUnsigned(dst, v)
	case kreflect.ArchetypeFloating:
		v := readFloat(src)
		writeFloat(dst, v)
	}
}

func readSigned(b []byte) int64 {
	switch len(b) {
	case 1:
		return int64(kbinary.Get[int8](b))
	case 2:
		return int64(kbinary.Get[int16](b))
	case 4:
		return int64(kbinary.Get[int32](b))
	default:
		return kbinary.Get[int64](b)
	}
}

func writeSigned(b []byte, v int64) {
	switch len(b) {
	case 1:
		kbinary.Put(b, int8(v))
	case 2:
		kbinary.Put(b, int16(v))
	case 4:
		kbinary.Put(b, int32(v))
	default:
		kbinary.Put(b, v)
	}
}

func readUnsigned(b []byte) uint64 {
	switch len(b) {
	case 1:
		return uint64(kbinary.Get[uint8](b))
	case 2:
		return uint64(kbinary.Get[uint16](b))
	case 4:
		return uint64(kbinary.Get[uint32](b))
	default:
		return kbinary.Get[uint64](b)
	}
}

func writeUnsigned(b []byte, v uint64) {
	switch len(b) {
	case 1:
		kbinary.Put(b, uint8(v))
	case 2:
		kbinary.Put(b, uint16(v))
	case 4:
		kbinary.Put(b, uint32(v))
	default:
		kbinary.Put(b, v)
	}
}

func readFloat(b []byte) float64 {
	if len(b) == 4 {
		bits := kbinary.Get[uint32](b)
		return float64(float32FromBits(bits))
	}
	bits := kbinary.Get[uint64](b)
	return float64FromBits(bits)
}

func writeFloat(b []byte, v float64) {
	if len(b) == 4 {
		kbinary.Put(b, float32Bits(float32(v)))
		return
	}
	kbinary.Put(b, float64Bits(v))
}

// adaptEnum remaps the enum value in src onto dst per spec.md §4.E
// "Enum adaptation", dispatching on (source.IsFlags, target.IsFlags).
// The EnumNode passed in is the source-side seed entry; its
// ValueRemap is parallel to the source enum's own Values slice. This
// function decodes the source's own is_flags from the shape of
// ValueRemap's owning enum, which the caller threads in via en; for
// flags-awareness we additionally need the live source/target enum
// descriptors, fetched from en's registries by the caller context —
// see enumAdaptContext.
func adaptEnum(en *EnumNode, src, dst []byte) {
	srcIsFlags, dstIsFlags := en.sourceFlags, en.targetFlags

	switch {
	case !srcIsFlags:
		v := readSigned(src)
		idx, ok := en.indexByValue(v)
		if !ok {
			writeSigned(dst, en.fallback())
			return
		}
		writeSigned(dst, en.ValueRemap[idx].Value)

	case srcIsFlags && dstIsFlags:
		mask := readUnsigned(src)
		var out uint64
		for i, sv := range en.sourceValues {
			bit := uint64(sv.Value)
			if bit != 0 && mask&bit == bit {
				out |= uint64(en.ValueRemap[i].Value)
			}
		}
		writeUnsigned(dst, out)

	case srcIsFlags && !dstIsFlags:
		mask := readUnsigned(src)
		for i, sv := range en.sourceValues {
			bit := uint64(sv.Value)
			if bit != 0 && mask&bit == bit {
				writeSigned(dst, en.ValueRemap[i].Value)
				return
			}
		}
		writeSigned(dst, en.fallback())
	}
}
