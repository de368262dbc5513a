package migrate

import (
	"testing"

	"github.com/gostdlib/base/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bearlytools/kanreflect/intern"
	kbinary "github.com/bearlytools/kanreflect/internal/binary"
	kreflect "github.com/bearlytools/kanreflect/reflect"
)

func signedField(name string, offset, size uint32) *kreflect.FieldDescr {
	return &kreflect.FieldDescr{Name: intern.Intern(name), Offset: offset, Size: size, Archetype: kreflect.ArchetypeSignedInt}
}

// TestProgramFieldWideningScenario is spec.md §8 scenario 1.
func TestProgramFieldWideningScenario(t *testing.T) {
	ctx := context.Background()
	source := registryWith(t, simpleStruct("S", signedField("a", 0, 4), signedField("b", 4, 4)))
	target := registryWith(t, simpleStruct("S", signedField("a", 0, 8), signedField("b", 8, 4)))

	seed := Build(ctx, source, target)
	m := NewMigrator(seed)
	prog, ok := m.ProgramFor(ctx, intern.Intern("S"))
	require.True(t, ok)

	require.Len(t, prog.AdaptNumeric, 1)
	assert.Equal(t, AdaptNumericCmd{SrcOffset: 0, DstOffset: 0, SrcSize: 4, DstSize: 8, Archetype: kreflect.ArchetypeSignedInt, Condition: NoCondition}, prog.AdaptNumeric[0])
	require.Len(t, prog.Copy, 1)
	assert.Equal(t, CopyCmd{SrcOffset: 4, DstOffset: 8, Size: 4, Condition: NoCondition}, prog.Copy[0])

	srcDef, _ := source.QueryStruct(intern.Intern("S"))
	src := make([]byte, srcDef.Size)
	kbinary.Put(src[0:4], int32(0x7FFFFFFF))
	kbinary.Put(src[4:8], int32(5))

	dstDef, _ := target.QueryStruct(intern.Intern("S"))
	dst := make([]byte, dstDef.Size)
	require.NoError(t, Instance(ctx, m, srcDef, prog, src, dst))

	assert.Equal(t, int64(0x7FFFFFFF), kbinary.Get[int64](dst[0:8]))
	assert.Equal(t, int32(5), kbinary.Get[int32](dst[8:12]))
}

func enumField(name string, offset uint32, enumName intern.Name) *kreflect.FieldDescr {
	return &kreflect.FieldDescr{Name: intern.Intern(name), Offset: offset, Size: kreflect.PlatformIntSize, Archetype: kreflect.ArchetypeEnum, EnumName: enumName}
}

func registryWithEnumAndStruct(t *testing.T, enum *kreflect.EnumDescr, s *kreflect.StructDescr) *kreflect.Registry {
	t.Helper()
	ctx := context.Background()
	r := kreflect.New()
	require.True(t, r.AddEnum(ctx, enum))
	require.True(t, r.AddStruct(ctx, s))
	return r
}

// TestProgramEnumReorderScenario is spec.md §8 scenario 2.
func TestProgramEnumReorderScenario(t *testing.T) {
	ctx := context.Background()
	enumName := intern.Intern("E")

	sourceEnum := &kreflect.EnumDescr{Name: enumName, Values: []kreflect.EnumValueDescr{
		{Name: intern.Intern("Red"), Value: 0},
		{Name: intern.Intern("Green"), Value: 1},
		{Name: intern.Intern("Blue"), Value: 2},
	}}
	targetEnum := &kreflect.EnumDescr{Name: enumName, Values: []kreflect.EnumValueDescr{
		{Name: intern.Intern("Blue"), Value: 0},
		{Name: intern.Intern("Green"), Value: 1},
		{Name: intern.Intern("Red"), Value: 2},
	}}

	vStruct := func() *kreflect.StructDescr {
		return simpleStruct("V", enumField("color", 0, enumName))
	}

	source := registryWithEnumAndStruct(t, sourceEnum, vStruct())
	target := registryWithEnumAndStruct(t, targetEnum, vStruct())

	seed := Build(ctx, source, target)
	m := NewMigrator(seed)
	prog, ok := m.ProgramFor(ctx, intern.Intern("V"))
	require.True(t, ok)
	require.Len(t, prog.AdaptEnum, 1)
	assert.Empty(t, prog.Copy, "enum field must not also appear in Copy")

	srcDef, _ := source.QueryStruct(intern.Intern("V"))
	src := make([]byte, srcDef.Size)
	kbinary.Put(src[0:kreflect.PlatformIntSize], int(0)) // Red

	dstDef, _ := target.QueryStruct(intern.Intern("V"))
	dst := make([]byte, dstDef.Size)
	require.NoError(t, Instance(ctx, m, srcDef, prog, src, dst))

	assert.Equal(t, int64(2), readSigned(dst[0:kreflect.PlatformIntSize]), "Red moved to value 2 in target")
}

func conditionalStructFields() (kind, payloadA, payloadB *kreflect.FieldDescr) {
	kind = &kreflect.FieldDescr{Name: intern.Intern("kind"), Offset: 0, Size: 1, Archetype: kreflect.ArchetypeUnsignedInt}
	payloadA = &kreflect.FieldDescr{
		Name: intern.Intern("payload_a"), Offset: 4, Size: 4, Archetype: kreflect.ArchetypeUnsignedInt,
		VisibilityConditionField: intern.Intern("kind"), VisibilityConditionValues: []int64{1},
	}
	payloadB = &kreflect.FieldDescr{
		Name: intern.Intern("payload_b"), Offset: 8, Size: 4, Archetype: kreflect.ArchetypeFloating,
		VisibilityConditionField: intern.Intern("kind"), VisibilityConditionValues: []int64{2},
	}
	return
}

// TestProgramConditionalFieldScenario is spec.md §8 scenario 3. It also
// pins the fix for condition() resolving the *condition field's* own
// offset (kind, at 0) rather than the conditioned field's offset
// (payload_a, at 4).
func TestProgramConditionalFieldScenario(t *testing.T) {
	ctx := context.Background()
	kind, payloadA, payloadB := conditionalStructFields()
	source := registryWith(t, &kreflect.StructDescr{Name: intern.Intern("V"), Size: 12, Alignment: 4, Fields: []*kreflect.FieldDescr{kind, payloadA, payloadB}})

	tKind, tPayloadA, tPayloadB := conditionalStructFields()
	version := &kreflect.FieldDescr{Name: intern.Intern("version"), Offset: 12, Size: 4, Archetype: kreflect.ArchetypeUnsignedInt}
	target := registryWith(t, &kreflect.StructDescr{Name: intern.Intern("V"), Size: 16, Alignment: 4, Fields: []*kreflect.FieldDescr{tKind, tPayloadA, tPayloadB, version}})

	seed := Build(ctx, source, target)
	node, ok := seed.QueryStruct(intern.Intern("V"))
	require.True(t, ok)
	require.Equal(t, StatusNeeded, node.Status, "target adds a field, so the struct must require migration")

	m := NewMigrator(seed)
	prog, ok := m.ProgramFor(ctx, intern.Intern("V"))
	require.True(t, ok)

	require.Len(t, prog.Conditions, 2, "payload_a and payload_b each carry a distinct condition on kind")
	for _, c := range prog.Conditions {
		assert.Equal(t, uint32(0), c.SrcOffset, "condition must read kind's own offset, not the conditioned field's")
		assert.Equal(t, uint32(1), c.Size)
		assert.Equal(t, kreflect.ArchetypeUnsignedInt, c.Archetype)
	}

	srcDef, _ := source.QueryStruct(intern.Intern("V"))
	src := make([]byte, srcDef.Size)
	src[0] = 1 // kind = 1: only payload_a is visible
	kbinary.Put(src[4:8], uint32(0xDEADBEEF))
	kbinary.Put(src[8:12], uint32(0xFFFFFFFF)) // payload_b's source bytes: must not be migrated

	dst := make([]byte, 16)
	for i := range dst {
		dst[i] = 0xAA // target's "default init" sentinel
	}
	require.NoError(t, Instance(ctx, m, srcDef, prog, src, dst))

	assert.Equal(t, byte(1), dst[0], "kind copied unconditionally")
	assert.Equal(t, uint32(0xDEADBEEF), kbinary.Get[uint32](dst[4:8]), "payload_a migrated: kind==1")
	assert.Equal(t, []byte{0xAA, 0xAA, 0xAA, 0xAA}, dst[8:12], "payload_b left untouched: kind!=2")
}
