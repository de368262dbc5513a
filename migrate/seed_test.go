package migrate

import (
	"testing"

	"github.com/gostdlib/base/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bearlytools/kanreflect/intern"
	kreflect "github.com/bearlytools/kanreflect/reflect"
)

func registryWith(t *testing.T, structs ...*kreflect.StructDescr) *kreflect.Registry {
	t.Helper()
	ctx := context.Background()
	r := kreflect.New()
	for _, s := range structs {
		require.True(t, r.AddStruct(ctx, s))
	}
	return r
}

func simpleStruct(name string, fields ...*kreflect.FieldDescr) *kreflect.StructDescr {
	var size uint32
	for _, f := range fields {
		if end := f.Offset + f.Size; end > size {
			size = end
		}
	}
	return &kreflect.StructDescr{Name: intern.Intern(name), Size: size, Alignment: 4, Fields: fields}
}

func u32Field(name string, offset uint32) *kreflect.FieldDescr {
	return &kreflect.FieldDescr{Name: intern.Intern(name), Offset: offset, Size: 4, Archetype: kreflect.ArchetypeUnsignedInt}
}

func TestSeedIdenticalStructIsNotNeeded(t *testing.T) {
	ctx := context.Background()
	source := registryWith(t, simpleStruct("Point", u32Field("X", 0), u32Field("Y", 4)))
	target := registryWith(t, simpleStruct("Point", u32Field("X", 0), u32Field("Y", 4)))

	seed := Build(ctx, source, target)
	node, ok := seed.QueryStruct(intern.Intern("Point"))
	require.True(t, ok)
	assert.Equal(t, StatusNotNeeded, node.Status)
}

func TestSeedRemovedStruct(t *testing.T) {
	ctx := context.Background()
	source := registryWith(t, simpleStruct("Ghost", u32Field("X", 0)))
	target := registryWith(t)

	seed := Build(ctx, source, target)
	node, ok := seed.QueryStruct(intern.Intern("Ghost"))
	require.True(t, ok)
	assert.Equal(t, StatusRemoved, node.Status)
}

func TestSeedResizedStructNeedsMigration(t *testing.T) {
	ctx := context.Background()
	source := registryWith(t, simpleStruct("Point", u32Field("X", 0), u32Field("Y", 4)))
	target := registryWith(t, simpleStruct("Point", u32Field("Y", 0), u32Field("X", 4)))

	seed := Build(ctx, source, target)
	node, ok := seed.QueryStruct(intern.Intern("Point"))
	require.True(t, ok)
	assert.Equal(t, StatusNeeded, node.Status)
}

func TestMigratorInstanceCopiesReorderedFields(t *testing.T) {
	ctx := context.Background()
	source := registryWith(t, simpleStruct("Point", u32Field("X", 0), u32Field("Y", 4)))
	target := registryWith(t, simpleStruct("Point", u32Field("Y", 0), u32Field("X", 4)))

	seed := Build(ctx, source, target)
	m := NewMigrator(seed)

	prog, ok := m.ProgramFor(ctx, intern.Intern("Point"))
	require.True(t, ok)

	srcDef, _ := source.QueryStruct(intern.Intern("Point"))
	src := make([]byte, srcDef.Size)
	src[0], src[1], src[2], src[3] = 11, 0, 0, 0 // X = 11
	src[4], src[5], src[6], src[7] = 22, 0, 0, 0 // Y = 22

	dst := make([]byte, srcDef.Size)
	require.NoError(t, Instance(ctx, m, srcDef, prog, src, dst))

	assert.Equal(t, byte(22), dst[0], "Y moved to offset 0")
	assert.Equal(t, byte(11), dst[4], "X moved to offset 4")
}
