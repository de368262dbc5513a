package reflect

import (
	"testing"

	"github.com/gostdlib/base/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bearlytools/kanreflect/intern"
)

func testVehicleStruct() *StructDescr {
	return &StructDescr{
		Name:      intern.Intern("Vehicle"),
		Size:      8,
		Alignment: 4,
		Fields: []*FieldDescr{
			{Name: intern.Intern("Wheels"), Offset: 0, Size: 4, Archetype: ArchetypeUnsignedInt},
			{Name: intern.Intern("Speed"), Offset: 4, Size: 4, Archetype: ArchetypeFloating},
		},
	}
}

func TestRegistryAddAndQueryStruct(t *testing.T) {
	ctx := context.Background()
	r := New()

	s := testVehicleStruct()
	require.True(t, r.AddStruct(ctx, s))
	require.False(t, r.AddStruct(ctx, s), "re-adding the same name must report failure")

	got, ok := r.QueryStruct(intern.Intern("Vehicle"))
	require.True(t, ok)
	assert.Same(t, s, got)

	_, ok = r.QueryStruct(intern.Intern("Nonexistent"))
	assert.False(t, ok)
}

func TestRegistryStructIterInsertionOrder(t *testing.T) {
	ctx := context.Background()
	r := New()

	a := &StructDescr{Name: intern.Intern("A"), Size: 4, Alignment: 4}
	b := &StructDescr{Name: intern.Intern("B"), Size: 4, Alignment: 4}
	r.AddStruct(ctx, a)
	r.AddStruct(ctx, b)

	var order []intern.Name
	for s := range r.StructIter() {
		order = append(order, s.Name)
	}
	require.Equal(t, []intern.Name{a.Name, b.Name}, order)
}

func TestRegistryValidateRejectsEmptyEnum(t *testing.T) {
	ctx := context.Background()
	r := &Registry{Validate: true}

	assert.Panics(t, func() {
		r.AddEnum(ctx, &EnumDescr{Name: intern.Intern("Empty")})
	})
}

func TestRegistryMetadataRoundTrip(t *testing.T) {
	r := New()
	owner := intern.Intern("Vehicle")
	metaType := intern.Intern("doc")

	r.AddStructMeta(owner, metaType, "a vehicle")
	r.AddStructMeta(owner, metaType, "second annotation")

	var got []any
	for m := range r.QueryStructMeta(owner, metaType) {
		got = append(got, m)
	}
	assert.Equal(t, []any{"a vehicle", "second annotation"}, got)
}

func TestRegistryPatchLifecycle(t *testing.T) {
	r := &Registry{}
	p := &fakeLinkedPatch{structName: intern.Intern("Vehicle")}

	r.LinkPatch(p)
	require.Len(t, r.Patches(), 1)

	r.UnlinkPatch(p)
	require.Len(t, r.Patches(), 0)
}

func TestRegistryDestroyDestroysLinkedPatches(t *testing.T) {
	ctx := context.Background()
	r := &Registry{}
	p := &fakeLinkedPatch{structName: intern.Intern("Vehicle")}
	r.LinkPatch(p)

	r.Destroy(ctx)
	assert.True(t, p.destroyed)
	assert.Len(t, r.Patches(), 0)

	_, ok := r.QueryStruct(p.structName)
	assert.False(t, ok)
}

type fakeLinkedPatch struct {
	structName intern.Name
	destroyed  bool
}

func (f *fakeLinkedPatch) StructName() intern.Name { return f.structName }
func (f *fakeLinkedPatch) Destroy(ctx context.Context) { f.destroyed = true }
