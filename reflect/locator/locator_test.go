package locator

import (
	"testing"

	"github.com/gostdlib/base/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bearlytools/kanreflect/intern"
	kreflect "github.com/bearlytools/kanreflect/reflect"
)

func buildLocatorFixture(t *testing.T) *kreflect.Registry {
	t.Helper()
	ctx := context.Background()
	r := kreflect.New()

	engine := &kreflect.StructDescr{
		Name:      intern.Intern("Engine"),
		Size:      4,
		Alignment: 4,
		Fields: []*kreflect.FieldDescr{
			{Name: intern.Intern("Horsepower"), Offset: 0, Size: 4, Archetype: kreflect.ArchetypeUnsignedInt},
		},
	}
	car := &kreflect.StructDescr{
		Name:      intern.Intern("Car"),
		Size:      8,
		Alignment: 4,
		Fields: []*kreflect.FieldDescr{
			{Name: intern.Intern("Engine"), Offset: 0, Size: 4, Archetype: kreflect.ArchetypeStruct, StructName: engine.Name},
			{Name: intern.Intern("Year"), Offset: 4, Size: 4, Archetype: kreflect.ArchetypeUnsignedInt},
		},
	}
	require.True(t, r.AddStruct(ctx, engine))
	require.True(t, r.AddStruct(ctx, car))
	return r
}

func names(ss ...string) []intern.Name {
	out := make([]intern.Name, len(ss))
	for i, s := range ss {
		out[i] = intern.Intern(s)
	}
	return out
}

func TestLocateDirectField(t *testing.T) {
	ctx := context.Background()
	r := buildLocatorFixture(t)

	res, ok := Locate(ctx, r, intern.Intern("Car"), names("Year"))
	require.True(t, ok)
	assert.Equal(t, uint32(4), res.AbsoluteOffset)
	assert.Equal(t, uint32(4), res.SizeWithPad)
}

func TestLocateNestedField(t *testing.T) {
	ctx := context.Background()
	r := buildLocatorFixture(t)

	res, ok := Locate(ctx, r, intern.Intern("Car"), names("Engine", "Horsepower"))
	require.True(t, ok)
	assert.Equal(t, uint32(0), res.AbsoluteOffset)
}

func TestLocateStopsAtNonStructArchetype(t *testing.T) {
	ctx := context.Background()
	r := buildLocatorFixture(t)

	_, ok := Locate(ctx, r, intern.Intern("Car"), names("Year", "Anything"))
	assert.False(t, ok, "descending through a non-struct field must fail")
}

func TestLocateUnknownFieldFails(t *testing.T) {
	ctx := context.Background()
	r := buildLocatorFixture(t)

	_, ok := Locate(ctx, r, intern.Intern("Car"), names("Transmission"))
	assert.False(t, ok)
}

func TestLocateEmptyPathFails(t *testing.T) {
	ctx := context.Background()
	r := buildLocatorFixture(t)

	_, ok := Locate(ctx, r, intern.Intern("Car"), nil)
	assert.False(t, ok)
}
