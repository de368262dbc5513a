package resource

import (
	"bytes"

	"github.com/gostdlib/base/context"

	"github.com/bearlytools/kanreflect/intern"
	kbinary "github.com/bearlytools/kanreflect/internal/binary"
	kreflect "github.com/bearlytools/kanreflect/reflect"
)

// widget is the fixture Go type registered against the "Widget" struct
// descriptor below: a plain value struct with one uint32 and one
// interned-string field, enough to exercise both of refReader's leaf
// kinds.
type widget struct {
	ID   uint32
	Name int64 // holds an intern.Name.ID(), see reader.go's string leaf encoding
}

func widgetStructDescr() *kreflect.StructDescr {
	return &kreflect.StructDescr{
		Name:      intern.Intern("Widget"),
		Size:      16,
		Alignment: 8,
		Fields: []*kreflect.FieldDescr{
			{Name: intern.Intern("ID"), Offset: 0, Size: 4, Archetype: kreflect.ArchetypeUnsignedInt},
			{Name: intern.Intern("Name"), Offset: 8, Size: kreflect.PointerSize, Archetype: kreflect.ArchetypeInternedString},
		},
	}
}

// newFixtureRegistry returns a registry with Widget registered.
func newFixtureRegistry(ctx context.Context) *kreflect.Registry {
	r := kreflect.New()
	r.AddStruct(ctx, widgetStructDescr())
	return r
}

// encodeWidget writes w in the reference binary format WriteValue
// understands, for use as fixture resource-file bytes.
func encodeWidget(registry *kreflect.Registry, structDef *kreflect.StructDescr, w widget) []byte {
	src := make([]byte, structDef.Size)
	kbinary.Put(src[0:4], w.ID)
	kbinary.Put(src[8:8+kreflect.PointerSize], w.Name)

	var body bytes.Buffer
	_ = WriteValue(&body, src, registry, structDef, intern.Default)

	var out bytes.Buffer
	_ = WriteTypeHeader(&out, "Widget")
	out.Write(body.Bytes())
	return out.Bytes()
}
