package migrate

import (
	"testing"

	"github.com/gostdlib/base/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bearlytools/kanreflect/intern"
	kbinary "github.com/bearlytools/kanreflect/internal/binary"
	kpatch "github.com/bearlytools/kanreflect/patch"
	kreflect "github.com/bearlytools/kanreflect/reflect"
)

// TestPatchesMigratesConditionalFieldRespectingVisibility is spec.md
// §8 scenario 3 carried through patch migration (§4.E "Patch
// migration"): a patch covering a conditionally-visible field must
// only be rewritten against the target when the condition it depends
// on evaluates true from the patch's own covered bytes, pinning the
// same condition-offset fix TestProgramConditionalFieldScenario checks
// for the Instance path.
func TestPatchesMigratesConditionalFieldRespectingVisibility(t *testing.T) {
	ctx := context.Background()
	kind, payloadA, payloadB := conditionalStructFields()
	source := registryWith(t, &kreflect.StructDescr{Name: intern.Intern("V"), Size: 12, Alignment: 4, Fields: []*kreflect.FieldDescr{kind, payloadA, payloadB}})

	tKind, tPayloadA, tPayloadB := conditionalStructFields()
	version := &kreflect.FieldDescr{Name: intern.Intern("version"), Offset: 12, Size: 4, Archetype: kreflect.ArchetypeUnsignedInt}
	target := registryWith(t, &kreflect.StructDescr{Name: intern.Intern("V"), Size: 16, Alignment: 4, Fields: []*kreflect.FieldDescr{tKind, tPayloadA, tPayloadB, version}})

	body := make([]byte, 12)
	body[0] = 1 // kind = 1: payload_a visible, payload_b not
	kbinary.Put(body[4:8], uint32(0xDEADBEEF))
	kbinary.Put(body[8:12], uint32(0xFFFFFFFF))

	pb := kpatch.NewBuilder()
	require.NoError(t, pb.AddChunk(ctx, 0, 12, body))
	_, err := pb.Build(ctx, source, intern.Intern("V"))
	require.NoError(t, err)
	require.Len(t, source.Patches(), 1)

	seed := Build(ctx, source, target)
	m := NewMigrator(seed)
	require.NoError(t, Patches(ctx, m, source, target, 1))

	assert.Empty(t, source.Patches(), "migrated patch is destroyed on the source side")
	require.Len(t, target.Patches(), 1)

	compiled, ok := target.Patches()[0].(*kpatch.Compiled)
	require.True(t, ok)

	dst := make([]byte, 16)
	compiled.Apply(dst)

	assert.Equal(t, byte(1), dst[0], "kind carried over")
	assert.Equal(t, uint32(0xDEADBEEF), kbinary.Get[uint32](dst[4:8]), "payload_a migrated: kind==1 in the patch's own bytes")
	assert.Equal(t, []byte{0, 0, 0, 0}, dst[8:12], "payload_b not migrated: condition false, zeroed buffer left untouched")
}
