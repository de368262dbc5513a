package patch

import (
	"testing"

	"github.com/gostdlib/base/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bearlytools/kanreflect/intern"
	kreflect "github.com/bearlytools/kanreflect/reflect"
)

func TestBuilderCoalescesAdjacentChunks(t *testing.T) {
	ctx := context.Background()
	r := kreflect.New()
	structName := intern.Intern("Blob")

	b := NewBuilder()
	require.NoError(t, b.AddChunk(ctx, 4, 2, []byte{0xAA, 0xBB}))
	require.NoError(t, b.AddChunk(ctx, 0, 4, []byte{1, 2, 3, 4}))

	c, err := b.Build(ctx, r, structName)
	require.NoError(t, err)
	assert.Equal(t, 1, c.NodeCount(), "abutting chunks [0,4) and [4,6) must coalesce into one node")

	dst := make([]byte, 8)
	c.Apply(dst)
	assert.Equal(t, []byte{1, 2, 3, 4, 0xAA, 0xBB, 0, 0}, dst)
}

func TestBuilderRejectsOverlap(t *testing.T) {
	ctx := context.Background()
	r := kreflect.New()

	b := NewBuilder()
	require.NoError(t, b.AddChunk(ctx, 0, 4, []byte{1, 2, 3, 4}))
	require.NoError(t, b.AddChunk(ctx, 2, 4, []byte{5, 6, 7, 8}))

	_, err := b.Build(ctx, r, intern.Intern("Blob"))
	assert.Error(t, err)
}

func TestBuilderRejectsOutOfRangeChunk(t *testing.T) {
	ctx := context.Background()
	b := NewBuilder()
	err := b.AddChunk(ctx, 0x10000, 1, []byte{0})
	assert.Error(t, err)
}

func TestBuildLinksCompiledPatchIntoRegistry(t *testing.T) {
	ctx := context.Background()
	r := kreflect.New()
	b := NewBuilder()
	require.NoError(t, b.AddChunk(ctx, 0, 1, []byte{1}))

	c, err := b.Build(ctx, r, intern.Intern("Blob"))
	require.NoError(t, err)
	assert.Contains(t, r.Patches(), kreflect.LinkedPatch(c))

	c.Destroy(ctx)
	assert.NotContains(t, r.Patches(), kreflect.LinkedPatch(c))
}

func TestCompiledIterateAscendingOffset(t *testing.T) {
	ctx := context.Background()
	r := kreflect.New()
	b := NewBuilder()
	require.NoError(t, b.AddChunk(ctx, 8, 1, []byte{9}))
	require.NoError(t, b.AddChunk(ctx, 0, 1, []byte{1}))

	c, err := b.Build(ctx, r, intern.Intern("Blob"))
	require.NoError(t, err)

	var offsets []uint32
	for n := range c.Iterate() {
		offsets = append(offsets, n.Offset)
	}
	assert.Equal(t, []uint32{0, 8}, offsets)
}
