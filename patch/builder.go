// Package patch implements spec.md §4.C: a grow-only builder that
// accepts out-of-order (offset, size, bytes) chunks and compiles them
// into a sorted, merged, aligned overlay that can later be applied to
// a struct instance or walked node by node.
//
// Grounded on original_source's patch_builder_t / compiled_patch_t
// (reflection_kan/kan/reflection/reflection.c), rendered as plain Go
// slices in place of the C version's stack allocator and intrusive
// linked list.
package patch

import (
	"sort"

	"github.com/gostdlib/base/context"

	"github.com/bearlytools/kanreflect/errs"
	"github.com/bearlytools/kanreflect/intern"
	kreflect "github.com/bearlytools/kanreflect/reflect"
)

// chunk is one raw (offset, size, bytes) triple as handed to AddChunk,
// preserved in insertion order until Build sorts them.
type chunk struct {
	offset uint16
	size   uint16
	bytes  []byte
}

// Builder accumulates chunks for exactly one Build call. It is not
// safe for concurrent use; callers typically build one builder per
// goroutine, matching the per-task local builders spec.md §4.E's
// patch-migration worker bundles use.
type Builder struct {
	chunks []chunk
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddChunk appends a chunk. offset and size must each fit in 16 bits
// (spec.md §4.C); len(bytes) must equal size. Chunks may be added in
// any order; Build sorts them.
func (b *Builder) AddChunk(ctx context.Context, offset, size uint32, bytes []byte) error {
	if offset > 0xFFFF || size > 0xFFFF {
		return errs.E(ctx, errs.CatUser, errs.TypePatchBuild, chunkRangeErr(offset, size))
	}
	if uint32(len(bytes)) != size {
		return errs.E(ctx, errs.CatUser, errs.TypePatchBuild, chunkLenErr(size, len(bytes)))
	}
	cp := make([]byte, size)
	copy(cp, bytes)
	b.chunks = append(b.chunks, chunk{offset: uint16(offset), size: uint16(size), bytes: cp})
	return nil
}

// NodeCount reports how many chunks have been added so far (before
// sort/coalesce).
func (b *Builder) NodeCount() int {
	return len(b.chunks)
}

// Build sorts the buffered chunks by offset, rejects overlapping
// ranges, coalesces adjacent ranges into single nodes, lays the result
// out into one contiguous blob, and links the resulting Compiled patch
// into registry's patch list (spec.md §4.C steps 1-5). The builder is
// reset to empty on both success and failure; on failure, no patch is
// linked.
func (b *Builder) Build(ctx context.Context, registry *kreflect.Registry, structName intern.Name) (*Compiled, error) {
	defer func() { b.chunks = nil }()

	if len(b.chunks) == 0 {
		c := &Compiled{structName: structName, registry: registry}
		registry.LinkPatch(c)
		return c, nil
	}

	sorted := make([]chunk, len(b.chunks))
	copy(sorted, b.chunks)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].offset < sorted[j].offset })

	for i := 1; i < len(sorted); i++ {
		prev, next := sorted[i-1], sorted[i]
		if uint32(prev.offset)+uint32(prev.size) > uint32(next.offset) {
			return nil, errs.E(ctx, errs.CatUser, errs.TypePatchBuild, overlapErr(prev.offset, prev.size, next.offset))
		}
	}

	merged := coalesce(sorted)

	nodes := make([]Node, 0, len(merged))
	blob := make([]byte, 0, estimateBlobSize(merged))
	for _, m := range merged {
		blob = appendNode(blob, m.offset, m.bytes)
		nodes = append(nodes, Node{Offset: uint32(m.offset), Size: uint32(m.size), Bytes: m.bytes})
	}

	c := &Compiled{
		structName: structName,
		registry:   registry,
		nodes:      nodes,
		blob:       blob,
	}
	registry.LinkPatch(c)
	return c, nil
}

// coalesce merges adjacent sorted chunks whose ranges abut
// (prev.offset+prev.size == next.offset) into one node, per spec.md
// §4.C step 3.
func coalesce(sorted []chunk) []chunk {
	out := make([]chunk, 0, len(sorted))
	cur := sorted[0]
	curBytes := append([]byte(nil), cur.bytes...)

	for i := 1; i < len(sorted); i++ {
		next := sorted[i]
		if uint32(cur.offset)+uint32(len(curBytes)) == uint32(next.offset) {
			curBytes = append(curBytes, next.bytes...)
			continue
		}
		out = append(out, chunk{offset: cur.offset, size: uint16(len(curBytes)), bytes: curBytes})
		cur = next
		curBytes = append([]byte(nil), next.bytes...)
	}
	out = append(out, chunk{offset: cur.offset, size: uint16(len(curBytes)), bytes: curBytes})
	return out
}

func estimateBlobSize(merged []chunk) int {
	total := 0
	for _, m := range merged {
		total += nodeHeaderSize + len(m.bytes)
		total = alignUp(total, nodeAlign)
	}
	return total
}
