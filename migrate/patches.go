package migrate

import (
	"github.com/gostdlib/base/context"
	"golang.org/x/sync/errgroup"

	"github.com/bearlytools/kanreflect/intern"
	kpatch "github.com/bearlytools/kanreflect/patch"
	kreflect "github.com/bearlytools/kanreflect/reflect"
)

// DefaultBundleSize is the default number of patches assigned to one
// worker task by Patches, mirroring original_source's
// migrate_patches bundle partitioning.
const DefaultBundleSize = 64

// Patches rewrites every patch linked to source into target's type
// system, per spec.md §4.E "Patch migration". It partitions
// source.Patches() into bundles of bundleSize (DefaultBundleSize if
// zero), migrating each bundle concurrently with errgroup since every
// bundle owns a private builder and a disjoint slice of the patch
// list — they share no mutable state during execution.
func Patches(ctx context.Context, m *Migrator, source, target *kreflect.Registry, bundleSize int) error {
	if bundleSize <= 0 {
		bundleSize = DefaultBundleSize
	}

	all := source.Patches()
	// Build every Program up front so the bundles below only read the
	// migrator's program cache.
	for _, lp := range all {
		m.ProgramFor(ctx, lp.StructName())
	}
	g, gctx := errgroup.WithContext(ctx)

	for start := 0; start < len(all); start += bundleSize {
		end := start + bundleSize
		if end > len(all) {
			end = len(all)
		}
		bundle := all[start:end]
		g.Go(func() error {
			return migrateBundle(gctx, m, target, bundle)
		})
	}

	return g.Wait()
}

// migrateBundle migrates every patch in bundle in place, per patch
// rebuilding its compiled form against target. A patch whose type no
// longer exists in target is destroyed instead (spec.md §4.E).
func migrateBundle(ctx context.Context, m *Migrator, target *kreflect.Registry, bundle []kreflect.LinkedPatch) error {
	for _, lp := range bundle {
		c, ok := lp.(*kpatch.Compiled)
		if !ok {
			continue
		}

		structName := c.StructName()
		node, ok := m.seed.QueryStruct(structName)
		if !ok || node.Status == StatusRemoved {
			c.Destroy(ctx)
			continue
		}
		if node.Status == StatusNotNeeded {
			continue // byte-identical layout: nothing to rewrite.
		}

		prog, ok := m.ProgramFor(ctx, structName)
		if !ok {
			c.Destroy(ctx)
			continue
		}

		if err := migratePatch(ctx, m, target, structName, prog, c); err != nil {
			return err
		}
	}
	return nil
}

// migratePatch walks c's existing nodes and re-emits them through a
// fresh Builder against target, per spec.md §4.E's three-cursor
// (Copy/AdaptNumeric/AdaptEnum) description. Conditions are resolved
// against the patch's own covered bytes: the most recently visited
// node whose range contains the condition's source offset supplies
// the value; if no node covers it, the first condition at that offset
// defaults to true and any later condition at the same offset
// defaults to false — the explicit policy spec.md §4.E records to
// avoid duplicate emission when a patch never asserts a condition.
//
// This module resolves that policy by tracking, per source offset,
// whether a condition there has already been defaulted once
// (conditionCache.defaulted) — the Open
// Question this spec flags as needing a concrete heuristic; see
// DESIGN.md.
func migratePatch(ctx context.Context, m *Migrator, target *kreflect.Registry, structName intern.Name, prog *Program, c *kpatch.Compiled) error {
	b := kpatch.NewBuilder()
	condCache := newConditionCache(prog, c)

	for n := range c.Iterate() {
		if err := migrateNodeRange(ctx, m, b, prog, condCache, n); err != nil {
			return err
		}
	}

	if _, err := b.Build(ctx, target, structName); err != nil {
		return err
	}
	c.Destroy(ctx)
	return nil
}

// conditionCache implements the §4.E patch-migration condition policy:
// lazily evaluated, cached per condition index, defaulting to true on
// first use at a given source offset and false thereafter.
type conditionCache struct {
	prog     *Program
	patch    *kpatch.Compiled
	computed []int8 // -1 = not computed, 0 = false, 1 = true
	defaulted map[uint32]bool
}

func newConditionCache(prog *Program, patch *kpatch.Compiled) *conditionCache {
	computed := make([]int8, len(prog.Conditions))
	for i := range computed {
		computed[i] = -1
	}
	return &conditionCache{prog: prog, patch: patch, computed: computed, defaulted: make(map[uint32]bool)}
}

func (cc *conditionCache) eval(idx int) bool {
	if idx == NoCondition {
		return true
	}
	if cc.computed[idx] != -1 {
		return cc.computed[idx] == 1
	}

	cond := cc.prog.Conditions[idx]
	result := cc.fromCoveredBytes(cond)
	if cond.Parent != NoCondition {
		result = result && cc.eval(cond.Parent)
	}

	if result {
		cc.computed[idx] = 1
	} else {
		cc.computed[idx] = 0
	}
	return result
}

// fromCoveredBytes finds the latest node in the patch whose range
// contains cond.SrcOffset and reads the condition field's value from
// there; absent that, the first condition at this offset defaults to
// true and subsequent ones default to false.
func (cc *conditionCache) fromCoveredBytes(cond ConditionCmd) bool {
	var latest *kpatch.Node
	for n := range cc.patch.Iterate() {
		n := n
		if cond.SrcOffset >= n.Offset && cond.SrcOffset < n.Offset+n.Size {
			latest = &n
		}
	}
	if latest == nil {
		if cc.defaulted[cond.SrcOffset] {
			return false
		}
		cc.defaulted[cond.SrcOffset] = true
		return true
	}

	rel := cond.SrcOffset - latest.Offset
	if rel+cond.Size > uint32(len(latest.Bytes)) {
		return false // node doesn't actually cover the condition field's full width.
	}
	raw := latest.Bytes[rel : rel+cond.Size]
	v, ok := decodeInt(cond.Archetype, raw)
	if !ok {
		return false
	}
	for _, want := range cond.Values {
		if v == want {
			return true
		}
	}
	return false
}

// migrateNodeRange dispatches the byte range a single source node
// covers against the first matching command in the Copy,
// AdaptNumeric, or AdaptEnum streams whose source range reaches the
// node's starting offset, per spec.md §4.E.
func migrateNodeRange(ctx context.Context, m *Migrator, b *kpatch.Builder, prog *Program, cc *conditionCache, n kpatch.Node) error {
	offset := n.Offset
	end := n.Offset + n.Size

	for offset < end {
		cmd, kind, ok := findCommandAt(prog, offset)
		if !ok {
			// No command covers this byte: the field was dropped by
			// migration (unmapped). Skip one byte and keep scanning.
			offset++
			continue
		}
		if !cc.eval(commandCondition(cmd, kind)) {
			offset = commandSrcEnd(cmd, kind)
			continue
		}

		switch kind {
		case cmdCopy:
			c := cmd.(CopyCmd)
			rel := offset - c.SrcOffset
			remaining := (c.SrcOffset + c.Size) - offset
			if remaining > end-offset {
				remaining = end - offset
			}
			data := n.Bytes[offset-n.Offset : offset-n.Offset+remaining]
			if err := b.AddChunk(ctx, c.DstOffset+rel, remaining, data); err != nil {
				return err
			}
			offset += remaining

		case cmdAdaptNumeric:
			c := cmd.(AdaptNumericCmd)
			src := n.Bytes[offset-n.Offset : offset-n.Offset+c.SrcSize]
			dst := make([]byte, c.DstSize)
			adaptNumeric(c.Archetype, src, dst)
			if err := b.AddChunk(ctx, c.DstOffset, c.DstSize, dst); err != nil {
				return err
			}
			offset += c.SrcSize

		case cmdAdaptEnum:
			c := cmd.(AdaptEnumCmd)
			en, ok := m.seed.QueryEnum(c.EnumName)
			if !ok {
				return enumNotRegisteredErr(c.EnumName)
			}
			src := n.Bytes[offset-n.Offset : offset-n.Offset+kreflect.PlatformIntSize]
			dst := make([]byte, kreflect.PlatformIntSize)
			adaptEnum(en, src, dst)
			if err := b.AddChunk(ctx, c.DstOffset, kreflect.PlatformIntSize, dst); err != nil {
				return err
			}
			offset += kreflect.PlatformIntSize

		default:
			offset++
		}
	}
	return nil
}

type cmdKind int

const (
	cmdCopy cmdKind = iota
	cmdAdaptNumeric
	cmdAdaptEnum
)

func findCommandAt(prog *Program, offset uint32) (any, cmdKind, bool) {
	for _, c := range prog.Copy {
		if offset >= c.SrcOffset && offset < c.SrcOffset+c.Size {
			return c, cmdCopy, true
		}
	}
	for _, c := range prog.AdaptNumeric {
		if offset >= c.SrcOffset && offset < c.SrcOffset+c.SrcSize {
			return c, cmdAdaptNumeric, true
		}
	}
	for _, c := range prog.AdaptEnum {
		if offset >= c.SrcOffset && offset < c.SrcOffset+kreflect.PlatformIntSize {
			return c, cmdAdaptEnum, true
		}
	}
	return nil, 0, false
}

func commandCondition(cmd any, kind cmdKind) int {
	switch kind {
	case cmdCopy:
		return cmd.(CopyCmd).Condition
	case cmdAdaptNumeric:
		return cmd.(AdaptNumericCmd).Condition
	case cmdAdaptEnum:
		return cmd.(AdaptEnumCmd).Condition
	}
	return NoCondition
}

func commandSrcEnd(cmd any, kind cmdKind) uint32 {
	switch kind {
	case cmdCopy:
		c := cmd.(CopyCmd)
		return c.SrcOffset + c.Size
	case cmdAdaptNumeric:
		c := cmd.(AdaptNumericCmd)
		return c.SrcOffset + c.SrcSize
	case cmdAdaptEnum:
		c := cmd.(AdaptEnumCmd)
		return c.SrcOffset + kreflect.PlatformIntSize
	}
	return 0
}
