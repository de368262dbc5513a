package resource

import (
	"bytes"
	"testing"
	"time"

	"github.com/gostdlib/base/context"
	"github.com/stretchr/testify/require"

	"github.com/bearlytools/kanreflect/intern"
	kreflect "github.com/bearlytools/kanreflect/reflect"
)

func newTestProvider(t *testing.T, vfs *fakeVFS, registry *kreflect.Registry) *Provider {
	t.Helper()
	cfg := Configuration{
		ServeBudget:            time.Second,
		ResourceDirectoryPath:  ".",
		ChangeWaitTime:         -1, // tests drive Scan/Execute directly, no watcher.
	}
	return NewProvider(cfg, registry, vfs)
}

func TestScanDirectoryRegistersEntries(t *testing.T) {
	ctx := context.Background()
	registry := newFixtureRegistry(ctx)
	structDef, ok := registry.QueryStruct(intern.Intern("Widget"))
	require.True(t, ok)

	vfs := newFakeVFS()
	vfs.put("alpha.bin", encodeWidget(registry, structDef, widget{ID: 1, Name: int64(intern.Intern("a").ID())}))
	vfs.put("beta.bin", encodeWidget(registry, structDef, widget{ID: 2, Name: int64(intern.Intern("b").ID())}))

	p := newTestProvider(t, vfs, registry)
	require.NoError(t, p.Scan(ctx))
	require.True(t, p.singleton.ScanDone())
	require.Len(t, p.entries, 2)

	// A second Scan call is a no-op (latched by scanDone).
	require.NoError(t, p.Scan(ctx))
	require.Len(t, p.entries, 2)
}

func TestScanIndexRegistersEntries(t *testing.T) {
	ctx := context.Background()
	registry := newFixtureRegistry(ctx)
	structDef, ok := registry.QueryStruct(intern.Intern("Widget"))
	require.True(t, ok)

	vfs := newFakeVFS()
	vfs.put("widgets/one.bin", encodeWidget(registry, structDef, widget{ID: 1}))

	var buf bytes.Buffer
	err := WriteIndex(&buf, []indexEntry{
		{Type: intern.Intern("Widget"), Name: intern.Intern("one"), Path: "widgets/one.bin"},
	})
	require.NoError(t, err)
	vfs.put(IndexFileName, buf.Bytes())

	p := newTestProvider(t, vfs, registry)
	require.NoError(t, p.Scan(ctx))
	require.Len(t, p.entries, 1)
	ge, ok := p.entries[entryKey{typ: intern.Intern("Widget"), name: intern.Intern("one")}]
	require.True(t, ok)
	require.Equal(t, "widgets/one.bin", ge.Path)
}

func TestRegisterNewEntryRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	registry := newFixtureRegistry(ctx)
	vfs := newFakeVFS()
	p := newTestProvider(t, vfs, registry)

	typ := intern.Intern("Widget")
	name := intern.Intern("dup")
	_, err := p.registerNewEntry(ctx, typ, name, "a.bin", nil)
	require.NoError(t, err)
	_, err = p.registerNewEntry(ctx, typ, name, "b.bin", nil)
	require.Error(t, err)
}

func TestUsageInsertAndDeleteLifecycle(t *testing.T) {
	ctx := context.Background()
	registry := newFixtureRegistry(ctx)
	structDef, ok := registry.QueryStruct(intern.Intern("Widget"))
	require.True(t, ok)

	vfs := newFakeVFS()
	vfs.put("widgets/one.bin", encodeWidget(registry, structDef, widget{ID: 7}))

	p := newTestProvider(t, vfs, registry)
	require.NoError(t, p.Scan(ctx))

	ti, err := RegisterType[widget](p, intern.Intern("Widget"))
	require.NoError(t, err)

	ge, ok := p.entries[entryKey{typ: intern.Intern("Widget"), name: intern.Intern("one")}]
	require.True(t, ok)

	usageID := p.singleton.NextUsageID()
	p.InsertUsage(Usage{UsageID: usageID, Type: intern.Intern("Widget"), Name: intern.Intern("one"), Priority: 5})

	p.mu.Lock()
	p.applyUsageInserts()
	p.mu.Unlock()

	require.Equal(t, uint32(1), ge.UsageCounter)
	require.Contains(t, p.operations, ge.EntryID)

	p.DeleteUsage(usageID)
	p.mu.Lock()
	p.applyUsageDeletes()
	p.mu.Unlock()

	require.Equal(t, uint32(0), ge.UsageCounter)
	_, hasEntry := TypedEntryFor[widget](ti, ge.EntryID)
	require.False(t, hasEntry)
}

func TestCalculateUsagePriorityTakesMax(t *testing.T) {
	ctx := context.Background()
	registry := newFixtureRegistry(ctx)
	p := newTestProvider(t, newFakeVFS(), registry)

	typ, name := intern.Intern("Widget"), intern.Intern("one")
	p.InsertUsage(Usage{UsageID: 1, Type: typ, Name: name, Priority: 3})
	p.InsertUsage(Usage{UsageID: 2, Type: typ, Name: name, Priority: 9})
	p.usages[1] = Usage{UsageID: 1, Type: typ, Name: name, Priority: 3}
	p.usages[2] = Usage{UsageID: 2, Type: typ, Name: name, Priority: 9}

	require.Equal(t, uint32(9), p.calculateUsagePriority(typ, name))
}
