package resource

import (
	"testing"
	"time"

	"github.com/gostdlib/base/context"
	"github.com/stretchr/testify/require"

	"github.com/bearlytools/kanreflect/intern"
)

func TestExecuteLoadsRegisteredUsage(t *testing.T) {
	ctx := context.Background()
	registry := newFixtureRegistry(ctx)
	structDef, ok := registry.QueryStruct(intern.Intern("Widget"))
	require.True(t, ok)

	vfs := newFakeVFS()
	vfs.put("widgets/one.bin", encodeWidget(registry, structDef, widget{
		ID:   42,
		Name: int64(intern.Intern("hello").ID()),
	}))

	p := newTestProvider(t, vfs, registry)
	require.NoError(t, p.Scan(ctx))

	ti, err := RegisterType[widget](p, intern.Intern("Widget"))
	require.NoError(t, err)

	usageID := p.singleton.NextUsageID()
	p.InsertUsage(Usage{UsageID: usageID, Type: intern.Intern("Widget"), Name: intern.Intern("one"), Priority: 1})

	// Two frames: the first applies the insert and schedules the load,
	// the second steps the reader to completion (its deadline is ample,
	// so in practice one frame usually suffices, but driving twice keeps
	// the test independent of how many leaves flattenLeaves produces).
	require.NoError(t, p.Execute(ctx))
	require.NoError(t, p.Execute(ctx))

	ge, ok := p.entries[entryKey{typ: intern.Intern("Widget"), name: intern.Intern("one")}]
	require.True(t, ok)

	v, ok := ti.Loadable(ge.EntryID)
	require.True(t, ok, "expected widget to be loaded after Execute")
	require.Equal(t, uint32(42), v.ID)
	require.Equal(t, "hello", intern.String(intern.NameFromID(int32(v.Name))))
}

func TestExecuteTearsDownOnUsageDelete(t *testing.T) {
	ctx := context.Background()
	registry := newFixtureRegistry(ctx)
	structDef, ok := registry.QueryStruct(intern.Intern("Widget"))
	require.True(t, ok)

	vfs := newFakeVFS()
	vfs.put("widgets/one.bin", encodeWidget(registry, structDef, widget{ID: 1}))

	p := newTestProvider(t, vfs, registry)
	require.NoError(t, p.Scan(ctx))

	ti, err := RegisterType[widget](p, intern.Intern("Widget"))
	require.NoError(t, err)

	usageID := p.singleton.NextUsageID()
	p.InsertUsage(Usage{UsageID: usageID, Type: intern.Intern("Widget"), Name: intern.Intern("one")})
	require.NoError(t, p.Execute(ctx))
	require.NoError(t, p.Execute(ctx))

	ge := p.entries[entryKey{typ: intern.Intern("Widget"), name: intern.Intern("one")}]
	_, loaded := ti.Loadable(ge.EntryID)
	require.True(t, loaded)

	p.DeleteUsage(usageID)
	require.NoError(t, p.Execute(ctx))

	_, stillLoaded := ti.Loadable(ge.EntryID)
	require.False(t, stillLoaded)
}

func TestWatchEventDebouncesNewFile(t *testing.T) {
	ctx := context.Background()
	registry := newFixtureRegistry(ctx)
	structDef, ok := registry.QueryStruct(intern.Intern("Widget"))
	require.True(t, ok)

	vfs := newFakeVFS()
	p := newTestProvider(t, vfs, registry)
	p.cfg.ChangeWaitTime = 10 * time.Millisecond

	full := "new.bin"
	vfs.put(full, encodeWidget(registry, structDef, widget{ID: 9}))

	p.mu.Lock()
	p.applyWatchEvent(WatchEvent{Op: WatchAdded, Path: full}, p.cfg.changeWaitTime())
	p.mu.Unlock()
	require.Len(t, p.delayed, 1)

	// Not yet expired: promotion is a no-op.
	p.mu.Lock()
	p.promoteDelayedAdditions(time.Now())
	p.mu.Unlock()
	require.Len(t, p.delayed, 1)
	require.Len(t, p.entries, 0)

	// After the debounce window, the addition promotes to a real entry.
	p.mu.Lock()
	p.promoteDelayedAdditions(time.Now().Add(20 * time.Millisecond))
	p.mu.Unlock()
	require.Len(t, p.delayed, 0)
	require.Len(t, p.entries, 1)
}
