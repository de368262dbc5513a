package resource

import (
	"sync"
	"sync/atomic"

	"github.com/gostdlib/base/context"

	"github.com/bearlytools/kanreflect/intern"
	kreflect "github.com/bearlytools/kanreflect/reflect"
)

// Provider is the mutator state driving one resource tree, per spec.md
// §4.F and original_source's resource_provider_state_t. It owns the
// generic entry table, the delayed-addition debounce queue, the set of
// in-flight Operations, and one typeBinding per registered resource
// type.
type Provider struct {
	cfg       Configuration
	registry  *kreflect.Registry
	vfs       VFS
	singleton *Singleton

	// registryGeneration is bumped every time the registry this Provider
	// reads from is swapped for a new one (hot reflection reload, spec.md
	// §4.F "serve_one"). In-flight Operations compare their captured
	// UsedRegistry against this to detect a swap mid-load.
	registryGeneration atomic.Uint64

	watcher Watcher

	mu                 sync.Mutex
	entries            map[entryKey]*GenericEntry
	entriesByID        map[EntryID]*GenericEntry
	entriesByPathHash  map[uint64][]*GenericEntry
	delayed            []*DelayedAddition
	operations         map[EntryID]*Operation
	usages             map[uint64]Usage
	bindings           map[intern.Name]typeBinding

	usageInsertQ []Usage
	usageDeleteQ []uint64

	Updated chan UpdatedEvent
}

// NewProvider constructs a Provider over registry and vfs. Resource
// types may be registered with RegisterType before or after Scan: a
// type registered after Scan gets typed entries for the entries already
// scanned for it at registration time, without a bound string registry.
func NewProvider(cfg Configuration, registry *kreflect.Registry, vfs VFS) *Provider {
	p := &Provider{
		cfg:               cfg,
		registry:          registry,
		vfs:               vfs,
		singleton:         &Singleton{},
		entries:           make(map[entryKey]*GenericEntry),
		entriesByID:       make(map[EntryID]*GenericEntry),
		entriesByPathHash: make(map[uint64][]*GenericEntry),
		operations:        make(map[EntryID]*Operation),
		usages:            make(map[uint64]Usage),
		bindings:          make(map[intern.Name]typeBinding),
		Updated:           make(chan UpdatedEvent, 64),
	}
	p.registryGeneration.Store(1)
	return p
}

// Singleton returns the provider's public counters, per spec.md §6
// resource_provider_singleton_t.
func (p *Provider) Singleton() *Singleton { return p.singleton }

// Entries returns a snapshot of every GenericEntry known to the
// provider, in no particular order. Exposed for callers outside this
// package that need to report on a completed Scan (e.g.
// cmd/kanreflectctl's scan report) without reaching into provider
// internals.
func (p *Provider) Entries() []GenericEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]GenericEntry, 0, len(p.entries))
	for _, ge := range p.entries {
		out = append(out, *ge)
	}
	return out
}

// SwapRegistry installs a new registry (a hot reflection reload) and
// bumps registryGeneration so every in-flight Operation restarts from
// scratch on its next serve step, per spec.md §4.F "serve_one" registry
// generation check.
func (p *Provider) SwapRegistry(registry *kreflect.Registry) {
	p.mu.Lock()
	p.registry = registry
	p.mu.Unlock()
	p.registryGeneration.Add(1)
}

func (p *Provider) registerTypeBinding(typeName intern.Name, tb typeBinding) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bindings[typeName] = tb
	for _, ge := range p.entriesByID {
		if ge.Type == typeName {
			tb.newTypedEntry(ge.EntryID, ge.Name, nil)
			tb.emitRegistered(RegisteredEvent{EntryID: ge.EntryID, Name: ge.Name})
		}
	}
}

// InsertUsage records one reference to (type,name), per spec.md §4.F
// "Usage accounting": on the generic entry's usage counter 0→1
// transition this schedules a load operation; every other insert is a
// no-op beyond the refcount bump, mirroring original_source's
// process_usage_insert. The enqueued usage is applied on the next
// Execute call rather than synchronously, so Execute alone owns entry
// mutation.
func (p *Provider) InsertUsage(u Usage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.usages[u.UsageID] = u
	p.usageInsertQ = append(p.usageInsertQ, u)
}

// DeleteUsage retires a previously inserted usage_id, per spec.md §4.F
// "Usage accounting": on the generic entry's usage counter reaching
// zero, its containers and typed entry are torn down, mirroring
// process_usage_delete.
func (p *Provider) DeleteUsage(usageID uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.usageDeleteQ = append(p.usageDeleteQ, usageID)
}

// applyUsageInserts drains the insert queue under the caller's lock,
// reference-counting existing GenericEntry records and starting a
// load Operation on each 0→1 transition. An insert naming an
// (type,name) pair with no matching GenericEntry is dropped: the
// resource hasn't been scanned yet, matching original_source's
// "entry must already exist" precondition on process_usage_insert.
func (p *Provider) applyUsageInserts() {
	for _, u := range p.usageInsertQ {
		key := entryKey{typ: u.Type, name: u.Name}
		ge, ok := p.entries[key]
		if !ok {
			continue
		}
		ge.UsageCounter++
		if ge.UsageCounter == 1 {
			p.scheduleLoad(ge, u.Priority)
		}
	}
	p.usageInsertQ = p.usageInsertQ[:0]
}

// applyUsageDeletes drains the delete queue, decrementing the owning
// entry's usage counter and, at zero, tearing down its typed entry and
// any containers it owns, per process_usage_delete.
func (p *Provider) applyUsageDeletes() {
	for _, id := range p.usageDeleteQ {
		u, ok := p.usages[id]
		if !ok {
			continue
		}
		delete(p.usages, id)
		key := entryKey{typ: u.Type, name: u.Name}
		ge, ok := p.entries[key]
		if !ok || ge.UsageCounter == 0 {
			continue
		}
		ge.UsageCounter--
		if ge.UsageCounter == 0 {
			p.teardownEntry(ge)
		}
	}
	p.usageDeleteQ = p.usageDeleteQ[:0]
}

// scheduleLoad starts an Operation for ge if one isn't already running,
// capturing the registry generation in effect at schedule time.
func (p *Provider) scheduleLoad(ge *GenericEntry, priority uint32) {
	if _, inFlight := p.operations[ge.EntryID]; inFlight {
		return
	}
	p.operations[ge.EntryID] = &Operation{
		EntryID:      ge.EntryID,
		Priority:     priority,
		Type:         ge.Type,
		UsedRegistry: p.registryGeneration.Load(),
	}
}

// teardownEntry drops ge's typed entry, its loading/loaded containers,
// and any in-flight Operation, per original_source's
// delete_typed_entry path out of process_usage_delete.
func (p *Provider) teardownEntry(ge *GenericEntry) {
	binding, ok := p.bindings[ge.Type]
	if ok {
		if id, ok := binding.loadingContainerID(ge.EntryID); ok {
			binding.deleteContainer(id)
		}
		if id, ok := binding.loadedContainerID(ge.EntryID); ok {
			binding.deleteContainer(id)
		}
		binding.deleteTypedEntry(ge.EntryID)
	}
	if op, ok := p.operations[ge.EntryID]; ok {
		if op.stream != nil {
			op.stream.Close()
		}
		delete(p.operations, ge.EntryID)
	}
}

// calculateUsagePriority reduces every live usage_id against (type,name)
// to a single scheduling priority for the entry, per original_source's
// calculate_usage_priority: the maximum of the contributing usages'
// requested priorities, since any one caller wanting it sooner should
// win over callers content to wait.
func (p *Provider) calculateUsagePriority(typ, name intern.Name) uint32 {
	var max uint32
	for _, u := range p.usages {
		if u.Type == typ && u.Name == name && u.Priority > max {
			max = u.Priority
		}
	}
	return max
}

// entryByPath returns the GenericEntry at filePath, if any, using the
// pathHash shortlist the way original_source's process_file_* family
// does before falling back to an exact string compare.
func (p *Provider) entryByPath(filePath string) (*GenericEntry, bool) {
	for _, ge := range p.entriesByPathHash[pathHash(filePath)] {
		if ge.Path == filePath {
			return ge, true
		}
	}
	return nil, false
}

// delayedByPath returns the DelayedAddition at filePath, if any.
func (p *Provider) delayedByPath(filePath string) (*DelayedAddition, int) {
	h := pathHash(filePath)
	for i, d := range p.delayed {
		if d.PathHash == h && d.Path == filePath {
			return d, i
		}
	}
	return nil, -1
}

// TypedEntryFor exposes the current typed view for entryID to
// callers outside this package that hold a *TypeInterface[T] directly,
// used by tests wiring fixture data without going through InsertUsage.
func TypedEntryFor[T any](ti *TypeInterface[T], entryID EntryID) (*TypedEntry[T], bool) {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	te, ok := ti.entries[entryID]
	return te, ok
}

// lookupEntry finds the GenericEntry for (typ,name), returning
// entryNotFoundErr when there is none. It serves
// Provider methods callers invoke directly by (type,name) rather than
// through Usage records (e.g. a forced reload request).
func (p *Provider) lookupEntry(ctx context.Context, typ, name intern.Name) (*GenericEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ge, ok := p.entries[entryKey{typ: typ, name: name}]
	if !ok {
		return nil, entryNotFoundErr(typ, name)
	}
	return ge, nil
}
