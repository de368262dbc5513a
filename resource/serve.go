package resource

import (
	"path"
	"sort"
	"time"

	"github.com/gostdlib/base/context"
	"golang.org/x/sync/errgroup"

	"github.com/bearlytools/kanreflect/intern"
)

// Execute runs one frame of the provider's serve loop, per spec.md §4.F
// "Operation scheduling" and original_source's
// universe_resource_provider_serve: it drains pending watcher events,
// promotes expired delayed additions and reload timers, applies queued
// usage inserts/deletes, and steps as many in-flight Operations as fit
// within cfg.ServeBudget, highest priority first, each in its own
// goroutine of one errgroup (the number of goroutines is not limited).
//
// Execute is not safe for concurrent calls against the same Provider;
// callers invoke it from a single driving goroutine per frame, the way
// original_source's single-threaded frame loop calls serve once per
// tick.
func (p *Provider) Execute(ctx context.Context) error {
	frameStart := now()
	deadline := frameStart.Add(p.cfg.ServeBudget)
	if p.cfg.ServeBudget <= 0 {
		deadline = frameStart.Add(24 * time.Hour)
	}

	p.mu.Lock()
	if p.watcher != nil {
		p.drainWatcher()
	}
	p.promoteDelayedAdditions(frameStart)
	p.promoteReloadTimers(frameStart)
	p.applyUsageInserts()
	p.applyUsageDeletes()
	ops := p.dueOperations()
	p.mu.Unlock()

	if len(ops) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, op := range ops {
		op := op
		if now().After(deadline) {
			break
		}
		g.Go(func() error {
			return p.serveOne(gctx, op, deadline)
		})
	}
	return g.Wait()
}

// drainWatcher folds pending WatchEvents into delayed additions, reload
// timers and removal marks, per spec.md §4.F step 2. Must be called
// with p.mu held.
func (p *Provider) drainWatcher() {
	wait := p.cfg.changeWaitTime()
	for {
		select {
		case ev, ok := <-p.watcher.Events():
			if !ok {
				return
			}
			p.applyWatchEvent(ev, wait)
		default:
			return
		}
	}
}

// applyWatchEvent folds one WatchEvent into provider state, per
// original_source's process_file_added/modified/removed. Must be
// called with p.mu held.
func (p *Provider) applyWatchEvent(ev WatchEvent, wait time.Duration) {
	full := path.Join(p.cfg.ResourceDirectoryPath, ev.Path)

	switch ev.Op {
	case WatchAdded:
		if _, ok := p.entryByPath(full); ok {
			return // already known: a rename/replace landing on a tracked path.
		}
		if d, _ := p.delayedByPath(full); d != nil {
			d.InvestigateAfter = setTimer(now().Add(wait))
			return
		}
		p.delayed = append(p.delayed, &DelayedAddition{
			PathHash:         pathHash(full),
			Path:             full,
			InvestigateAfter: setTimer(now().Add(wait)),
		})

	case WatchModified:
		ge, ok := p.entryByPath(full)
		if !ok {
			// Modified before the scan noticed it exists: treat as added.
			p.applyWatchEvent(WatchEvent{Op: WatchAdded, Path: ev.Path}, wait)
			return
		}
		ge.ReloadAfter = setTimer(now().Add(wait))

	case WatchRemoved:
		if ge, ok := p.entryByPath(full); ok {
			ge.RemovalMark = true
			return
		}
		if _, idx := p.delayedByPath(full); idx >= 0 {
			p.delayed = append(p.delayed[:idx], p.delayed[idx+1:]...)
		}
	}
}

// promoteDelayedAdditions drops any DelayedAddition whose debounce
// window has expired into a scan of that single path, per spec.md §4.F
// "new files wait out a debounce window before being trusted". Must be
// called with p.mu held.
func (p *Provider) promoteDelayedAdditions(at time.Time) {
	var remaining []*DelayedAddition
	for _, d := range p.delayed {
		if !d.InvestigateAfter.expired(at) {
			remaining = append(remaining, d)
			continue
		}
		p.promoteOneDelayedAddition(d)
	}
	p.delayed = remaining
}

func (p *Provider) promoteOneDelayedAddition(d *DelayedAddition) {
	stream, err := p.vfs.OpenForRead(d.Path)
	if err != nil {
		return // file vanished again before the debounce window closed.
	}
	defer stream.Close()

	typ, err := ReadTypeHeader(stream, nil)
	if err != nil {
		return
	}
	base := path.Base(d.Path)
	ext := path.Ext(base)
	name := intern.Intern(base[:len(base)-len(ext)])

	p.registerNewEntryLocked(typ, name, d.Path, nil)
}

// registerNewEntryLocked is registerNewEntry's body, reused by the
// watcher path which already holds p.mu (unlike scan.go's
// registerNewEntry, called before Execute's locking begins).
func (p *Provider) registerNewEntryLocked(typ, name intern.Name, filePath string, boundReg *intern.Table) (EntryID, error) {
	key := entryKey{typ: typ, name: name}
	if _, exists := p.entries[key]; exists {
		return 0, duplicateEntryErr(typ, name)
	}
	id := p.singleton.allocEntryID()
	ge := &GenericEntry{
		EntryID:  id,
		Type:     typ,
		Name:     name,
		Path:     filePath,
		PathHash: pathHash(filePath),
	}
	p.entries[key] = ge
	p.entriesByID[id] = ge
	p.entriesByPathHash[ge.PathHash] = append(p.entriesByPathHash[ge.PathHash], ge)

	if binding, ok := p.bindings[typ]; ok {
		binding.newTypedEntry(id, name, boundReg)
		binding.emitRegistered(RegisteredEvent{EntryID: id, Name: name})
	}
	return id, nil
}

// promoteReloadTimers starts a fresh Operation for every GenericEntry
// whose ReloadAfter has expired and clears the timer, per spec.md §4.F
// "modifications to a known entry... schedule a reload after the same
// debounce window". Must be called with p.mu held.
func (p *Provider) promoteReloadTimers(at time.Time) {
	for _, ge := range p.entriesByID {
		if !ge.ReloadAfter.expired(at) {
			continue
		}
		ge.ReloadAfter = timerNever
		if ge.UsageCounter == 0 {
			continue // nobody is using it: reload lazily on next usage insert.
		}
		priority := p.calculateUsagePriority(ge.Type, ge.Name)
		p.scheduleLoad(ge, priority)
	}
}

// dueOperations returns every in-flight Operation sorted highest
// priority first, per spec.md §4.F "higher-priority operations are
// served before lower-priority ones within the same frame". Must be
// called with p.mu held; the returned slice is safe to range over
// without the lock since Operation pointers are not mutated elsewhere
// concurrently with Execute (Execute is single-caller, see doc comment).
func (p *Provider) dueOperations() []*Operation {
	out := make([]*Operation, 0, len(p.operations))
	for _, op := range p.operations {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

// serveOne advances one Operation, per original_source's
// execute_shared_serve_load: detect a registry swap since scheduling
// (restart from scratch), open the stream and allocation container on
// first touch, then step the BinaryReader until it finishes, fails, or
// the frame deadline passes.
func (p *Provider) serveOne(ctx context.Context, op *Operation, deadline time.Time) error {
	p.mu.Lock()
	ge, ok := p.entriesByID[op.EntryID]
	binding, hasBinding := p.bindings[op.Type]
	registry := p.registry
	p.mu.Unlock()

	if !ok || !hasBinding {
		p.mu.Lock()
		delete(p.operations, op.EntryID)
		p.mu.Unlock()
		return nil
	}

	if op.UsedRegistry != p.registryGeneration.Load() {
		op.stream = nil
		op.reader = nil
		op.UsedRegistry = p.registryGeneration.Load()
	}

	if op.stream == nil {
		stream, err := p.vfs.OpenForRead(ge.Path)
		if err != nil {
			p.finishOperation(op, false)
			return nil
		}
		fileType, err := ReadTypeHeader(stream, nil)
		if err != nil || fileType != binding.TypeName() {
			stream.Close()
			p.finishOperation(op, false)
			return nil
		}

		structDef := binding.StructDescr()
		p.mu.Lock()
		allocGroup := ge.AllocationGroup
		containerID := p.singleton.allocContainerID()
		dst := binding.newContainer(containerID, allocGroup)
		binding.setLoadingContainerID(ge.EntryID, containerID)
		stringReg := binding.boundStringRegistry(ge.EntryID)
		p.mu.Unlock()

		op.stream = stream
		op.reader = NewReader(stream, dst, registry, structDef, stringReg)
	}

	for {
		if now().After(deadline) {
			return nil // suspension point: resume next frame (spec.md §5).
		}
		state, err := op.reader.Step()
		switch state {
		case StateInProgress:
			continue
		case StateFinished:
			p.completeOperation(ge, binding, op)
			return nil
		case StateFailed:
			_ = err
			p.failOperation(ge, binding, op)
			return nil
		}
	}
}

// completeOperation promotes the operation's loading container to
// loaded, emits the type's Loaded event and, if this was a reload of an
// entry that already had a loaded container, the global Updated event,
// per original_source's "promote on finish" step.
func (p *Provider) completeOperation(ge *GenericEntry, binding typeBinding, op *Operation) {
	p.mu.Lock()
	defer p.mu.Unlock()

	loadingID, _ := binding.loadingContainerID(ge.EntryID)
	wasReload := false
	if prevID, ok := binding.loadedContainerID(ge.EntryID); ok {
		binding.deleteContainer(prevID)
		wasReload = true
	}
	binding.setLoadedContainerID(ge.EntryID, loadingID)
	binding.clearLoadingContainerID(ge.EntryID)
	binding.emitLoaded(LoadedEvent{EntryID: ge.EntryID, Name: ge.Name})

	op.stream.Close()
	delete(p.operations, ge.EntryID)

	if wasReload {
		select {
		case p.Updated <- UpdatedEvent{EntryID: ge.EntryID, Type: ge.Type, Name: ge.Name}:
		default:
		}
	}
}

// failOperation discards the in-progress container and the Operation.
// The load is not retried; a new one is only scheduled by a later
// reload timer or a new 0→1 usage transition.
func (p *Provider) failOperation(ge *GenericEntry, binding typeBinding, op *Operation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if loadingID, ok := binding.loadingContainerID(ge.EntryID); ok {
		binding.deleteContainer(loadingID)
		binding.clearLoadingContainerID(ge.EntryID)
	}
	if op.stream != nil {
		op.stream.Close()
	}
	delete(p.operations, ge.EntryID)
}

// finishOperation is the early-exit path for a load that failed before
// a BinaryReader was ever created (open or type-header mismatch).
func (p *Provider) finishOperation(op *Operation, _ bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.operations, op.EntryID)
}
