package resource

import (
	"sync"
	"unsafe"

	"github.com/bearlytools/kanreflect/intern"
	kreflect "github.com/bearlytools/kanreflect/reflect"
)

// typeBinding is the non-generic seam Provider uses to drive one
// resource type's TypeInterface[T] without itself being generic over
// every T a caller registers. It stands in for the "generated per-type
// interface" spec.md §4.F describes
// (resource_provider_resource_type_interface_t), whose four
// pre-opened insert/update/delete queries are reduced here to plain map
// operations against this package's own store instead of the universe
// repository spec.md §1 leaves external.
type typeBinding interface {
	TypeName() intern.Name
	StructDescr() *kreflect.StructDescr

	newTypedEntry(entryID EntryID, name intern.Name, boundStringReg *intern.Table)
	deleteTypedEntry(entryID EntryID)
	loadingContainerID(entryID EntryID) (ContainerID, bool)
	loadedContainerID(entryID EntryID) (ContainerID, bool)
	setLoadingContainerID(entryID EntryID, id ContainerID)
	setLoadedContainerID(entryID EntryID, id ContainerID)
	clearLoadingContainerID(entryID EntryID)
	clearLoadedContainerID(entryID EntryID)
	boundStringRegistry(entryID EntryID) *intern.Table

	newContainer(id ContainerID, allocGroup string) []byte
	containerBytes(id ContainerID) []byte
	deleteContainer(id ContainerID)

	emitRegistered(ev RegisteredEvent)
	emitLoaded(ev LoadedEvent)
}

// TypeInterface is the generic, per-resource-type store Provider
// dispatches into by type name, per spec.md §4.F's "Type-driven code
// generation": the four generated types (typed_entry_<T>, container_<T>,
// resource_registered_event_<T>, resource_loaded_event_<T>) rendered as
// Go generics parametrized on T instead of emitted source, per §9
// "Reflection generator".
type TypeInterface[T any] struct {
	typeName   intern.Name
	structDef  *kreflect.StructDescr

	mu         sync.Mutex
	entries    map[EntryID]*TypedEntry[T]
	containers map[ContainerID]*Container[T]

	Registered chan RegisteredEvent
	Loaded     chan LoadedEvent
}

// RegisterType creates a TypeInterface[T] for typeName, registers it
// with provider, and returns it so callers can subscribe to its
// Registered/Loaded event channels. structDef must already be present
// in provider's registry (it describes T's on-wire layout for the
// reference BinaryReader).
func RegisterType[T any](provider *Provider, typeName intern.Name) (*TypeInterface[T], error) {
	structDef, ok := provider.registry.QueryStruct(typeName)
	if !ok {
		return nil, typeNotRegisteredErr(typeName)
	}

	ti := &TypeInterface[T]{
		typeName:   typeName,
		structDef:  structDef,
		entries:    make(map[EntryID]*TypedEntry[T]),
		containers: make(map[ContainerID]*Container[T]),
		Registered: make(chan RegisteredEvent, 32),
		Loaded:     make(chan LoadedEvent, 32),
	}
	provider.registerTypeBinding(typeName, ti)
	return ti, nil
}

func (t *TypeInterface[T]) TypeName() intern.Name                { return t.typeName }
func (t *TypeInterface[T]) StructDescr() *kreflect.StructDescr   { return t.structDef }

// Loadable returns the resource value currently promoted to "loaded"
// for entryID, if any, mirroring a read against typed_entry_<T>'s
// loaded_container_id followed by a container lookup.
func (t *TypeInterface[T]) Loadable(entryID EntryID) (*T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	te, ok := t.entries[entryID]
	if !ok || te.LoadedContainerID == invalidID {
		return nil, false
	}
	c, ok := t.containers[ContainerID(te.LoadedContainerID)]
	if !ok {
		return nil, false
	}
	return &c.Resource, true
}

func (t *TypeInterface[T]) newTypedEntry(entryID EntryID, name intern.Name, boundStringReg *intern.Table) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[entryID] = &TypedEntry[T]{EntryID: entryID, Name: name, BoundStringRegistry: boundStringReg}
}

func (t *TypeInterface[T]) deleteTypedEntry(entryID EntryID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, entryID)
}

func (t *TypeInterface[T]) loadingContainerID(entryID EntryID) (ContainerID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	te, ok := t.entries[entryID]
	if !ok || te.LoadingContainerID == invalidID {
		return 0, false
	}
	return te.LoadingContainerID, true
}

func (t *TypeInterface[T]) loadedContainerID(entryID EntryID) (ContainerID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	te, ok := t.entries[entryID]
	if !ok || te.LoadedContainerID == invalidID {
		return 0, false
	}
	return te.LoadedContainerID, true
}

func (t *TypeInterface[T]) setLoadingContainerID(entryID EntryID, id ContainerID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if te, ok := t.entries[entryID]; ok {
		te.LoadingContainerID = id
	}
}

func (t *TypeInterface[T]) setLoadedContainerID(entryID EntryID, id ContainerID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if te, ok := t.entries[entryID]; ok {
		te.LoadedContainerID = id
	}
}

func (t *TypeInterface[T]) clearLoadingContainerID(entryID EntryID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if te, ok := t.entries[entryID]; ok {
		te.LoadingContainerID = invalidID
	}
}

func (t *TypeInterface[T]) clearLoadedContainerID(entryID EntryID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if te, ok := t.entries[entryID]; ok {
		te.LoadedContainerID = invalidID
	}
}

func (t *TypeInterface[T]) boundStringRegistry(entryID EntryID) *intern.Table {
	t.mu.Lock()
	defer t.mu.Unlock()
	if te, ok := t.entries[entryID]; ok {
		return te.BoundStringRegistry
	}
	return nil
}

// newContainer allocates a zeroed Container[T] under id and returns a
// raw byte view directly over its Resource field — the "aligned payload
// address inside the container" spec.md §4.F's serve_one step points
// the binary reader at, rendered in Go as an unsafe.Slice over the
// struct's own memory rather than a copy.
func (t *TypeInterface[T]) newContainer(id ContainerID, allocGroup string) []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := &Container[T]{ContainerID: id, AllocationGroup: allocGroup}
	t.containers[id] = c
	return containerBytes(c)
}

func (t *TypeInterface[T]) containerBytes(id ContainerID) []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.containers[id]
	if !ok {
		return nil
	}
	return containerBytes(c)
}

func (t *TypeInterface[T]) deleteContainer(id ContainerID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.containers, id)
}

func (t *TypeInterface[T]) emitRegistered(ev RegisteredEvent) {
	select {
	case t.Registered <- ev:
	default:
	}
}

func (t *TypeInterface[T]) emitLoaded(ev LoadedEvent) {
	select {
	case t.Loaded <- ev:
	default:
	}
}

// containerBytes returns a byte view over c.Resource's own memory. This
// requires T to have no pointers the provider needs to track separately
// from Go's garbage collector, which holds for every resource type this
// module's tests register (plain value structs); a type with internal
// pointers remains memory-safe to decode into (the reference reader
// only ever writes fixed-width/primitive leaves, see reader.go), it
// just won't have those pointer fields populated.
func containerBytes[T any](c *Container[T]) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(&c.Resource)), unsafe.Sizeof(c.Resource))
}
