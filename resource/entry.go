package resource

import (
	"github.com/bearlytools/kanreflect/intern"
)

// GenericEntry is the provider's per-file bookkeeping record, one per
// known resource file, per spec.md §3 "Generic entry".
type GenericEntry struct {
	EntryID         EntryID
	Type            intern.Name
	Name            intern.Name
	UsageCounter    uint32
	ReloadAfter     packedTimer
	RemovalMark     bool
	Path            string
	PathHash        uint64
	AllocationGroup string
}

// TypedEntry is the per-resource-type view of a GenericEntry, generated
// once per resource type in the original (typed_entry_<T>) and modeled
// here as a generic type parametrized on the Go type the resource
// deserialises into, per spec.md §3 "Typed entry view".
type TypedEntry[T any] struct {
	EntryID             EntryID
	Name                intern.Name
	LoadedContainerID   ContainerID
	LoadingContainerID  ContainerID
	BoundStringRegistry *intern.Table
}

// Container is the generated per-type box holding one deserialised
// value, per spec.md §3 "Container": container_<T>'s
// {container_id, allocation_group, stored_resource: T}.
type Container[T any] struct {
	ContainerID     ContainerID
	AllocationGroup string
	Resource        T
}

// RegisteredEvent is the generated resource_registered_event_<T>
// (spec.md §3 "Resource entries" / §6 "Emitted events").
type RegisteredEvent struct {
	EntryID EntryID
	Name    intern.Name
}

// LoadedEvent is the generated resource_loaded_event_<T>.
type LoadedEvent struct {
	EntryID EntryID
	Name    intern.Name
}

// UpdatedEvent is the global resource_updated_event spec.md §6 names,
// fired on every hot-reload-triggered modification regardless of type.
type UpdatedEvent struct {
	EntryID EntryID
	Type    intern.Name
	Name    intern.Name
}

// Usage is the caller-facing reference-count contribution described by
// spec.md §6: inserting one increments a GenericEntry's usage counter
// and (on 0→1 transition) schedules a load; deleting one decrements it
// and, at zero, tears the entry's containers down.
type Usage struct {
	UsageID  uint64
	Type     intern.Name
	Name     intern.Name
	Priority uint32
}

// DelayedAddition is a debounced record awaiting InvestigateAfter to
// expire before the provider decides whether it names a genuinely new
// resource, per spec.md §3 "Delayed addition".
type DelayedAddition struct {
	PathHash         uint64
	Path             string
	InvestigateAfter packedTimer
}

// Operation is one in-flight load, per spec.md §3 "Operation". UsedRegistry
// is compared against the provider's current registry on every serve
// step so a mid-load registry swap is detected and the operation is
// restarted from scratch (spec.md §4.F "serve_one").
type Operation struct {
	EntryID      EntryID
	Priority     uint32
	Type         intern.Name
	UsedRegistry uint64 // registry generation stamp, see Provider.registryGeneration

	stream       ReadSeekCloser
	reader       BinaryReader
}
