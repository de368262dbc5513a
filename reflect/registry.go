// Package reflect implements the core type-description catalogue spec.md
// §4.A calls the "Reflection Registry": a write-once-per-key store of
// enum, struct and function descriptions plus attached metadata, queried
// by every other component in this module (the field locator, the patch
// builder, the migration seed/migrator, and the resource provider).
//
// The registry is a catalogue, not an owner: descriptors and metadata
// pointers are borrowed from the caller (spec.md §4.A "Rationale") and
// are never copied or freed by Destroy.
package reflect

import (
	"iter"
	"sync"

	"github.com/gostdlib/base/context"

	"github.com/bearlytools/kanreflect/errs"
	"github.com/bearlytools/kanreflect/intern"
)

// LinkedPatch is the minimal interface the registry needs in order to
// track and tear down every compiled patch built against one of its
// struct types (spec.md §3 "Compiled patch... doubly linked into
// owning_registry"). package patch's Compiled type implements this; the
// registry package itself never imports package patch, which keeps the
// patch <-> reflect dependency one-directional.
type LinkedPatch interface {
	// StructName names the struct type this patch was compiled against.
	StructName() intern.Name
	// Destroy releases the patch's own storage. It must be safe to call
	// exactly once and must not attempt to re-enter the owning registry's
	// locks (Registry.Destroy already holds the patch list exclusively).
	Destroy(ctx context.Context)
}

// Registry is a container over enum, struct and function descriptions
// and their attached metadata, per spec.md §3 "Registry".
type Registry struct {
	// Validate, when true, asserts the invariants from spec.md §3/§8
	// (size/alignment, sorted fields, non-empty enum values, array
	// non-nesting) on every Add* call, panicking on violation. This
	// mirrors the "asserted in debug builds" / "ill-formed in release
	// builds" split from spec.md §7. Production code typically leaves
	// this false; tests set it true.
	Validate bool

	mu            sync.RWMutex
	enums         map[intern.Name]*EnumDescr
	enumOrder     []*EnumDescr
	structs       map[intern.Name]*StructDescr
	structOrder   []*StructDescr
	functions     map[intern.Name]*FunctionDescr
	functionOrder []*FunctionDescr

	enumMeta        *metaStore
	enumValueMeta   *metaStore
	structMeta      *metaStore
	structFieldMeta *metaStore
	functionMeta    *metaStore
	functionArgMeta *metaStore

	patchMu sync.Mutex
	patches []LinkedPatch
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		enums:           make(map[intern.Name]*EnumDescr),
		structs:         make(map[intern.Name]*StructDescr),
		functions:       make(map[intern.Name]*FunctionDescr),
		enumMeta:        newMetaStore(),
		enumValueMeta:   newMetaStore(),
		structMeta:      newMetaStore(),
		structFieldMeta: newMetaStore(),
		functionMeta:    newMetaStore(),
		functionArgMeta: newMetaStore(),
	}
}

// AddEnum registers e. It returns false, leaving the registry unchanged,
// if an enum with the same name is already registered.
func (r *Registry) AddEnum(ctx context.Context, e *EnumDescr) bool {
	if r.Validate {
		if len(e.Values) == 0 {
			panic(errs.E(ctx, errs.CatUser, errs.TypeValidation, enumEmptyErr(e.Name)))
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.enums[e.Name]; ok {
		return false
	}
	r.enums[e.Name] = e
	r.enumOrder = append(r.enumOrder, e)
	return true
}

// AddStruct registers s, enforcing the archetype/size invariants from
// spec.md §3 when Validate is set: size % alignment == 0, fields sorted
// by non-decreasing offset, primitive widths within the allowed set, and
// array items that are not themselves arrays.
func (r *Registry) AddStruct(ctx context.Context, s *StructDescr) bool {
	if r.Validate {
		if err := validateStruct(s); err != nil {
			panic(errs.E(ctx, errs.CatUser, errs.TypeValidation, err))
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.structs[s.Name]; ok {
		return false
	}
	r.structs[s.Name] = s
	r.structOrder = append(r.structOrder, s)
	return true
}

// AddFunction registers f. Arrays are forbidden as arguments or return
// type; this is checked whenever Validate is set.
func (r *Registry) AddFunction(ctx context.Context, f *FunctionDescr) bool {
	if r.Validate {
		if f.ReturnType != nil && f.ReturnType.Archetype.IsArray() {
			panic(errs.E(ctx, errs.CatUser, errs.TypeValidation, functionArrayErr(f.Name, f.ReturnType.Name)))
		}
		for _, a := range f.Arguments {
			if a.Archetype.IsArray() {
				panic(errs.E(ctx, errs.CatUser, errs.TypeValidation, functionArrayErr(f.Name, a.Name)))
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.functions[f.Name]; ok {
		return false
	}
	r.functions[f.Name] = f
	r.functionOrder = append(r.functionOrder, f)
	return true
}

// QueryEnum performs an exact lookup by interned name.
func (r *Registry) QueryEnum(name intern.Name) (*EnumDescr, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.enums[name]
	return e, ok
}

// QueryStruct performs an exact lookup by interned name.
func (r *Registry) QueryStruct(name intern.Name) (*StructDescr, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.structs[name]
	return s, ok
}

// QueryFunction performs an exact lookup by interned name.
func (r *Registry) QueryFunction(name intern.Name) (*FunctionDescr, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.functions[name]
	return f, ok
}

// EnumIter traverses every registered enum in insertion order.
func (r *Registry) EnumIter() iter.Seq[*EnumDescr] {
	r.mu.RLock()
	snapshot := append([]*EnumDescr(nil), r.enumOrder...)
	r.mu.RUnlock()
	return sliceSeq(snapshot)
}

// StructIter traverses every registered struct in insertion order.
func (r *Registry) StructIter() iter.Seq[*StructDescr] {
	r.mu.RLock()
	snapshot := append([]*StructDescr(nil), r.structOrder...)
	r.mu.RUnlock()
	return sliceSeq(snapshot)
}

// FunctionIter traverses every registered function in insertion order.
func (r *Registry) FunctionIter() iter.Seq[*FunctionDescr] {
	r.mu.RLock()
	snapshot := append([]*FunctionDescr(nil), r.functionOrder...)
	r.mu.RUnlock()
	return sliceSeq(snapshot)
}

func sliceSeq[T any](s []T) iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, v := range s {
			if !yield(v) {
				return
			}
		}
	}
}

// --- Metadata ---

// AddEnumMeta appends a metadata pointer for the enum named owner.
// Duplicates are permitted; iteration yields every match.
func (r *Registry) AddEnumMeta(owner, metaType intern.Name, meta any) {
	r.enumMeta.add(owner, intern.Name{}, metaType, meta)
}

// AddEnumValueMeta appends a metadata pointer for one value of an enum.
func (r *Registry) AddEnumValueMeta(owner, value, metaType intern.Name, meta any) {
	r.enumValueMeta.add(owner, value, metaType, meta)
}

// AddStructMeta appends a metadata pointer for the struct named owner.
func (r *Registry) AddStructMeta(owner, metaType intern.Name, meta any) {
	r.structMeta.add(owner, intern.Name{}, metaType, meta)
}

// AddStructFieldMeta appends a metadata pointer for one field of a
// struct.
func (r *Registry) AddStructFieldMeta(owner, field, metaType intern.Name, meta any) {
	r.structFieldMeta.add(owner, field, metaType, meta)
}

// AddFunctionMeta appends a metadata pointer for the function named
// owner.
func (r *Registry) AddFunctionMeta(owner, metaType intern.Name, meta any) {
	r.functionMeta.add(owner, intern.Name{}, metaType, meta)
}

// AddFunctionArgumentMeta appends a metadata pointer for one argument of
// a function.
func (r *Registry) AddFunctionArgumentMeta(owner, arg, metaType intern.Name, meta any) {
	r.functionArgMeta.add(owner, arg, metaType, meta)
}

// QueryEnumMeta yields every metadata pointer registered under
// (owner, metaType).
func (r *Registry) QueryEnumMeta(owner, metaType intern.Name) iter.Seq[any] {
	return r.enumMeta.query(owner, intern.Name{}, metaType)
}

// QueryEnumValueMeta yields every metadata pointer registered under
// (owner, value, metaType).
func (r *Registry) QueryEnumValueMeta(owner, value, metaType intern.Name) iter.Seq[any] {
	return r.enumValueMeta.query(owner, value, metaType)
}

// QueryStructMeta yields every metadata pointer registered under
// (owner, metaType).
func (r *Registry) QueryStructMeta(owner, metaType intern.Name) iter.Seq[any] {
	return r.structMeta.query(owner, intern.Name{}, metaType)
}

// QueryStructFieldMeta yields every metadata pointer registered under
// (owner, field, metaType).
func (r *Registry) QueryStructFieldMeta(owner, field, metaType intern.Name) iter.Seq[any] {
	return r.structFieldMeta.query(owner, field, metaType)
}

// QueryFunctionMeta yields every metadata pointer registered under
// (owner, metaType).
func (r *Registry) QueryFunctionMeta(owner, metaType intern.Name) iter.Seq[any] {
	return r.functionMeta.query(owner, intern.Name{}, metaType)
}

// QueryFunctionArgumentMeta yields every metadata pointer registered
// under (owner, arg, metaType).
func (r *Registry) QueryFunctionArgumentMeta(owner, arg, metaType intern.Name) iter.Seq[any] {
	return r.functionArgMeta.query(owner, arg, metaType)
}

// --- Patch list ---

// LinkPatch registers p as belonging to this registry. Called by
// package patch's Build once a compiled patch is ready, under a short
// lock exactly as spec.md §4.C step 5 describes
// ("patch_addition_lock").
func (r *Registry) LinkPatch(p LinkedPatch) {
	r.patchMu.Lock()
	defer r.patchMu.Unlock()
	r.patches = append(r.patches, p)
}

// UnlinkPatch removes p from this registry's patch list. Safe to call
// even if p is not currently linked.
func (r *Registry) UnlinkPatch(p LinkedPatch) {
	r.patchMu.Lock()
	defer r.patchMu.Unlock()
	for i, q := range r.patches {
		if q == p {
			r.patches = append(r.patches[:i], r.patches[i+1:]...)
			return
		}
	}
}

// Patches returns a snapshot of every patch currently linked to this
// registry, in insertion order. The migration engine partitions this
// list into worker bundles (spec.md §4.E "Patch migration").
func (r *Registry) Patches() []LinkedPatch {
	r.patchMu.Lock()
	defer r.patchMu.Unlock()
	out := make([]LinkedPatch, len(r.patches))
	copy(out, r.patches)
	return out
}

// Destroy releases all compiled patches linked into this registry, then
// clears the stored descriptor and metadata tables. The descriptors
// themselves are borrowed from the caller and are never freed.
func (r *Registry) Destroy(ctx context.Context) {
	for _, p := range r.Patches() {
		p.Destroy(ctx)
	}

	r.patchMu.Lock()
	r.patches = nil
	r.patchMu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.enums = make(map[intern.Name]*EnumDescr)
	r.enumOrder = nil
	r.structs = make(map[intern.Name]*StructDescr)
	r.structOrder = nil
	r.functions = make(map[intern.Name]*FunctionDescr)
	r.functionOrder = nil
	r.enumMeta = newMetaStore()
	r.enumValueMeta = newMetaStore()
	r.structMeta = newMetaStore()
	r.structFieldMeta = newMetaStore()
	r.functionMeta = newMetaStore()
	r.functionArgMeta = newMetaStore()
}
