package reflect

import (
	"iter"
	"sync"

	"github.com/bearlytools/kanreflect/intern"
)

// metaKey identifies one (owner[, member], meta-type) bucket. member is
// the zero Name for the three owner-only categories (enum, struct,
// function).
type metaKey struct {
	owner    intern.Name
	member   intern.Name
	metaType intern.Name
}

// metaStore is an append-only multimap from metaKey to opaque metadata
// pointers, backing each of the registry's metadata sets (spec.md §3:
// "five metadata sets keyed by (owner_name [+ member_name],
// meta_type_name) producing zero or more opaque meta pointers per key").
// A plain mutex-guarded map is the idiomatic substitute for the "hash
// bucket container" spec.md §6 lists as an external collaborator; none of
// the example repos export a reusable generic hash-bucket type, so this
// is implemented directly (see DESIGN.md).
type metaStore struct {
	mu   sync.Mutex
	data map[metaKey][]any
}

func newMetaStore() *metaStore {
	return &metaStore{data: make(map[metaKey][]any)}
}

func (s *metaStore) add(owner, member, metaType intern.Name, meta any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := metaKey{owner, member, metaType}
	s.data[k] = append(s.data[k], meta)
}

// query returns an iterator over every meta pointer registered under the
// given key, in insertion order. Metadata keys are not unique: every
// match is yielded.
func (s *metaStore) query(owner, member, metaType intern.Name) iter.Seq[any] {
	s.mu.Lock()
	items := append([]any(nil), s.data[metaKey{owner, member, metaType}]...)
	s.mu.Unlock()

	return func(yield func(any) bool) {
		for _, m := range items {
			if !yield(m) {
				return
			}
		}
	}
}
