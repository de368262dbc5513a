package resource

import (
	"hash/fnv"
	"io"
	"path"
	"strings"

	"github.com/gostdlib/base/context"

	"github.com/bearlytools/kanreflect/intern"
	kbinary "github.com/bearlytools/kanreflect/internal/binary"
)

// pathHash is the hash scan/hot-reload matching uses to shortlist
// candidate GenericEntry/DelayedAddition records by path before the
// exact string compare, per original_source's kan_string_hash(path)
// calls throughout process_file_added/modified/removed. FNV-1a is the
// standard small non-cryptographic hash for this role (spec.md §1
// explicitly excludes cryptographic integrity checks).
func pathHash(p string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(p))
	return h.Sum64()
}

// Scan walks the configured resource directory once, per spec.md §4.F
// "Scan". It prefers a resource_index file when present over a
// recursive directory walk, and is a no-op on every call after the
// first (Singleton.scanDone latches).
func (p *Provider) Scan(ctx context.Context) error {
	p.mu.Lock()
	if p.singleton.scanDone {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	root := p.cfg.ResourceDirectoryPath
	entries, err := p.vfs.ReadDir(root)
	if err != nil {
		return resourceErr(ctx, err)
	}

	hasIndex := false
	for _, e := range entries {
		if !e.IsDir() && e.Name() == IndexFileName {
			hasIndex = true
			break
		}
	}

	if hasIndex {
		if err := p.scanIndex(ctx, root); err != nil {
			return err
		}
	} else if err := p.scanDirectory(ctx, root); err != nil {
		return err
	}

	p.mu.Lock()
	p.singleton.scanDone = true
	p.mu.Unlock()

	if p.cfg.ChangeWaitTime >= 0 {
		w, err := NewWatcher(root)
		if err != nil {
			return resourceErr(ctx, err)
		}
		p.watcher = w
	}
	return nil
}

// scanDirectory recurses into root, registering every file whose name
// ends in BinaryExtension after reading its type header, per spec.md
// §4.F "Otherwise, recurse...".
func (p *Provider) scanDirectory(ctx context.Context, dir string) error {
	entries, err := p.vfs.ReadDir(dir)
	if err != nil {
		return resourceErr(ctx, err)
	}
	for _, e := range entries {
		full := path.Join(dir, e.Name())
		if e.IsDir() {
			if err := p.scanDirectory(ctx, full); err != nil {
				return err
			}
			continue
		}
		if !strings.HasSuffix(e.Name(), BinaryExtension) {
			continue
		}
		typ, name, ok := p.scanFile(ctx, full)
		if !ok {
			continue
		}
		if _, err := p.registerNewEntry(ctx, typ, name, full, nil); err != nil {
			context.Log(ctx).Error(err, "duplicate resource file skipped", "path", full)
		}
	}
	return nil
}

// scanFile opens one candidate resource file and reads its type
// header, deriving name from the filename sans extension.
func (p *Provider) scanFile(ctx context.Context, full string) (typ, name intern.Name, ok bool) {
	stream, err := p.vfs.OpenForRead(full)
	if err != nil {
		context.Log(ctx).Error(err, "failed to open candidate resource file", "path", full)
		return intern.Name{}, intern.Name{}, false
	}
	defer stream.Close()

	typ, err = ReadTypeHeader(stream, nil)
	if err != nil {
		context.Log(ctx).Error(err, "failed to read type header", "path", full)
		return intern.Name{}, intern.Name{}, false
	}

	base := path.Base(full)
	base = strings.TrimSuffix(base, BinaryExtension)
	return typ, intern.Intern(base), true
}

// indexEntry is one row of a reference-format resource_index:
// (type, name, relative_path), per spec.md §6.
type indexEntry struct {
	Type intern.Name
	Name intern.Name
	Path string
}

// scanIndex reads the reference resource_index format (and, if present,
// its companion resource_index_string_registry) and registers every
// listed entry, binding the companion table as each entry's
// BoundStringRegistry per spec.md §3.
func (p *Provider) scanIndex(ctx context.Context, root string) error {
	indexPath := path.Join(root, IndexFileName)
	stream, err := p.vfs.OpenForRead(indexPath)
	if err != nil {
		return resourceErr(ctx, err)
	}
	defer stream.Close()

	var table *intern.Table
	if _, err := p.vfs.Stat(path.Join(root, IndexStringRegistryFileName)); err == nil {
		t, err := p.loadStringRegistry(ctx, path.Join(root, IndexStringRegistryFileName))
		if err != nil {
			return err
		}
		table = t
	}

	for {
		var countBuf [4]byte
		if _, err := io.ReadFull(stream, countBuf[:]); err != nil {
			if err == io.EOF {
				break
			}
			return resourceErr(ctx, err)
		}
		typ, err := ReadTypeHeader(stream, table)
		if err != nil {
			return resourceErr(ctx, err)
		}
		name, err := ReadTypeHeader(stream, table)
		if err != nil {
			return resourceErr(ctx, err)
		}
		relPathName, err := ReadTypeHeader(stream, nil)
		if err != nil {
			return resourceErr(ctx, err)
		}
		relPath := intern.String(relPathName)

		if _, err := p.registerNewEntry(ctx, typ, name, path.Join(root, relPath), table); err != nil {
			context.Log(ctx).Error(err, "duplicate resource index entry skipped", "name", intern.String(name))
		}
	}
	return nil
}

// loadStringRegistry reads a companion interned-string table written in
// the reference format: a uint32 count followed by that many
// length-prefixed strings, each interned in declaration order so a
// later ReadTypeHeader-style handle round-trips against this table.
func (p *Provider) loadStringRegistry(ctx context.Context, full string) (*intern.Table, error) {
	stream, err := p.vfs.OpenForRead(full)
	if err != nil {
		return nil, resourceErr(ctx, err)
	}
	defer stream.Close()

	var countBuf [4]byte
	if _, err := io.ReadFull(stream, countBuf[:]); err != nil {
		return nil, resourceErr(ctx, err)
	}
	count := kbinary.Get[uint32](countBuf[:])

	table := &intern.Table{}
	for i := uint32(0); i < count; i++ {
		if _, err := ReadTypeHeader(stream, table); err != nil {
			return nil, resourceErr(ctx, err)
		}
	}
	return table, nil
}

// WriteIndex writes the reference resource_index format, for tests and
// tools that assemble fixture resource directories. Each entry is
// preceded by a 4-byte reserved field (kept for alignment symmetry with
// loadStringRegistry's count-prefixed records; unused by scanIndex
// beyond its presence).
func WriteIndex(w io.Writer, entries []indexEntry) error {
	for _, e := range entries {
		var pad [4]byte
		if _, err := w.Write(pad[:]); err != nil {
			return err
		}
		if err := WriteTypeHeader(w, intern.String(e.Type)); err != nil {
			return err
		}
		if err := WriteTypeHeader(w, intern.String(e.Name)); err != nil {
			return err
		}
		if err := WriteTypeHeader(w, e.Path); err != nil {
			return err
		}
	}
	return nil
}

// registerNewEntry creates a GenericEntry and, if a typeBinding exists
// for typ, a matching TypedEntry. Duplicate (type,name) registrations
// are rejected with an error and leave existing state untouched, per
// spec.md §7 "Duplicate resource file: logged error, ignored."
func (p *Provider) registerNewEntry(ctx context.Context, typ, name intern.Name, filePath string, boundReg *intern.Table) (EntryID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.registerNewEntryLocked(typ, name, filePath, boundReg)
}
