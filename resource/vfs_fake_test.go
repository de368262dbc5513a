package resource

import (
	"bytes"
	"io"
	"io/fs"
	"path"
	"sort"
	"time"
)

// fakeVFS is a small in-memory VFS double used across this package's
// tests, standing in for NewOSVFS the way the teacher's fakeVCSGit
// stands in for a real VCS in internal/imports' tests.
type fakeVFS struct {
	files map[string][]byte
}

func newFakeVFS() *fakeVFS {
	return &fakeVFS{files: make(map[string][]byte)}
}

func (f *fakeVFS) put(p string, b []byte) {
	f.files[path.Clean(p)] = b
}

func (f *fakeVFS) Open(name string) (fs.File, error) {
	b, ok := f.files[path.Clean(name)]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return &fakeFile{r: bytes.NewReader(b), name: path.Base(name), size: int64(len(b))}, nil
}

func (f *fakeVFS) ReadFile(name string) ([]byte, error) {
	b, ok := f.files[path.Clean(name)]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return b, nil
}

func (f *fakeVFS) ReadDir(name string) ([]fs.DirEntry, error) {
	name = path.Clean(name)
	seen := map[string]bool{}
	var out []fs.DirEntry
	prefix := name + "/"
	if name == "." {
		prefix = ""
	}
	for p := range f.files {
		if !bytes_HasPrefix(p, prefix) {
			continue
		}
		rest := p[len(prefix):]
		if rest == "" {
			continue
		}
		if i := indexByte(rest, '/'); i >= 0 {
			dir := rest[:i]
			if !seen[dir] {
				seen[dir] = true
				out = append(out, fakeDirEntry{name: dir, isDir: true})
			}
			continue
		}
		out = append(out, fakeDirEntry{name: rest, isDir: false})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}

func (f *fakeVFS) Stat(name string) (fs.FileInfo, error) {
	b, ok := f.files[path.Clean(name)]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return fakeFileInfo{name: path.Base(name), size: int64(len(b))}, nil
}

func (f *fakeVFS) OpenForRead(p string) (ReadSeekCloser, error) {
	b, ok := f.files[path.Clean(p)]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return &fakeFile{r: bytes.NewReader(b), name: path.Base(p), size: int64(len(b))}, nil
}

func bytes_HasPrefix(s, prefix string) bool {
	if prefix == "" {
		return true
	}
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func indexByte(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return i
		}
	}
	return -1
}

type fakeFile struct {
	r    *bytes.Reader
	name string
	size int64
}

func (f *fakeFile) Read(p []byte) (int, error)                 { return f.r.Read(p) }
func (f *fakeFile) Seek(offset int64, whence int) (int64, error) { return f.r.Seek(offset, whence) }
func (f *fakeFile) Close() error                                { return nil }
func (f *fakeFile) Stat() (fs.FileInfo, error) {
	return fakeFileInfo{name: f.name, size: f.size}, nil
}

var _ io.ReadSeekCloser = (*fakeFile)(nil)

type fakeFileInfo struct {
	name string
	size int64
}

func (i fakeFileInfo) Name() string       { return i.name }
func (i fakeFileInfo) Size() int64        { return i.size }
func (i fakeFileInfo) Mode() fs.FileMode  { return 0 }
func (i fakeFileInfo) ModTime() time.Time { return time.Time{} }
func (i fakeFileInfo) IsDir() bool        { return false }
func (i fakeFileInfo) Sys() any           { return nil }

type fakeDirEntry struct {
	name  string
	isDir bool
}

func (e fakeDirEntry) Name() string { return e.name }
func (e fakeDirEntry) IsDir() bool  { return e.isDir }
func (e fakeDirEntry) Type() fs.FileMode {
	if e.isDir {
		return fs.ModeDir
	}
	return 0
}
func (e fakeDirEntry) Info() (fs.FileInfo, error) {
	return fakeFileInfo{name: e.name}, nil
}
