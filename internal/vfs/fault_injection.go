// Package vfs provides filesystem abstractions including fault injection for testing.
//
// FaultInjectionFS wraps a real filesystem and injects errors on the
// read path, for testing how a read-only reader handles a failing disk.
//
// Reference: RocksDB v10.7.5
//   - utilities/fault_injection_fs.h
//   - utilities/fault_injection_fs.cc
package vfs

import (
	"errors"
	"io"
	"os"
	"sync"
)

// ErrInjectedReadError is returned when a read error is injected.
var ErrInjectedReadError = errors.New("vfs: injected read error")

// FaultInjectionFS wraps an FS and injects errors on Open/OpenRandomAccess
// and on individual ReadAt calls of files it has opened, so a test can fail
// a read that happens well after a file was successfully opened (e.g. a
// later index_list bucket, rather than the footer).
type FaultInjectionFS struct {
	base FS

	mu              sync.RWMutex
	injectReadError bool
	readErrorPath   string
}

// NewFaultInjectionFS creates a new fault-injecting filesystem wrapper.
func NewFaultInjectionFS(base FS) *FaultInjectionFS {
	return &FaultInjectionFS{base: base}
}

// InjectReadError enables read error injection for path. An empty path
// injects the error for every file.
func (fs *FaultInjectionFS) InjectReadError(path string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.injectReadError = true
	fs.readErrorPath = path
}

// ClearErrors clears all error injection.
func (fs *FaultInjectionFS) ClearErrors() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.injectReadError = false
	fs.readErrorPath = ""
}

func (fs *FaultInjectionFS) shouldFail(name string) bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.injectReadError && (fs.readErrorPath == "" || fs.readErrorPath == name)
}

// Create passes through to the base filesystem; this wrapper only injects
// read-path faults.
func (fs *FaultInjectionFS) Create(name string) (WritableFile, error) {
	return fs.base.Create(name)
}

// Open opens an existing file for sequential reading, failing if a read
// error is injected for name.
func (fs *FaultInjectionFS) Open(name string) (SequentialFile, error) {
	if fs.shouldFail(name) {
		return nil, ErrInjectedReadError
	}
	return fs.base.Open(name)
}

// OpenRandomAccess opens an existing file for random access reading. If a
// read error is injected for name, either the open itself fails or, if the
// open already succeeded, every subsequent ReadAt on the returned file
// fails once injection is later enabled.
func (fs *FaultInjectionFS) OpenRandomAccess(name string) (RandomAccessFile, error) {
	if fs.shouldFail(name) {
		return nil, ErrInjectedReadError
	}
	base, err := fs.base.OpenRandomAccess(name)
	if err != nil {
		return nil, err
	}
	return &faultRandomAccessFile{base: base, fs: fs, path: name}, nil
}

func (fs *FaultInjectionFS) Rename(oldname, newname string) error { return fs.base.Rename(oldname, newname) }
func (fs *FaultInjectionFS) Remove(name string) error              { return fs.base.Remove(name) }
func (fs *FaultInjectionFS) RemoveAll(path string) error           { return fs.base.RemoveAll(path) }

func (fs *FaultInjectionFS) MkdirAll(path string, perm os.FileMode) error {
	return fs.base.MkdirAll(path, perm)
}

func (fs *FaultInjectionFS) Stat(name string) (os.FileInfo, error) { return fs.base.Stat(name) }
func (fs *FaultInjectionFS) Exists(name string) bool               { return fs.base.Exists(name) }
func (fs *FaultInjectionFS) ListDir(path string) ([]string, error) { return fs.base.ListDir(path) }
func (fs *FaultInjectionFS) Lock(name string) (io.Closer, error)   { return fs.base.Lock(name) }
func (fs *FaultInjectionFS) SyncDir(path string) error             { return fs.base.SyncDir(path) }

// faultRandomAccessFile re-checks fault injection on every ReadAt, so a
// caller can open a file successfully and then inject an error to fail a
// specific later read (e.g. an index_list bucket loaded on demand).
type faultRandomAccessFile struct {
	base RandomAccessFile
	fs   *FaultInjectionFS
	path string
}

func (f *faultRandomAccessFile) ReadAt(p []byte, off int64) (int, error) {
	if f.fs.shouldFail(f.path) {
		return 0, ErrInjectedReadError
	}
	return f.base.ReadAt(p, off)
}

func (f *faultRandomAccessFile) Close() error { return f.base.Close() }
func (f *faultRandomAccessFile) Size() int64  { return f.base.Size() }
