// Package shader loads precompiled program binaries by name.
package shader

import (
	"errors"
	"fmt"
	"strings"

	"github.com/StarsX/SparseVolumeDXR/asset"
)

// Default extension of compiled program binaries.
const DefaultExt = ".cso"

var errNotFound = errors.New("program not found")

// The Loader interface is implemented by program binary sources.
type Loader interface {
	LoadProgram(name string) ([]byte, error)
}

// LoadError is returned when a program binary cannot be loaded.
type LoadError struct {
	Name string
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("shader: could not load program %q from %s: %v", e.Name, e.Path, e.Err)
	}
	return fmt.Sprintf("shader: could not load program %q: %v", e.Name, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Loads "<dir>/<name><ext>" from a local directory or an http(s) base URL.
type DirLoader struct {
	Dir string
	Ext string
}

func NewDirLoader(dir string) *DirLoader {
	return &DirLoader{Dir: dir, Ext: DefaultExt}
}

func (l *DirLoader) LoadProgram(name string) ([]byte, error) {
	path := strings.TrimRight(l.Dir, `/\`) + "/" + name + l.Ext
	res, err := asset.NewResource(path, nil)
	if err != nil {
		return nil, &LoadError{Name: name, Path: path, Err: err}
	}

	data, err := res.ReadAll()
	if err != nil {
		return nil, &LoadError{Name: name, Path: path, Err: err}
	}
	if len(data) == 0 {
		return nil, &LoadError{Name: name, Path: path, Err: errors.New("empty program binary")}
	}
	return data, nil
}

// An in-memory program set.
type Map map[string][]byte

func (m Map) LoadProgram(name string) ([]byte, error) {
	blob, exists := m[name]
	if !exists {
		return nil, &LoadError{Name: name, Err: errNotFound}
	}
	return blob, nil
}

// Tries each loader in order and returns the first program found.
type Chain []Loader

func (c Chain) LoadProgram(name string) ([]byte, error) {
	var errs []error
	for _, l := range c {
		blob, err := l.LoadProgram(name)
		if err == nil {
			return blob, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		errs = append(errs, errNotFound)
	}
	return nil, &LoadError{Name: name, Err: errors.Join(errs...)}
}
