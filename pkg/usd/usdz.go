package usd

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"
)

// Package is an opened .usdz archive.
type Package struct {
	zr      *zip.Reader
	closer  io.Closer
	entries map[string]*zip.File
	order   []string
}

// OpenPackage opens a .usdz archive from disk.
func OpenPackage(name string) (*Package, error) {
	rc, err := zip.OpenReader(name)
	if err != nil {
		return nil, fmt.Errorf("opening package: %w", err)
	}
	pkg := newPackage(&rc.Reader)
	pkg.closer = rc
	return pkg, nil
}

// ReadPackage reads a .usdz archive held in memory.
func ReadPackage(data []byte) (*Package, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("reading package: %w", err)
	}
	return newPackage(zr), nil
}

func newPackage(zr *zip.Reader) *Package {
	pkg := &Package{
		zr:      zr,
		entries: make(map[string]*zip.File, len(zr.File)),
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := normalizeEntry(f.Name)
		pkg.entries[name] = f
		pkg.order = append(pkg.order, name)
	}
	return pkg
}

// Close releases the underlying file, if any.
func (p *Package) Close() error {
	if p.closer != nil {
		return p.closer.Close()
	}
	return nil
}

// List returns the entry names in archive order.
func (p *Package) List() []string {
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// Contains reports whether the package holds the named entry.
func (p *Package) Contains(name string) bool {
	_, ok := p.entries[normalizeEntry(name)]
	return ok
}

// Read returns the contents of the named entry.
func (p *Package) Read(name string) ([]byte, error) {
	f, ok := p.entries[normalizeEntry(name)]
	if !ok {
		return nil, fmt.Errorf("entry not found: %s", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("opening entry %s: %w", name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading entry %s: %w", name, err)
	}
	return data, nil
}

// RootLayer returns the name of the package's root layer: the first entry
// with a layer extension.
func (p *Package) RootLayer() (string, error) {
	for _, name := range p.order {
		switch path.Ext(name) {
		case ".usda", ".usd", ".usdc":
			return name, nil
		}
	}
	return "", ErrNoRootLayer
}

// Stage parses the root layer into a stage.
func (p *Package) Stage() (*Stage, error) {
	root, err := p.RootLayer()
	if err != nil {
		return nil, err
	}
	if path.Ext(root) == ".usdc" {
		return nil, fmt.Errorf("%w: binary root layer %s", ErrUnsupportedFormat, root)
	}
	data, err := p.Read(root)
	if err != nil {
		return nil, err
	}
	return parseLayerData(root, data)
}

func normalizeEntry(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	return strings.TrimPrefix(path.Clean("/"+name), "/")
}
