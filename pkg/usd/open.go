package usd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// crateMagic opens every binary (usdc) layer.
const crateMagic = "PXR-USDC"

// Open reads a stage from disk. The format is picked from the extension:
// .usda is text, .usdz is a package whose root layer is read, and .usd is
// sniffed for the text header.
func Open(name string) (*Stage, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".usdz":
		pkg, err := OpenPackage(name)
		if err != nil {
			return nil, err
		}
		defer pkg.Close()
		return pkg.Stage()

	case ".usda", ".usd":
		data, err := os.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("reading layer: %w", err)
		}
		return parseLayerData(name, data)

	case ".usdc":
		return nil, fmt.Errorf("%w: binary layer %s", ErrUnsupportedFormat, name)

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
}

func parseLayerData(name string, data []byte) (*Stage, error) {
	if bytes.HasPrefix(data, []byte(crateMagic)) {
		return nil, fmt.Errorf("%w: binary layer %s", ErrUnsupportedFormat, name)
	}
	stage, err := ParseUSDA(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}
	return stage, nil
}
