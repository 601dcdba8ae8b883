// Package archive implements the archive-extraction capability consumed
// by the index fetcher.
package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
)

// maxMemberBytes caps how large a single archive member may inflate to.
// Quarterly master indexes run tens of megabytes uncompressed.
const maxMemberBytes = 512 << 20

// Zip extracts zip archives held fully in memory.
type Zip struct{}

// NewZip returns a zip-backed extractor.
func NewZip() *Zip {
	return &Zip{}
}

// Extract unpacks every member of the archive into memory, keyed by
// member name.
func (z *Zip) Extract(data []byte) (map[string][]byte, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	files := make(map[string][]byte, len(reader.File))
	for _, f := range reader.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open member %s: %w", f.Name, err)
		}
		content, err := io.ReadAll(io.LimitReader(rc, maxMemberBytes))
		closeErr := rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read member %s: %w", f.Name, err)
		}
		if closeErr != nil {
			return nil, fmt.Errorf("close member %s: %w", f.Name, closeErr)
		}
		files[f.Name] = content
	}
	return files, nil
}
