// Package csvsink appends filing metadata to an append-only CSV ledger.
package csvsink

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/sayouzone/edgar-harvester/internal/edgar"
)

var header = []string{
	"cik", "accession", "company", "form_type",
	"filing_date", "period_of_report", "documents", "warnings",
}

// Sink writes one CSV row per filing. Appends are serialized and
// flushed to the OS per record, so a record is either fully present in
// the file or absent; partial rows never appear after a crash because
// the row is buffered and written in one flush.
type Sink struct {
	mu   sync.Mutex
	file *os.File
	w    *csv.Writer
}

// Open creates or appends to the ledger at path, writing the header
// only for a fresh file.
func Open(path string) (*Sink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create sink dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open sink file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat sink file: %w", err)
	}
	s := &Sink{file: f, w: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := s.writeRow(header); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return s, nil
}

// Append durably writes one metadata record.
func (s *Sink) Append(ctx context.Context, md edgar.FilingMetadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	docs := make([]string, 0, len(md.Documents))
	for _, d := range md.Documents {
		docs = append(docs, d.Name+"="+d.Path)
	}
	row := []string{
		strconv.FormatInt(md.Key.CIK, 10),
		md.Key.Accession,
		md.Company,
		md.FormType,
		md.FilingDate,
		md.PeriodOfReport,
		strings.Join(docs, ";"),
		strings.Join(md.Warnings, ";"),
	}
	return s.writeRow(row)
}

func (s *Sink) writeRow(row []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.Write(row); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("flush record: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync sink file: %w", err)
	}
	return nil
}

// Close flushes and releases the file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		_ = s.file.Close()
		return fmt.Errorf("flush sink: %w", err)
	}
	return s.file.Close()
}
