// Package index retrieves and decodes the quarterly master index.
package index

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/sayouzone/edgar-harvester/internal/edgar"
	"github.com/sayouzone/edgar-harvester/internal/metrics"
)

// columnHeader is the versioned column line the index header must end
// with, immediately before the dashed rule.
const columnHeader = "CIK|Company Name|Form Type|Date Filed|Filename"

// maxHeaderLines bounds how far into the payload the dashed rule may sit.
const maxHeaderLines = 32

const dateLayout = "2006-01-02"

// Scanner decodes a master index payload row by row. Malformed rows are
// skipped and counted; they never abort the scan.
type Scanner struct {
	lines      *bufio.Scanner
	headerDone bool
	record     edgar.IndexRecord
	skipped    int
	err        error
}

// NewScanner wraps a master index payload.
func NewScanner(r io.Reader) *Scanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Scanner{lines: s}
}

// Scan advances to the next structurally valid row. It returns false at
// end of input or on a header or read error; check Err afterwards.
func (s *Scanner) Scan() bool {
	if s.err != nil {
		return false
	}
	if !s.headerDone {
		if err := s.consumeHeader(); err != nil {
			s.err = err
			return false
		}
		s.headerDone = true
	}
	for s.lines.Scan() {
		line := strings.TrimRight(s.lines.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		rec, err := parseRow(line)
		if err != nil {
			s.skipped++
			metrics.ObserveIndexRow("malformed")
			continue
		}
		metrics.ObserveIndexRow("parsed")
		s.record = rec
		return true
	}
	if err := s.lines.Err(); err != nil {
		s.err = fmt.Errorf("read index: %w", err)
	}
	return false
}

// Record returns the row produced by the last successful Scan.
func (s *Scanner) Record() edgar.IndexRecord { return s.record }

// Skipped reports how many malformed rows were dropped so far.
func (s *Scanner) Skipped() int { return s.skipped }

// Err returns the first fatal error encountered, if any.
func (s *Scanner) Err() error { return s.err }

// consumeHeader reads up to the dashed rule and verifies the column
// line matches the format version this parser understands.
func (s *Scanner) consumeHeader() error {
	lastContent := ""
	for i := 0; i < maxHeaderLines; i++ {
		if !s.lines.Scan() {
			if err := s.lines.Err(); err != nil {
				return fmt.Errorf("read index header: %w", err)
			}
			return &edgar.FormatError{Subject: "index header", Err: fmt.Errorf("no dashed rule within %d lines", maxHeaderLines)}
		}
		line := strings.TrimSpace(strings.TrimRight(s.lines.Text(), "\r"))
		if strings.HasPrefix(line, "---") {
			if lastContent != columnHeader {
				return &edgar.FormatError{Subject: "index header", Err: fmt.Errorf("unexpected column line %q", lastContent)}
			}
			return nil
		}
		if line != "" {
			lastContent = line
		}
	}
	return &edgar.FormatError{Subject: "index header", Err: fmt.Errorf("no dashed rule within %d lines", maxHeaderLines)}
}

func parseRow(line string) (edgar.IndexRecord, error) {
	fields := strings.Split(line, "|")
	if len(fields) != 5 {
		return edgar.IndexRecord{}, fmt.Errorf("want 5 columns, got %d", len(fields))
	}
	cik, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64)
	if err != nil {
		return edgar.IndexRecord{}, fmt.Errorf("parse cik: %w", err)
	}
	filed, err := time.Parse(dateLayout, strings.TrimSpace(fields[3]))
	if err != nil {
		return edgar.IndexRecord{}, fmt.Errorf("parse date: %w", err)
	}
	path := strings.TrimSpace(fields[4])
	if path == "" {
		return edgar.IndexRecord{}, fmt.Errorf("empty filename column")
	}
	return edgar.IndexRecord{
		CIK:      cik,
		Company:  strings.TrimSpace(fields[1]),
		FormType: strings.TrimSpace(fields[2]),
		Filed:    filed,
		Path:     path,
	}, nil
}
