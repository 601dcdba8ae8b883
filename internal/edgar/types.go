// Package edgar defines core types shared across subsystems.
package edgar

import (
	"fmt"
	"strings"
	"time"
)

// UnknownField is the sentinel recorded when a detail-page field
// cannot be extracted.
const UnknownField = "unknown"

// Period identifies one quarterly partition of the full index.
type Period struct {
	Year    int
	Quarter int
}

// String renders the period the way EDGAR paths spell it, e.g. "2025/QTR1".
func (p Period) String() string {
	return fmt.Sprintf("%d/QTR%d", p.Year, p.Quarter)
}

// Valid reports whether the period names a real quarter.
func (p Period) Valid() bool {
	return p.Year >= 1993 && p.Quarter >= 1 && p.Quarter <= 4
}

// IndexRecord is one row of a quarterly master index. Immutable once parsed.
type IndexRecord struct {
	CIK      int64
	Company  string
	FormType string
	Filed    time.Time
	// Path is the filing's location relative to the archive root,
	// e.g. "edgar/data/320193/0000320193-25-000008.txt".
	Path string
}

// Key derives the filing identity from the record's path.
func (r IndexRecord) Key() (FilingKey, error) {
	accession, err := AccessionFromPath(r.Path)
	if err != nil {
		return FilingKey{}, err
	}
	return FilingKey{CIK: r.CIK, Accession: accession}, nil
}

// FilingKey uniquely identifies one filing submission across runs and quarters.
type FilingKey struct {
	CIK       int64
	Accession string
}

func (k FilingKey) String() string {
	return fmt.Sprintf("%d/%s", k.CIK, k.Accession)
}

// AccessionFromPath extracts the accession number from an index path.
// The last path element is "<accession>.txt".
func AccessionFromPath(path string) (string, error) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(path), "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 || idx == len(trimmed)-1 {
		return "", fmt.Errorf("index path %q has no file element", path)
	}
	name := trimmed[idx+1:]
	accession := strings.TrimSuffix(name, ".txt")
	if accession == name || accession == "" {
		return "", fmt.Errorf("index path %q does not name an accession", path)
	}
	return accession, nil
}

// DocumentRef is one entry of a filing's document manifest.
type DocumentRef struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type,omitempty"`
	Size int64  `json:"size,omitempty"`
}

// FilingMetadata is the enriched record produced by crawling a filing's
// detail page. Write-once; appended to the metadata sink.
type FilingMetadata struct {
	Key            FilingKey     `json:"key"`
	Company        string        `json:"company"`
	FormType       string        `json:"form_type"`
	FilingDate     string        `json:"filing_date"`
	PeriodOfReport string        `json:"period_of_report"`
	Documents      []DocumentRef `json:"documents"`
	// Warnings names the fields that fell back to the unknown sentinel.
	Warnings []string `json:"warnings,omitempty"`
}

// WorkItem pairs a filing key with the index row that introduced it.
type WorkItem struct {
	Key    FilingKey
	Record IndexRecord
}

// Selector constrains a run to the filings the caller cares about.
// Immutable for the duration of a run.
type Selector struct {
	// FormTypes accepted, e.g. {"10-K", "10-Q"}. Empty means all forms.
	FormTypes []string
	// CIKs accepted. Empty means all issuers.
	CIKs []int64
	// Periods to harvest, in order.
	Periods []Period
}

// MatchForm reports whether the selector accepts the given form type.
func (s Selector) MatchForm(form string) bool {
	if len(s.FormTypes) == 0 {
		return true
	}
	for _, f := range s.FormTypes {
		if strings.EqualFold(strings.TrimSpace(f), strings.TrimSpace(form)) {
			return true
		}
	}
	return false
}

// MatchCIK reports whether the selector accepts the given issuer.
func (s Selector) MatchCIK(cik int64) bool {
	if len(s.CIKs) == 0 {
		return true
	}
	for _, c := range s.CIKs {
		if c == cik {
			return true
		}
	}
	return false
}

// FailureRecord is one entry of the run's failure ledger.
type FailureRecord struct {
	RunID    string
	Key      FilingKey
	Stage    string
	Attempts int
	Reason   string
	FailedAt time.Time
}

// Failure stages recorded in the ledger.
const (
	StageCrawl    = "crawl"
	StageDocument = "document"
)

// RunSummary reports the outcome of one harvest run.
type RunSummary struct {
	RunID            string
	Processed        int
	Failed           int
	SkippedProcessed int
	DupSkipped       int
	MalformedRows    int
	DocumentsStored  int
	DocumentsFailed  int
	Failures         []FailureRecord
}
