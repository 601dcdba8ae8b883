package index

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sayouzone/edgar-harvester/internal/edgar"
)

const sampleIndex = `Description:           Master Index of EDGAR Dissemination Feed
Last Data Received:    March 31, 2025
Comments:              webmaster@sec.gov
Anonymous FTP:         ftp://ftp.sec.gov/edgar/

CIK|Company Name|Form Type|Date Filed|Filename
--------------------------------------------------------------------------------
320193|Apple Inc.|10-K|2025-01-31|edgar/data/320193/0000320193-25-000008.txt
1045810|NVIDIA CORP|10-Q|2025-02-26|edgar/data/1045810/0001045810-25-000023.txt
`

func collect(t *testing.T, s *Scanner) []edgar.IndexRecord {
	t.Helper()
	var recs []edgar.IndexRecord
	for s.Scan() {
		recs = append(recs, s.Record())
	}
	require.NoError(t, s.Err())
	return recs
}

func TestScannerParsesRows(t *testing.T) {
	s := NewScanner(strings.NewReader(sampleIndex))
	recs := collect(t, s)

	require.Len(t, recs, 2)
	require.Equal(t, int64(320193), recs[0].CIK)
	require.Equal(t, "Apple Inc.", recs[0].Company)
	require.Equal(t, "10-K", recs[0].FormType)
	require.Equal(t, time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC), recs[0].Filed)
	require.Equal(t, "edgar/data/320193/0000320193-25-000008.txt", recs[0].Path)
	require.Equal(t, int64(1045810), recs[1].CIK)
	require.Zero(t, s.Skipped())
}

func TestScannerSkipsMalformedRows(t *testing.T) {
	payload := strings.Join([]string{
		"CIK|Company Name|Form Type|Date Filed|Filename",
		"----------------------------------------",
		"320193|Apple Inc.|10-K|2025-01-31|edgar/data/320193/0000320193-25-000008.txt",
		"not-a-number|Bad Row|10-K|2025-01-31|edgar/data/1/x.txt",
		"320193|Too Few Columns|10-K",
		"320193|Bad Date|10-K|01/31/2025|edgar/data/320193/y.txt",
		"320193|Empty Path|10-K|2025-01-31|",
		"1045810|NVIDIA CORP|10-Q|2025-02-26|edgar/data/1045810/0001045810-25-000023.txt",
	}, "\n")

	s := NewScanner(strings.NewReader(payload))
	recs := collect(t, s)

	require.Len(t, recs, 2)
	require.Equal(t, 4, s.Skipped())
}

func TestScannerTolerantOfCRLFAndBlankLines(t *testing.T) {
	payload := "CIK|Company Name|Form Type|Date Filed|Filename\r\n" +
		"------------------\r\n" +
		"\r\n" +
		"320193|Apple Inc.|10-K|2025-01-31|edgar/data/320193/0000320193-25-000008.txt\r\n"

	s := NewScanner(strings.NewReader(payload))
	recs := collect(t, s)

	require.Len(t, recs, 1)
	require.Equal(t, "Apple Inc.", recs[0].Company)
}

func TestScannerRejectsUnknownHeader(t *testing.T) {
	payload := strings.Join([]string{
		"CIK|Company Name|Form Type|Date Filed|Filename|Extra",
		"----------------------------------------",
		"320193|Apple Inc.|10-K|2025-01-31|edgar/data/320193/0000320193-25-000008.txt",
	}, "\n")

	s := NewScanner(strings.NewReader(payload))
	require.False(t, s.Scan())

	var formatErr *edgar.FormatError
	require.ErrorAs(t, s.Err(), &formatErr)
}

func TestScannerRejectsMissingDashedRule(t *testing.T) {
	var b strings.Builder
	for i := 0; i < maxHeaderLines+1; i++ {
		b.WriteString("preamble without a rule\n")
	}

	s := NewScanner(strings.NewReader(b.String()))
	require.False(t, s.Scan())

	var formatErr *edgar.FormatError
	require.ErrorAs(t, s.Err(), &formatErr)
}
