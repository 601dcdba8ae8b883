package csvsink

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sayouzone/edgar-harvester/internal/edgar"
)

func sampleMetadata() edgar.FilingMetadata {
	return edgar.FilingMetadata{
		Key:            edgar.FilingKey{CIK: 320193, Accession: "0000320193-25-000008"},
		Company:        "Apple Inc.",
		FormType:       "10-K",
		FilingDate:     "2025-01-31",
		PeriodOfReport: "2024-12-28",
		Documents: []edgar.DocumentRef{
			{Name: "aapl.htm", Path: "edgar/data/320193/aapl.htm"},
			{Name: "ex211.htm", Path: "edgar/data/320193/ex211.htm"},
		},
	}
}

func readAll(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestAppendWritesHeaderAndRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "filings.csv")
	s, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, s.Append(context.Background(), sampleMetadata()))
	require.NoError(t, s.Close())

	rows := readAll(t, path)
	require.Len(t, rows, 2)
	require.Equal(t, header, rows[0])
	require.Equal(t, "320193", rows[1][0])
	require.Equal(t, "0000320193-25-000008", rows[1][1])
	require.Equal(t, "Apple Inc.", rows[1][2])
	require.Equal(t, "aapl.htm=edgar/data/320193/aapl.htm;ex211.htm=edgar/data/320193/ex211.htm", rows[1][6])
}

func TestReopenAppendsWithoutSecondHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filings.csv")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(context.Background(), sampleMetadata()))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	md := sampleMetadata()
	md.Key.Accession = "0000320193-25-000100"
	require.NoError(t, s.Append(context.Background(), md))
	require.NoError(t, s.Close())

	rows := readAll(t, path)
	require.Len(t, rows, 3)
	require.Equal(t, header, rows[0])
	require.NotEqual(t, header, rows[1])
}

func TestAppendRecordsWarnings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filings.csv")
	s, err := Open(path)
	require.NoError(t, err)

	md := sampleMetadata()
	md.PeriodOfReport = edgar.UnknownField
	md.Warnings = []string{"period_of_report", "documents"}
	md.Documents = nil
	require.NoError(t, s.Append(context.Background(), md))
	require.NoError(t, s.Close())

	rows := readAll(t, path)
	require.Equal(t, edgar.UnknownField, rows[1][5])
	require.Equal(t, "", rows[1][6])
	require.Equal(t, "period_of_report;documents", rows[1][7])
}

func TestAppendHonorsCanceledContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filings.csv")
	s, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, s.Append(ctx, sampleMetadata()), context.Canceled)
}
