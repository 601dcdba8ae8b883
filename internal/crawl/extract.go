package crawl

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sayouzone/edgar-harvester/internal/edgar"
)

// detailField maps one logical metadata field to a structural query.
// Each extraction is independently fallible: a miss assigns the unknown
// sentinel instead of aborting the crawl.
type detailField struct {
	name    string
	extract func(doc *goquery.Document) (string, bool)
	assign  func(md *edgar.FilingMetadata, value string)
}

var detailFields = []detailField{
	{
		name:    "filing_date",
		extract: func(doc *goquery.Document) (string, bool) { return infoValue(doc, "Filing Date") },
		assign:  func(md *edgar.FilingMetadata, v string) { md.FilingDate = v },
	},
	{
		name:    "period_of_report",
		extract: func(doc *goquery.Document) (string, bool) { return infoValue(doc, "Period of Report") },
		assign:  func(md *edgar.FilingMetadata, v string) { md.PeriodOfReport = v },
	},
}

// Extract derives FilingMetadata from detail page bytes. It also
// returns the page's own form type for cross-checking; the caller
// decides what to do on disagreement. Exported so extraction stays
// independently testable without a fetcher.
func Extract(item edgar.WorkItem, page []byte) (edgar.FilingMetadata, string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return edgar.FilingMetadata{}, "", &edgar.CrawlError{
			Key: item.Key,
			Err: &edgar.FormatError{Subject: "detail page", Err: err},
		}
	}
	if !recognizable(doc) {
		return edgar.FilingMetadata{}, "", &edgar.CrawlError{
			Key: item.Key,
			Err: &edgar.FormatError{Subject: "detail page", Err: fmt.Errorf("no filing structure found")},
		}
	}

	md := edgar.FilingMetadata{
		Key:      item.Key,
		Company:  item.Record.Company,
		FormType: item.Record.FormType,
	}

	for _, field := range detailFields {
		value, ok := field.extract(doc)
		if !ok {
			value = edgar.UnknownField
			md.Warnings = append(md.Warnings, field.name)
		}
		field.assign(&md, value)
	}

	md.Documents = extractDocuments(doc)
	if len(md.Documents) == 0 {
		md.Warnings = append(md.Warnings, "documents")
	}

	return md, pageForm(doc), nil
}

// recognizable reports whether the document looks like a filing detail
// page at all: either labeled info blocks or a document table.
func recognizable(doc *goquery.Document) bool {
	return doc.Find("div.formGrouping div.infoHead").Length() > 0 ||
		doc.Find("table.tableFile").Length() > 0
}

// infoValue finds the labeled info block and returns the value of the
// sibling that follows its header.
func infoValue(doc *goquery.Document, label string) (string, bool) {
	value := ""
	doc.Find("div.infoHead").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.EqualFold(strings.TrimSpace(s.Text()), label) {
			return true
		}
		value = strings.TrimSpace(s.NextFiltered("div.info").First().Text())
		return false
	})
	return value, value != ""
}

// pageForm reads the form type the detail page claims for itself, e.g.
// "10-K" out of "Form 10-K - Annual report ...". Empty when absent.
func pageForm(doc *goquery.Document) string {
	text := strings.TrimSpace(doc.Find("#formName").First().Text())
	if text == "" {
		return ""
	}
	text = strings.TrimSpace(strings.TrimPrefix(text, "Form"))
	if cut := strings.Index(text, " - "); cut >= 0 {
		text = text[:cut]
	}
	return strings.TrimSpace(text)
}

// extractDocuments walks the document format table in page order.
// Individually broken rows are dropped; the rest of the manifest
// survives.
func extractDocuments(doc *goquery.Document) []edgar.DocumentRef {
	table := doc.Find(`table.tableFile[summary="Document Format Files"]`).First()
	if table.Length() == 0 {
		table = doc.Find("table.tableFile").First()
	}

	var refs []edgar.DocumentRef
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 3 {
			return
		}
		link := cells.Eq(2).Find("a").First()
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		path := documentPath(href)
		if path == "" {
			return
		}
		name := strings.TrimSpace(link.Text())
		if name == "" {
			name = path[strings.LastIndex(path, "/")+1:]
		}
		ref := edgar.DocumentRef{Name: name, Path: path}
		if cells.Length() > 3 {
			ref.Type = strings.TrimSpace(cells.Eq(3).Text())
		}
		if cells.Length() > 4 {
			if size, err := strconv.ParseInt(strings.TrimSpace(cells.Eq(4).Text()), 10, 64); err == nil {
				ref.Size = size
			}
		}
		refs = append(refs, ref)
	})
	return refs
}

// documentPath normalizes a document href to an archive-relative path.
// Inline XBRL links wrap the real path in "/ix?doc=".
func documentPath(href string) string {
	href = strings.TrimSpace(href)
	if idx := strings.Index(href, "?doc="); idx >= 0 {
		href = href[idx+len("?doc="):]
	}
	href = strings.TrimPrefix(href, "/Archives/")
	href = strings.TrimPrefix(href, "/")
	if href == "" || strings.Contains(href, "://") {
		return ""
	}
	return href
}
