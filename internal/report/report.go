// Package report orders analysis results and renders them as a markdown or
// HTML table.
package report

import (
	"bytes"
	"fmt"
	stdhtml "html"
	"sort"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/xxxsen/docrank/internal/model"
)

type SortKey string

const (
	SortByRanking  SortKey = "ranking"
	SortByFileName SortKey = "fileName"
)

type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

const (
	StatusCompleted = "completed"
	StatusError     = "error"
)

var markdownEscaper = strings.NewReplacer(
	"\\", "\\\\",
	"|", "\\|",
	"*", "\\*",
	"_", "\\_",
	"`", "\\`",
	"[", "\\[",
	"]", "\\]",
	"<", "\\<",
	">", "\\>",
	"\r\n", " ",
	"\n", " ",
	"\r", " ",
)

// ParseSort accepts empty values and falls back to ranking, highest first.
func ParseSort(key, order string) (SortKey, Order, error) {
	k := SortByRanking
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "", "ranking":
	case "filename", "file_name", "name":
		k = SortByFileName
	default:
		return "", "", fmt.Errorf("unsupported sort key: %s", key)
	}
	o := OrderDesc
	switch strings.ToLower(strings.TrimSpace(order)) {
	case "", "desc":
	case "asc":
		o = OrderAsc
	default:
		return "", "", fmt.Errorf("unsupported sort order: %s", order)
	}
	return k, o, nil
}

// Sort returns a sorted copy of results. Equal keys keep their input order.
func Sort(results []model.DocumentResult, key SortKey, order Order) []model.DocumentResult {
	out := make([]model.DocumentResult, len(results))
	copy(out, results)
	less := func(a, b model.DocumentResult) bool {
		if key == SortByFileName {
			return compareNames(a.FileName, b.FileName) < 0
		}
		return a.Ranking < b.Ranking
	}
	sort.SliceStable(out, func(i, j int) bool {
		if order == OrderDesc {
			return less(out[j], out[i])
		}
		return less(out[i], out[j])
	})
	return out
}

func compareNames(a, b string) int {
	if c := strings.Compare(strings.ToLower(a), strings.ToLower(b)); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

func Status(res model.DocumentResult) string {
	if res.Failed() {
		return StatusError
	}
	return StatusCompleted
}

type Stats struct {
	Total          int     `json:"total"`
	Failed         int     `json:"failed"`
	AverageRanking float64 `json:"average_ranking"`
}

// Summarize averages the rankings of documents that did not fail.
func Summarize(results []model.DocumentResult) Stats {
	st := Stats{Total: len(results)}
	sum := 0
	for _, res := range results {
		if res.Failed() {
			st.Failed++
			continue
		}
		sum += res.Ranking
	}
	if ok := st.Total - st.Failed; ok > 0 {
		st.AverageRanking = float64(sum) / float64(ok)
	}
	return st
}

func Markdown(results []model.DocumentResult) string {
	var b strings.Builder
	b.WriteString("| File | Ranking | Summary | Status |\n")
	b.WriteString("| --- | --- | --- | --- |\n")
	for _, res := range results {
		ranking := strconv.Itoa(res.Ranking) + "/10"
		if res.Failed() {
			ranking = "-"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
			markdownEscaper.Replace(res.FileName),
			ranking,
			markdownEscaper.Replace(res.Summary),
			Status(res),
		)
	}
	return b.String()
}

type Renderer struct {
	md goldmark.Markdown
}

func NewRenderer() *Renderer {
	return &Renderer{md: goldmark.New(goldmark.WithExtensions(extension.Table))}
}

// Table renders the markdown table as an HTML fragment.
func (r *Renderer) Table(results []model.DocumentResult) (string, error) {
	var out bytes.Buffer
	if err := r.md.Convert([]byte(Markdown(results)), &out); err != nil {
		return "", err
	}
	return out.String(), nil
}

// Page wraps the table in a standalone HTML document.
func (r *Renderer) Page(title string, results []model.DocumentResult) (string, error) {
	table, err := r.Table(results)
	if err != nil {
		return "", err
	}
	st := Summarize(results)
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", stdhtml.EscapeString(title))
	b.WriteString("</head>\n<body>\n")
	fmt.Fprintf(&b, "<h1>%s</h1>\n", stdhtml.EscapeString(title))
	fmt.Fprintf(&b, "<p>%d documents, %d failed, average ranking %.1f</p>\n", st.Total, st.Failed, st.AverageRanking)
	b.WriteString(table)
	b.WriteString("</body>\n</html>\n")
	return b.String(), nil
}
