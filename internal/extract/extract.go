// Package extract turns the free-text reply of an assistant into a ranking
// and a summary.
package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	MinRanking = 0
	MaxRanking = 10

	DefaultSummary      = "No summary provided"
	ParseFailureSummary = "Failed to parse assistant response"
)

var (
	fencedJSONRe   = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")
	bareJSONRe     = regexp.MustCompile(`(?s)\{.*"ranking".*"summary".*\}`)
	rankingFieldRe = regexp.MustCompile(`(?i)ranking:?\s*(\d+)`)
	rankingScaleRe = regexp.MustCompile(`(\d+)\s*/\s*10`)
	summaryFieldRe = regexp.MustCompile(`(?is)summary:?\s*(.+?)(?:\n\n|$)`)

	errNullObject = errors.New("assistant json is null")
)

type Result struct {
	Ranking int    `json:"ranking"`
	Summary string `json:"summary"`
}

// locator finds a JSON-looking region in the reply.
type locator func(text string) (string, bool)

// jsonLocators are tried in order. Once one of them finds a region the
// outcome is decided by parsing that region alone.
var jsonLocators = []locator{
	locateFencedJSON,
	locateBareJSON,
}

// Extract never fails: unparsable JSON yields ParseFailureSummary and a reply
// without any recognizable field yields the trimmed text as summary.
func Extract(raw string) Result {
	res, err := extract(raw)
	if err != nil {
		return Result{Ranking: 0, Summary: ParseFailureSummary}
	}
	return normalize(res)
}

func extract(raw string) (Result, error) {
	for _, locate := range jsonLocators {
		if region, ok := locate(raw); ok {
			return parseJSON(region)
		}
	}
	return extractFields(raw), nil
}

func locateFencedJSON(text string) (string, bool) {
	m := fencedJSONRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func locateBareJSON(text string) (string, bool) {
	m := bareJSONRe.FindString(text)
	if m == "" {
		return "", false
	}
	return m, true
}

func parseJSON(region string) (Result, error) {
	var parsed interface{}
	if err := json.Unmarshal([]byte(region), &parsed); err != nil {
		return Result{}, fmt.Errorf("parse assistant json: %w", err)
	}
	if parsed == nil {
		return Result{}, errNullObject
	}
	obj, _ := parsed.(map[string]interface{})
	return Result{
		Ranking: toRanking(obj["ranking"]),
		Summary: toSummary(obj["summary"]),
	}, nil
}

func extractFields(text string) Result {
	var res Result
	m := rankingFieldRe.FindStringSubmatch(text)
	if m == nil {
		m = rankingScaleRe.FindStringSubmatch(text)
	}
	if m != nil {
		if v, ok := atoiClamped(m[1]); ok {
			res.Ranking = v
		}
	}
	if sm := summaryFieldRe.FindStringSubmatch(text); sm != nil {
		res.Summary = strings.TrimSpace(sm[1])
	} else {
		res.Summary = strings.TrimSpace(text)
	}
	return res
}

func toRanking(v interface{}) int {
	switch val := v.(type) {
	case float64:
		return floatToRanking(val)
	case string:
		s := strings.TrimSpace(val)
		if n, ok := atoiClamped(s); ok {
			return n
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return floatToRanking(f)
		}
	}
	return 0
}

// atoiClamped parses a base-10 integer. Values too large for an int come back
// at the edge of the ranking scale instead of failing.
func atoiClamped(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err == nil {
		return n, true
	}
	if errors.Is(err, strconv.ErrRange) {
		if strings.HasPrefix(s, "-") {
			return MinRanking, true
		}
		return MaxRanking, true
	}
	return 0, false
}

func floatToRanking(f float64) int {
	switch {
	case math.IsNaN(f):
		return 0
	case f > MaxRanking:
		return MaxRanking
	case f < MinRanking:
		return MinRanking
	}
	return int(f)
}

func toSummary(v interface{}) string {
	s, _ := v.(string)
	return s
}

func normalize(res Result) Result {
	if res.Ranking < MinRanking {
		res.Ranking = MinRanking
	}
	if res.Ranking > MaxRanking {
		res.Ranking = MaxRanking
	}
	if res.Summary == "" {
		res.Summary = DefaultSummary
	}
	return res
}
