package model

import "strings"

// Document is one uploaded file as seen by the analysis pipeline.
type Document struct {
	Name        string
	ContentType string
	Content     string
}

type DocumentResult struct {
	FileName string `json:"fileName"`
	Ranking  int    `json:"ranking"`
	Summary  string `json:"summary"`
}

// Failed reports whether the result is the error sentinel produced for a
// document that could not be analyzed.
func (r DocumentResult) Failed() bool {
	return r.Ranking == 0 && strings.HasPrefix(r.Summary, "Error")
}
