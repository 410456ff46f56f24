package domain

import "github.com/google/uuid"

// ScoredCandidate is one field considered for a column.
type ScoredCandidate struct {
	Field        string  `json:"field"`
	Score        float64 `json:"score"`
	HeaderScore  float64 `json:"headerScore"`
	ContentScore float64 `json:"contentScore"`
}

// ColumnSuggestion is the analyzer's proposal for one source column. Field is
// empty when no candidate reached the confidence threshold.
type ColumnSuggestion struct {
	File                 string            `json:"file"`
	Header               string            `json:"header"`
	Field                string            `json:"field,omitempty"`
	Confidence           float64           `json:"confidence"`
	RequiresValueMapping bool              `json:"requiresValueMapping"`
	Candidates           []ScoredCandidate `json:"candidates,omitempty"`
}

// ValueSample lists the distinct raw values seen for a value mapped field.
type ValueSample struct {
	Field     string      `json:"field"`
	Columns   []ColumnRef `json:"columns"`
	Values    []string    `json:"values"`
	Truncated bool        `json:"truncated"`
}

// FileSummary describes one parsed input file.
type FileSummary struct {
	File     string        `json:"file"`
	Encoding string        `json:"encoding"`
	Headers  []string      `json:"headers"`
	Rows     int           `json:"rows"`
	Rejected []RejectedRow `json:"rejected,omitempty"`
}

// FileError is a file that could not be parsed at all.
type FileError struct {
	File    string `json:"file"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type AnalysisResult struct {
	SessionID    uuid.UUID          `json:"sessionId"`
	Files        []FileSummary      `json:"files"`
	Suggestions  []ColumnSuggestion `json:"columnSuggestions"`
	ValueSamples []ValueSample      `json:"valueSamples"`
	FileErrors   []FileError        `json:"fileErrors,omitempty"`
}

// SuggestedMapping returns the suggestions as a ColumnMapping, unmapped columns included.
func (a *AnalysisResult) SuggestedMapping() ColumnMapping {
	m := make(ColumnMapping, len(a.Suggestions))
	for _, s := range a.Suggestions {
		m[ColumnRef{File: s.File, Header: s.Header}] = s.Field
	}
	return m
}

func (a *AnalysisResult) Suggestion(file, header string) (ColumnSuggestion, bool) {
	for _, s := range a.Suggestions {
		if s.File == file && s.Header == header {
			return s, true
		}
	}
	return ColumnSuggestion{}, false
}

func (a *AnalysisResult) ValueSample(field string) (ValueSample, bool) {
	for _, s := range a.ValueSamples {
		if s.Field == field {
			return s, true
		}
	}
	return ValueSample{}, false
}
