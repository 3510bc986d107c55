package model

import "strings"

// FormQuality is the normalized classification outcome
type FormQuality string

const (
	QualityGood    FormQuality = "good"
	QualityBad     FormQuality = "bad"
	QualityUnclear FormQuality = "unclear"
	QualityError   FormQuality = "error"
)

// AnalysisResult is what the result page renders: a short human-readable
// label and its quality bucket
type AnalysisResult struct {
	Analysis    string      `json:"analysis"`
	FormQuality FormQuality `json:"form_quality"`
}

// ErrorResult wraps a failure message as a renderable result
func ErrorResult(msg string) AnalysisResult {
	return AnalysisResult{Analysis: msg, FormQuality: QualityError}
}

// Normalize maps a raw model reply to a canonical analysis string and
// quality. "banana" anywhere forces "banana back", otherwise "good" forces
// "good form"; anything else keeps only the first line of the reply and is
// reported as unclear.
func Normalize(raw string) AnalysisResult {
	text := strings.ToLower(strings.TrimSpace(raw))

	switch {
	case strings.Contains(text, "banana"):
		text = "banana back"
	case strings.Contains(text, "good"):
		text = "good form"
	default:
		if lines := strings.SplitN(text, "\n", 2); len(lines) > 0 {
			text = strings.TrimSpace(lines[0])
		}
	}

	var quality FormQuality
	switch text {
	case "good form":
		quality = QualityGood
	case "banana back":
		quality = QualityBad
	default:
		quality = QualityUnclear
	}

	return AnalysisResult{Analysis: text, FormQuality: quality}
}
