// Package ai provides response cleaning utilities for handling malformed LLM responses.
package ai

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ResponseCleaner normalizes LLM output into parseable JSON. Models wrap
// JSON in markdown fences, mix prose around it, or emit single quotes and
// trailing commas; each step below targets one of those failure modes.
type ResponseCleaner struct{}

// NewResponseCleaner creates a new response cleaner.
func NewResponseCleaner() *ResponseCleaner {
	return &ResponseCleaner{}
}

var (
	trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)
	bareKeyRe       = regexp.MustCompile(`([{,]\s*)(\w+):`)
)

// CleanJSONResponse cleans a raw model response into its JSON object.
func (rc *ResponseCleaner) CleanJSONResponse(response string) string {
	response = rc.removeMarkdownBlocks(response)
	response = rc.extractJSON(response)
	if rc.IsValidJSON(response) {
		return response
	}
	return rc.fixCommonJSONIssues(response)
}

// removeMarkdownBlocks strips ```json fences around the payload.
func (rc *ResponseCleaner) removeMarkdownBlocks(response string) string {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	return strings.TrimSpace(response)
}

// extractJSON pulls the first balanced JSON object out of mixed content.
func (rc *ResponseCleaner) extractJSON(response string) string {
	start := strings.Index(response, "{")
	if start == -1 {
		return response
	}
	braceCount := 0
	end := start
	for i := start; i < len(response); i++ {
		switch response[i] {
		case '{':
			braceCount++
		case '}':
			braceCount--
			if braceCount == 0 {
				end = i
				i = len(response)
			}
		}
	}
	if end > start {
		return response[start : end+1]
	}
	return response
}

// fixCommonJSONIssues repairs trailing commas, bare keys, and single quotes.
func (rc *ResponseCleaner) fixCommonJSONIssues(response string) string {
	response = trailingCommaRe.ReplaceAllString(response, "$1")
	response = bareKeyRe.ReplaceAllString(response, `$1"$2":`)
	response = strings.ReplaceAll(response, "'", "\"")
	return response
}

// IsValidJSON checks if a string is valid JSON.
func (rc *ResponseCleaner) IsValidJSON(response string) bool {
	var temp any
	return json.Unmarshal([]byte(response), &temp) == nil
}

// CleanAndValidateJSON cleans a response and errors if the result still
// cannot be parsed.
func (rc *ResponseCleaner) CleanAndValidateJSON(response string) (string, error) {
	cleaned := rc.CleanJSONResponse(response)
	if !rc.IsValidJSON(cleaned) {
		return "", &JSONValidationError{
			Original: response,
			Cleaned:  cleaned,
			Message:  "cleaned response is still not valid JSON",
		}
	}
	return cleaned, nil
}

// JSONValidationError represents a JSON validation error.
type JSONValidationError struct {
	Original string
	Cleaned  string
	Message  string
}

func (e *JSONValidationError) Error() string {
	return e.Message
}
