package formatting

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrParseFailed is returned when no JSON value can be recovered from text.
var ErrParseFailed = errors.New("no JSON found")

var fence = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// Parse decodes a JSON value of type T from text that may wrap it: the
// whole text, the first fenced code block, or the outermost braces are
// tried in that order.
func Parse[T any](text string) (T, error) {
	var out T
	text = strings.TrimSpace(text)

	for _, candidate := range candidates(text) {
		if !gjson.Valid(candidate) {
			continue
		}
		if err := json.Unmarshal([]byte(candidate), &out); err == nil {
			return out, nil
		}
	}
	return out, fmt.Errorf("%w: %.80q", ErrParseFailed, text)
}

func candidates(text string) []string {
	out := []string{text}
	if m := fence.FindStringSubmatch(text); m != nil {
		out = append(out, m[1])
	}
	start, end := strings.IndexByte(text, '{'), strings.LastIndexByte(text, '}')
	if start >= 0 && end > start {
		out = append(out, text[start:end+1])
	}
	return out
}
