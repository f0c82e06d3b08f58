package refine

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/domain"
)

// Record is a loosely typed refinement candidate as returned by a model.
type Record map[string]any

var (
	stringFieldExprs = map[string]*regexp.Regexp{
		"title":            regexp.MustCompile(`"title"\s*:\s*"([^"]+)"`),
		"summary":          regexp.MustCompile(`"summary"\s*:\s*"([^"]+)"`),
		"full_explanation": regexp.MustCompile(`"full_explanation"\s*:\s*"([^"]+)"`),
		"category":         regexp.MustCompile(`"category"\s*:\s*"([^"]+)"`),
	}
	tagsExpr = regexp.MustCompile(`"tags"\s*:\s*\[([^\]]*)\]`)
)

// Recover decodes raw into a Record. A strict JSON decode is tried first and
// its result returned untouched. Valid JSON that is not an object is
// rejected as it stands. Otherwise each known field is extracted on its own,
// so near-valid replies still yield their values.
func Recover(raw string) (Record, error) {
	trimmed := strings.TrimSpace(raw)
	if rec, ok, err := decodeStrict(trimmed); ok {
		return rec, err
	}
	unquoted := strings.Trim(trimmed, " \t\r\n\"'")
	if rec, ok, err := decodeStrict(unquoted); ok {
		return rec, err
	}

	rec := Record{}
	for field, expr := range stringFieldExprs {
		if m := expr.FindStringSubmatch(unquoted); m != nil {
			rec[field] = m[1]
		}
	}
	if tags, ok := extractTags(unquoted); ok {
		rec["tags"] = tags
	}

	if len(rec) == 0 {
		return nil, domain.ErrNotRecoverable
	}
	return rec, nil
}

// decodeStrict reports ok when s is valid JSON. A decoded value other than
// an object yields ErrNotRecoverable.
func decodeStrict(s string) (Record, bool, error) {
	if s == "" {
		return nil, false, nil
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false, nil
	}
	obj, isObject := v.(map[string]any)
	if !isObject {
		return nil, true, fmt.Errorf("%w: decoded %T, want object", domain.ErrNotRecoverable, v)
	}
	return Record(obj), true, nil
}

func extractTags(s string) ([]any, bool) {
	m := tagsExpr.FindStringSubmatch(s)
	if m == nil {
		return nil, false
	}

	var tags []any
	for _, part := range strings.Split(m[1], ",") {
		tag := strings.Trim(strings.TrimSpace(part), "\"'")
		tag = strings.TrimSpace(tag)
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	if len(tags) < domain.TagsMin || len(tags) > domain.TagsMax {
		return nil, false
	}
	return tags, true
}

// StripCodeFences removes a surrounding markdown code block from a model reply.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
