package runtime

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/systaxiecuador/hive/pkg/domain"
	"github.com/systaxiecuador/hive/pkg/memplane"
)

var placeholderRe = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// renderTemplate substitutes {name} placeholders against the input
// view. A missing name is a missing-input failure, raised before any
// LLM call is made.
func renderTemplate(nodeID, tmpl string, view memplane.View) (string, error) {
	var missing []string
	out := placeholderRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := view.Get(name)
		if !ok || v == nil {
			missing = append(missing, name)
			return m
		}
		return stringify(v)
	})
	if len(missing) > 0 {
		return "", domain.NewFailure(domain.FailMissingInput, nodeID,
			"prompt references unset keys: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// serializeView renders the input view as the first user message of an
// LLM conversation: one "key: value" line per key, complex values as
// JSON.
func serializeView(view memplane.View) string {
	keys := make([]string, 0, len(view))
	for k := range view {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, stringify(view[k]))
	}
	return strings.TrimRight(b.String(), "\n")
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case map[string]any, []any:
		data, err := json.Marshal(t)
		if err == nil {
			return string(data)
		}
	}
	return fmt.Sprintf("%v", v)
}

var fencedJSONRe = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")

// parseJSONResponse extracts JSON from an LLM reply, tolerating
// markdown code fences and surrounding prose. Returns nil, false when
// no JSON could be recovered.
func parseJSONResponse(text string) (any, bool) {
	cleaned := strings.TrimSpace(text)

	for _, m := range fencedJSONRe.FindAllStringSubmatch(cleaned, -1) {
		if v, ok := tryJSON(m[1]); ok {
			return v, true
		}
	}
	if v, ok := tryJSON(cleaned); ok {
		return v, true
	}

	// Last resort: the widest brace- or bracket-delimited span.
	for _, pair := range [][2]string{{"{", "}"}, {"[", "]"}} {
		start := strings.Index(cleaned, pair[0])
		end := strings.LastIndex(cleaned, pair[1])
		if start >= 0 && end > start {
			if v, ok := tryJSON(cleaned[start : end+1]); ok {
				return v, true
			}
		}
	}
	return nil, false
}

func tryJSON(s string) (any, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	return v, true
}
