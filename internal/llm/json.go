package llm

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ErrNotJSON is returned when a model reply holds no usable JSON object.
var ErrNotJSON = errors.New("response was not a JSON object")

// ParseJSONObject extracts the JSON object from a model reply. It strips
// markdown code fences, falls back to the outermost {...} span and finally
// to jsonrepair for truncated or sloppy output.
func ParseJSONObject(text string) (map[string]any, error) {
	text = stripFences(strings.TrimSpace(text))
	if text == "" {
		return nil, ErrNotJSON
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(text), &result); err == nil && result != nil {
		return result, nil
	}

	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		if err := json.Unmarshal([]byte(text[start:end+1]), &result); err == nil && result != nil {
			return result, nil
		}
	}

	start := strings.Index(text, "{")
	if start < 0 {
		return nil, ErrNotJSON
	}
	repaired, err := jsonrepair.JSONRepair(text[start:])
	if err != nil {
		return nil, ErrNotJSON
	}
	if err := json.Unmarshal([]byte(repaired), &result); err != nil || result == nil {
		return nil, ErrNotJSON
	}
	return result, nil
}

func stripFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	end := len(lines)
	for i := len(lines) - 1; i > 0; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			end = i
			break
		}
	}
	return strings.TrimSpace(strings.Join(lines[1:end], "\n"))
}
