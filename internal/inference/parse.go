package inference

import (
	"fmt"
	"strings"

	"github.com/antonholmquist/jason"
	"github.com/k3a/html2text"
)

// maxExcerptRunes caps error body excerpts carried in error messages
const maxExcerptRunes = 200

// parseLabels accepts either a bare JSON array of strings or an object
// wrapping the array under field (e.g. {"crops": [...]}). An object without
// that key falls back to its only array-valued member.
func parseLabels(body []byte, field string) ([]string, error) {
	value, err := jason.NewValueFromBytes(body)
	if err != nil {
		return nil, fmt.Errorf("decode %s list: %w", field, err)
	}

	if arr, err := value.Array(); err == nil {
		return stringValues(arr, field)
	}

	obj, err := value.Object()
	if err != nil {
		return nil, fmt.Errorf("%s list is neither an array nor an object", field)
	}

	if arr, err := obj.GetValueArray(field); err == nil {
		return stringValues(arr, field)
	}

	var found []*jason.Value
	matches := 0
	for _, v := range obj.Map() {
		if arr, err := v.Array(); err == nil {
			found = arr
			matches++
		}
	}
	if matches != 1 {
		return nil, fmt.Errorf("%s list: object has no %q array", field, field)
	}
	return stringValues(found, field)
}

func stringValues(arr []*jason.Value, field string) ([]string, error) {
	labels := make([]string, 0, len(arr))
	for i, v := range arr {
		s, err := v.String()
		if err != nil {
			return nil, fmt.Errorf("%s list: element %d is not a string", field, i)
		}
		labels = append(labels, s)
	}
	return labels, nil
}

// parseHealth reads the root endpoint's JSON object. Every top-level string
// member is kept; "status" and "message" are lifted out.
func parseHealth(body []byte) (*HealthStatus, error) {
	obj, err := jason.NewObjectFromBytes(body)
	if err != nil {
		return nil, fmt.Errorf("decode health response: %w", err)
	}

	status := &HealthStatus{Fields: make(map[string]string)}
	for key, v := range obj.Map() {
		if s, err := v.String(); err == nil {
			status.Fields[key] = s
		}
	}
	status.Status, _ = obj.GetString("status")
	status.Message, _ = obj.GetString("message")
	return status, nil
}

// bodyExcerpt turns an error body (often an HTML error page from a proxy)
// into a short single-line plain-text excerpt.
func bodyExcerpt(body []byte) string {
	if len(body) == 0 {
		return ""
	}

	text := string(body)
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "<") {
		text = html2text.HTML2Text(text)
	} else if obj, err := jason.NewObjectFromBytes(body); err == nil {
		// FastAPI-style {"detail": "..."}
		if detail, err := obj.GetString("detail"); err == nil {
			text = detail
		}
	}

	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) > maxExcerptRunes {
		text = string(runes[:maxExcerptRunes]) + "…"
	}
	return text
}
