package server

import (
	"encoding/json"
	"strings"
	"time"
)

// symbolByEmotion backs the "fruit" glyph shown on the calendar. Unknown
// labels fall back to defaultSymbol.
var symbolByEmotion = map[string]string{
	"happy":    "🍓",
	"excited":  "🍍",
	"grateful": "🍑",
	"calm":     "🥝",
	"neutral":  "🍏",
	"tired":    "🥥",
	"anxious":  "🍋",
	"stressed": "🍇",
	"sad":      "🫐",
	"angry":    "🍎",
}

const defaultSymbol = "🍏"

func symbolForEmotion(emotion string) string {
	if symbol, ok := symbolByEmotion[normalizeEmotion(emotion)]; ok {
		return symbol
	}
	return defaultSymbol
}

func normalizeEmotion(input string) string {
	return strings.ToLower(strings.TrimSpace(input))
}

// tagList accepts either a JSON array of strings or a single
// comma-separated string, the two shapes clients send tags in.
type tagList []string

func (t *tagList) UnmarshalJSON(data []byte) error {
	var asList []string
	if err := json.Unmarshal(data, &asList); err == nil {
		*t = normalizeTags(asList)
		return nil
	}
	var asString string
	if err := json.Unmarshal(data, &asString); err != nil {
		return err
	}
	*t = normalizeTags(strings.Split(asString, ","))
	return nil
}

func normalizeTags(raw []string) []string {
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func parseDate(value string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// parseDateOrTimestamp accepts a day string or a full ISO-8601 timestamp.
func parseDateOrTimestamp(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return t.UTC(), nil
	}
	return parseDate(trimmed)
}

func startOfUTCDay(t time.Time) time.Time {
	utc := t.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
}

// utcDayKey is the canonical bucketing key: the instant's calendar day in
// UTC, never in server-local time.
func utcDayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
