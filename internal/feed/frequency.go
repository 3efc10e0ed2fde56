package feed

import "strings"

// Frequency is the category tag of a signal.
type Frequency string

const (
	FrequencyAll     Frequency = "all"
	FrequencyGeneral Frequency = "general"
	FrequencyHelp    Frequency = "help"
	FrequencyDream   Frequency = "dream"
	FrequencyAI      Frequency = "ai"
)

// FrequencyInfo pairs a frequency with its display label.
type FrequencyInfo struct {
	ID    Frequency `json:"id"`
	Label string    `json:"label"`
}

// Frequencies lists the selectable filters in display order. FrequencyAll is
// a filter only and cannot be attached to a signal.
var Frequencies = []FrequencyInfo{
	{ID: FrequencyAll, Label: "All Frequencies"},
	{ID: FrequencyGeneral, Label: "Open Void"},
	{ID: FrequencyHelp, Label: "S.O.S Signal"},
	{ID: FrequencyDream, Label: "Dream Log"},
	{ID: FrequencyAI, Label: "AI Nexus"},
}

// ParseFilter normalizes a filter value. Empty input selects FrequencyAll.
func ParseFilter(value string) (Frequency, bool) {
	normalized := Frequency(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return FrequencyAll, true
	}
	for _, info := range Frequencies {
		if info.ID == normalized {
			return normalized, true
		}
	}
	return "", false
}

// ValidSignalFrequency reports whether value can be attached to a signal.
func ValidSignalFrequency(value Frequency) bool {
	if value == FrequencyAll {
		return false
	}
	for _, info := range Frequencies {
		if info.ID == value {
			return true
		}
	}
	return false
}

func (f Frequency) query() string {
	if f == FrequencyAll {
		return ""
	}
	return string(f)
}
