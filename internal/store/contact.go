package store

import (
	"encoding/json"
	"strings"
)

// ContactInfo is the structured form of a mission's contact_info column.
type ContactInfo struct {
	Email     string `json:"email"`
	Skype     string `json:"skype,omitempty"`
	Instagram string `json:"instagram,omitempty"`
}

// Encode serializes the contact details for storage.
func (c ContactInfo) Encode() (string, error) {
	encoded, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

// InstagramHandle returns the handle without a leading '@'.
func (c ContactInfo) InstagramHandle() string {
	return strings.TrimPrefix(strings.TrimSpace(c.Instagram), "@")
}

// ParsedContact is either structured contact details or the raw stored text.
type ParsedContact struct {
	Structured *ContactInfo `json:"structured,omitempty"`
	Raw        string       `json:"raw,omitempty"`
}

// ParseContactInfo decodes a stored contact_info value. Anything that is not a
// JSON object degrades to the raw string.
func ParseContactInfo(value string) ParsedContact {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "{") {
		return ParsedContact{Raw: value}
	}
	var info ContactInfo
	if err := json.Unmarshal([]byte(trimmed), &info); err != nil {
		return ParsedContact{Raw: value}
	}
	return ParsedContact{Structured: &info}
}
