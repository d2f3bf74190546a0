package common

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// ExtractedData is the structured payload the extraction step attaches to a
// document. Every field is optional and unknown keys are ignored.
type ExtractedData struct {
	Issuer          *string        `json:"issuer"`
	Category        *string        `json:"category"`
	Tags            []string       `json:"tags"`
	People          []Person       `json:"people"`
	Organizations   []Organization `json:"organizations"`
	Roles           []Role         `json:"roles"`
	Locations       []Location     `json:"locations"`
	CustomEntities  []CustomEntity `json:"custom_entities"`
	Relationships   []Relationship `json:"relationships"`
	Amounts         []Amount       `json:"amounts"`
	Dates           []DateEntry    `json:"dates"`
	PriorityScore   *float64       `json:"priority_score"`
	DetailedSummary *string        `json:"detailed_summary"`
}

type Person struct {
	Name        string `json:"name"`
	Role        string `json:"role,omitempty"`
	Description string `json:"description,omitempty"`
}

type Organization struct {
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
}

type Role struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type Location struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

type CustomEntity struct {
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
}

type Relationship struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	Relation string `json:"relation"`
}

type DateEntry struct {
	Label string `json:"label"`
	Date  string `json:"date"`
}

// Amount is a monetary value. Value is nil when the extraction step produced
// something that is neither a number nor a numeric string.
type Amount struct {
	Label    string   `json:"label,omitempty"`
	Value    *float64 `json:"value"`
	Currency string   `json:"currency,omitempty"`
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	var raw struct {
		Label    *string         `json:"label"`
		Value    json.RawMessage `json:"value"`
		Currency *string         `json:"currency"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Label != nil {
		a.Label = *raw.Label
	}
	if raw.Currency != nil {
		a.Currency = *raw.Currency
	}
	a.Value = parseLenientNumber(raw.Value)
	return nil
}

func parseLenientNumber(raw json.RawMessage) *float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return &f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

// ParseExtractedData decodes a document's extracted payload. A nil or blank
// payload yields (nil, nil). Malformed JSON, or JSON that is not an object,
// is returned as an error.
func ParseExtractedData(raw *string) (*ExtractedData, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	var data ExtractedData
	if err := json.Unmarshal([]byte(*raw), &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// FirstAmount returns the first amount with a usable value.
func (d *ExtractedData) FirstAmount() *Amount {
	if d == nil {
		return nil
	}
	for i := range d.Amounts {
		if d.Amounts[i].Value != nil {
			return &d.Amounts[i]
		}
	}
	return nil
}
