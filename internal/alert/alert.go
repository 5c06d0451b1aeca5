package alert

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotObject is returned when an alert document is not a JSON object.
var ErrNotObject = errors.New("alert: document is not a JSON object")

// ErrNoMetadata is returned when an alert has no metadata object.
var ErrNoMetadata = errors.New("alert: missing metadata")

// Source identifies where the triggering record came from.
type Source struct {
	Service string `json:"service"`
	Entity  string `json:"entity"`
}

// Metadata is the typed view of the alert's "metadata" object. It carries
// everything the processor needs for routing; the rest of the alert is opaque.
type Metadata struct {
	RuleName        string    `json:"rule_name"`
	RuleDescription string    `json:"rule_description"`
	Log             string    `json:"log"`
	Outputs         OutputSet `json:"outputs"`
	Type            string    `json:"type"`
	Source          Source    `json:"source"`
}

// Alert is a single detection event: the full document as received plus the
// typed metadata extracted from it.
type Alert struct {
	Body     Value
	Metadata Metadata
}

// Decode parses an alert document. Only the structure needed for routing is
// checked: the document must be an object with a "metadata" object, and
// metadata.rule_name and metadata.outputs, when present, must be a string and
// an array of strings. Other metadata fields are read when they are strings
// and left empty otherwise.
func Decode(raw []byte) (*Alert, error) {
	body, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("alert: decode body: %w", err)
	}
	if body.Kind() != KindObject {
		return nil, ErrNotObject
	}

	md, ok := body.Get("metadata")
	if !ok || md.Kind() != KindObject {
		return nil, ErrNoMetadata
	}

	meta, err := metadataFrom(md)
	if err != nil {
		return nil, err
	}
	return &Alert{Body: body, Metadata: meta}, nil
}

func metadataFrom(md Value) (Metadata, error) {
	var meta Metadata

	if v, ok := md.Get("rule_name"); ok && v.Kind() != KindNull {
		name, ok := v.AsString()
		if !ok {
			return Metadata{}, fmt.Errorf("alert: rule_name is %s, not string", v.Kind())
		}
		meta.RuleName = name
	}

	if v, ok := md.Get("outputs"); ok && v.Kind() != KindNull {
		if v.Kind() != KindArray {
			return Metadata{}, fmt.Errorf("alert: outputs is %s, not array", v.Kind())
		}
		for i, item := range v.Elements() {
			token, ok := item.AsString()
			if !ok {
				return Metadata{}, fmt.Errorf("alert: outputs[%d] is %s, not string", i, item.Kind())
			}
			meta.Outputs.Add(token)
		}
	}

	meta.RuleDescription = stringAt(md, "rule_description")
	meta.Log = stringAt(md, "log")
	meta.Type = stringAt(md, "type")
	meta.Source = Source{
		Service: stringAt(md, "source", "service"),
		Entity:  stringAt(md, "source", "entity"),
	}
	return meta, nil
}

// stringAt returns the string at path, or "" when it is missing or not a string.
func stringAt(v Value, path ...string) string {
	found, ok := v.Lookup(path...)
	if !ok {
		return ""
	}
	s, _ := found.AsString()
	return s
}

// Canonical returns a copy of the alert whose body has been canonicalized.
func (a *Alert) Canonical() *Alert {
	return &Alert{Body: Canonicalize(a.Body), Metadata: a.Metadata}
}

// Record returns the triggering record carried by the alert.
func (a *Alert) Record() Value {
	rec, _ := a.Body.Get("record")
	return rec
}

// MarshalJSON encodes the alert body.
func (a *Alert) MarshalJSON() ([]byte, error) {
	return a.Body.MarshalJSON()
}

// OutputSet is an ordered set of output tokens ("service:descriptor").
// Adding a token that is already present is a no-op, so iterating the set
// yields each unique output exactly once, in first-seen order.
type OutputSet struct {
	items []string
	index map[string]struct{}
}

// NewOutputSet builds a set from tokens, dropping duplicates.
func NewOutputSet(tokens ...string) OutputSet {
	var s OutputSet
	for _, t := range tokens {
		s.Add(t)
	}
	return s
}

// Add inserts token and reports whether it was not already present.
func (s *OutputSet) Add(token string) bool {
	if s.index == nil {
		s.index = make(map[string]struct{})
	}
	if _, dup := s.index[token]; dup {
		return false
	}
	s.index[token] = struct{}{}
	s.items = append(s.items, token)
	return true
}

// Contains reports whether token is in the set.
func (s OutputSet) Contains(token string) bool {
	_, ok := s.index[token]
	return ok
}

// Len returns the number of unique tokens.
func (s OutputSet) Len() int { return len(s.items) }

// Items returns the tokens in first-seen order.
func (s OutputSet) Items() []string {
	return append([]string(nil), s.items...)
}

// UnmarshalJSON accepts a JSON array of strings (or null).
func (s *OutputSet) UnmarshalJSON(data []byte) error {
	var tokens []string
	if err := json.Unmarshal(data, &tokens); err != nil {
		return fmt.Errorf("alert: outputs must be an array of strings: %w", err)
	}
	*s = NewOutputSet(tokens...)
	return nil
}

// MarshalJSON encodes the set as a JSON array.
func (s OutputSet) MarshalJSON() ([]byte, error) {
	if s.items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.items)
}
