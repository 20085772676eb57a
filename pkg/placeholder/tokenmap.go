package placeholder

import (
	"encoding/json"
	"iter"

	"gitlab.com/tozd/go/errors"
)

// TokenMap is an ordered mapping from rendered token text to the original
// region text. Iteration order is the order tokens were added.
type TokenMap struct {
	keys   []string
	values map[string]string
}

func NewTokenMap() *TokenMap {
	return &TokenMap{
		values: make(map[string]string),
	}
}

// Add records a token. Adding a token that is already present is a collision.
func (m *TokenMap) Add(token, original string) error {
	if m.values == nil {
		m.values = make(map[string]string)
	}
	if _, ok := m.values[token]; ok {
		return errors.Errorf("%w: %q", ErrTokenCollision, token)
	}
	m.keys = append(m.keys, token)
	m.values[token] = original
	return nil
}

func (m *TokenMap) Get(token string) (string, bool) {
	if m == nil {
		return "", false
	}
	v, ok := m.values[token]
	return v, ok
}

func (m *TokenMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the tokens in insertion order
func (m *TokenMap) Keys() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.keys...)
}

// All iterates over token and original text pairs in insertion order
func (m *TokenMap) All() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		if m == nil {
			return
		}
		for _, k := range m.keys {
			if !yield(k, m.values[k]) {
				return
			}
		}
	}
}

type tokenMapEntry struct {
	Token  string `json:"token"`
	Source string `json:"source"`
}

// MarshalJSON encodes the map as an array so that order survives the round trip
func (m *TokenMap) MarshalJSON() ([]byte, error) {
	entries := make([]tokenMapEntry, 0, m.Len())
	for k, v := range m.All() {
		entries = append(entries, tokenMapEntry{Token: k, Source: v})
	}
	return json.Marshal(entries)
}

func (m *TokenMap) UnmarshalJSON(data []byte) error {
	var entries []tokenMapEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return errors.Errorf("decoding token map: %w", err)
	}
	*m = TokenMap{values: make(map[string]string, len(entries))}
	for _, e := range entries {
		if err := m.Add(e.Token, e.Source); err != nil {
			return err
		}
	}
	return nil
}
