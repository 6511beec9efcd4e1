package domain

import (
	"encoding/json"
	"errors"
)

var errInterestsNotList = errors.New("interests: stored value is not a list")

// EncodeInterests serializes interests for the single-column layout.
func EncodeInterests(interests []string) (string, error) {
	if interests == nil {
		interests = []string{}
	}
	raw, err := json.Marshal(interests)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// DecodeInterests parses a stored interests value.
// An empty value decodes to an empty list; anything that is not a JSON list of strings is an error.
func DecodeInterests(raw string) ([]string, error) {
	if raw == "" {
		return []string{}, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, errInterestsNotList
	}
	return out, nil
}
