package oauthmodel

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownIntent = errors.New("unknown authorization intent")

// Intent distinguishes signing in from attaching a provider identity to an
// existing account. It is fixed by the entry point and the callback route.
type Intent string

const (
	IntentLogin Intent = "LOGIN"
	IntentLink  Intent = "LINK"
)

func (i Intent) String() string {
	return string(i)
}

// Slot is the lower-case form used in storage keys and metric labels.
func (i Intent) Slot() string {
	return strings.ToLower(string(i))
}

func (i Intent) Valid() bool {
	return i == IntentLogin || i == IntentLink
}

func ParseIntent(s string) (Intent, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(IntentLogin):
		return IntentLogin, nil
	case string(IntentLink):
		return IntentLink, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownIntent, s)
}
