// Package ident implements the namespacing convention that ties every
// calendar and event identifier to the provider that owns it. Identifiers
// of the form "<prefix><native id>" circulate everywhere outside the
// adapter boundary; adapters only ever see the native part.
package ident

import (
	"errors"
	"fmt"
	"strings"

	"calagent/internal/models"
)

// ErrMalformedID is returned when an identifier carries no recognized
// provider prefix.
var ErrMalformedID = errors.New("unrecognized calendar id")

// Prefixes are mutually exclusive: no provider's native id format starts
// with another provider's prefix.
var prefixes = map[models.ProviderTag]string{
	models.ProviderGoogle:    "google_",
	models.ProviderMicrosoft: "microsoft_",
	models.ProviderCalDAV:    "caldav_",
}

// Namespace prepends the provider's fixed prefix to a native identifier.
func Namespace(tag models.ProviderTag, nativeID string) string {
	return prefixes[tag] + nativeID
}

// Denamespace splits a namespaced identifier into its provider tag and
// native identifier. It fails with ErrMalformedID when the prefix is not
// recognized or nothing follows it.
func Denamespace(id string) (models.ProviderTag, string, error) {
	for tag, prefix := range prefixes {
		if strings.HasPrefix(id, prefix) && len(id) > len(prefix) {
			return tag, id[len(prefix):], nil
		}
	}
	return "", "", fmt.Errorf("%w: %q", ErrMalformedID, id)
}

// EventID strips a recognized provider prefix from an event identifier.
// Unprefixed ids pass through unchanged: event ids surfaced by the model
// may be native already (echoed from listings that predate namespacing).
func EventID(id string) string {
	for _, prefix := range prefixes {
		if strings.HasPrefix(id, prefix) && len(id) > len(prefix) {
			return id[len(prefix):]
		}
	}
	return id
}
