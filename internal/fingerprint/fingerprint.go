// Package fingerprint computes the deterministic change-detection token the
// Reconciler uses to decide whether a subscription's filter parameters have
// changed since it was last started.
package fingerprint

import (
	"net/url"
	"sort"
	"strings"

	"github.com/relaystream/filterstream/internal/subscription"
)

// orderedKeys fixes the key order so that two subscriptions with identical
// filter content always produce byte-identical fingerprints.
var orderedKeys = []string{"follow", "track", "locations"}

// Of returns the deterministic fingerprint for a subscription's filter
// parameters: for each recognized key present with a non-empty value, sort
// the set, join with ",", then form a canonical URL-encoded key=value&...
// string with keys in a fixed order.
func Of(sub subscription.Subscription) string {
	values := map[string][]string{
		"follow":    sub.Follow,
		"track":     sub.Track,
		"locations": sub.Locations,
	}

	pairs := make([]string, 0, len(orderedKeys))
	for _, key := range orderedKeys {
		set := values[key]
		if len(set) == 0 {
			continue
		}
		sorted := append([]string(nil), set...)
		sort.Strings(sorted)
		pairs = append(pairs, key+"="+url.QueryEscape(strings.Join(sorted, ",")))
	}
	return strings.Join(pairs, "&")
}

// EncodeBody returns the URL-encoded filter body the worker parses and signs
// for the upstream filter API. It is identical to Of, so the two never
// disagree about what a subscription's filter actually is. The worker
// re-encodes it with url.Values.Encode, so the body on the wire lists keys
// alphabetically; each key's sorted value set is unchanged.
func EncodeBody(sub subscription.Subscription) string {
	return Of(sub)
}
