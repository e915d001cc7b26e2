// Package engine decides whether an authentication provider may be attached
// to an existing identity mapping. The decision is policy, not code: real IdPs
// issue client-specific issuer strings that rarely equal the configured
// provider name, and whether an unrelated provider may silently join an
// existing account is a product decision that must stay tightenable.
package engine

import (
	"context"
	"strings"
)

// AttachResult holds the outcome of provider-attachment policy evaluation.
type AttachResult struct {
	// Related is true when the requested provider belongs to the same
	// protocol family as one already on the mapping.
	Related bool
	// Attach is true when the provider may be attached to the mapping.
	Attach bool
}

// Evaluator evaluates provider-attachment policy using OPA or other engines.
type Evaluator interface {
	// EvaluateAttach decides whether the requested providers may attach to a
	// mapping that already carries the existing providers.
	EvaluateAttach(ctx context.Context, requested, existing []string) (AttachResult, error)
}

// families are the protocol family tokens used to relate provider names.
var families = []string{"saml", "oidc", "oauth", "jwt", "keycloak", "auth0", "email", "vc", "did"}

// Normalize lowercases and trims a provider name for comparison.
func Normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}

// Families returns the protocol family tokens found in the provider name
// (e.g. "protocol-bridge-saml" -> ["saml"]).
func Families(provider string) []string {
	p := Normalize(provider)
	var out []string
	for _, f := range families {
		if strings.Contains(p, f) {
			out = append(out, f)
		}
	}
	return out
}

func normalizeAll(providers []string) []string {
	out := make([]string, 0, len(providers))
	for _, p := range providers {
		if n := Normalize(p); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func familiesOfAll(providers []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range providers {
		for _, f := range Families(p) {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out
}
