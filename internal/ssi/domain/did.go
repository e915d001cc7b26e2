// Package domain holds the W3C-shaped DID document, verifiable credential,
// and presentation types exchanged with the SSI collaborators.
package domain

import "strings"

// DIDDocument is a W3C DID document. Only the fields the bridge reads and
// writes are modeled.
type DIDDocument struct {
	Context            []string             `json:"@context"`
	ID                 string               `json:"id"`
	Controller         string               `json:"controller,omitempty"`
	VerificationMethod []VerificationMethod `json:"verificationMethod,omitempty"`
	Authentication     []string             `json:"authentication,omitempty"`
	Service            []ServiceEndpoint    `json:"service,omitempty"`
	Deactivated        bool                 `json:"deactivated,omitempty"`
}

// VerificationMethod is a public key entry in a DID document.
type VerificationMethod struct {
	ID                 string `json:"id"`
	Type               string `json:"type"`
	Controller         string `json:"controller"`
	PublicKeyMultibase string `json:"publicKeyMultibase,omitempty"`
}

// ServiceEndpoint is a service entry in a DID document. IdentityService
// endpoints carry profile data the bridge folds into the normalized identity.
type ServiceEndpoint struct {
	ID              string         `json:"id"`
	Type            string         `json:"type"`
	ServiceEndpoint string         `json:"serviceEndpoint,omitempty"`
	Properties      map[string]any `json:"properties,omitempty"`
}

// Method returns the method segment of a DID (e.g. "key" for did:key:z6Mk...),
// or empty if the DID is malformed.
func Method(did string) string {
	parts := strings.SplitN(did, ":", 3)
	if len(parts) < 3 || parts[0] != "did" {
		return ""
	}
	return parts[1]
}
