package auth

import "strings"

// EvidenceKind tags the credential a request carried.
type EvidenceKind int

const (
	EvidenceNone EvidenceKind = iota
	EvidenceSession
	EvidenceBearer
)

func (k EvidenceKind) String() string {
	switch k {
	case EvidenceSession:
		return "session"
	case EvidenceBearer:
		return "bearer"
	default:
		return "none"
	}
}

// Evidence is either a session id, a bearer token, or nothing.
type Evidence struct {
	Kind  EvidenceKind
	Value string
}

// SessionEvidence wraps a session identifier.
func SessionEvidence(id string) Evidence { return Evidence{Kind: EvidenceSession, Value: id} }

// BearerEvidence wraps a bearer token.
func BearerEvidence(token string) Evidence { return Evidence{Kind: EvidenceBearer, Value: token} }

// NoEvidence is the anonymous case.
func NoEvidence() Evidence { return Evidence{Kind: EvidenceNone} }

// ExtractEvidence picks the session cookie over the Authorization header.
// A header with a scheme other than Bearer is ignored.
func ExtractEvidence(sessionCookie, authorization string) Evidence {
	if sessionCookie != "" {
		return SessionEvidence(sessionCookie)
	}
	if authorization == "" {
		return NoEvidence()
	}
	scheme, token, found := strings.Cut(strings.TrimSpace(authorization), " ")
	if !strings.EqualFold(scheme, "Bearer") {
		return NoEvidence()
	}
	if !found {
		return BearerEvidence("")
	}
	return BearerEvidence(strings.TrimSpace(token))
}
