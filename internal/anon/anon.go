// Package anon derives the pseudonymous identifier that joins the data file
// to the key file without exposing respondent identity.
package anon

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/funmi/casi-export/internal/apperr"
)

// TokenLength is the number of characters kept from the encoded digest.
const TokenLength = 12

// Anonymizer computes tokens keyed by a process-wide secret salt.
type Anonymizer struct {
	salt []byte
}

// New returns an Anonymizer for salt. An empty salt is a configuration
// error: there is no unsalted fallback.
func New(salt string) (*Anonymizer, error) {
	if salt == "" {
		return nil, fmt.Errorf("anon: salt is not configured: %w", apperr.ErrConfig)
	}
	return &Anonymizer{salt: []byte(salt)}, nil
}

// Token returns HMAC-SHA256(salt, respondentID ":" periodID), base64url
// encoded, reduced to [A-Za-z0-9] and truncated to TokenLength.
func (a *Anonymizer) Token(respondentID, periodID string) string {
	mac := hmac.New(sha256.New, a.salt)
	mac.Write([]byte(respondentID + ":" + periodID))
	enc := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

	var b strings.Builder
	b.Grow(TokenLength)
	for i := 0; i < len(enc) && b.Len() < TokenLength; i++ {
		c := enc[i]
		if ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9') {
			b.WriteByte(c)
		}
	}
	return b.String()
}
