package router

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/golang-jwt/jwt/v4"

	"github.com/morezero/catalog-broker/pkg/ids"
)

const claimsLogPrefix = "router:claims"

// ClaimSubject is the Claims key holding the token subject.
const ClaimSubject = "sub"

var subjectKeys = []string{"https://w3id.org/idsa/core/sub", "ids:sub", "sub"}

// SubjectVerifier reads the subject of a JWT security token without checking
// its signature. It never rejects: a token that does not decode as a JWT
// yields empty claims.
type SubjectVerifier struct{}

func (SubjectVerifier) Verify(_ context.Context, header *ids.Envelope) (Claims, error) {
	claims := Claims{}
	if header == nil || !header.SecurityToken.Present() {
		return claims, nil
	}

	parsed := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(header.SecurityToken.TokenValue, parsed); err != nil {
		slog.Debug(fmt.Sprintf("%s - token is not a JWT", claimsLogPrefix), "messageId", header.ID, "error", err)
		return claims, nil
	}

	for _, key := range subjectKeys {
		if sub, ok := parsed[key].(string); ok && sub != "" {
			claims[ClaimSubject] = sub
			break
		}
	}
	return claims, nil
}

// Subject returns the token subject, or "" when none was extracted.
func (c Claims) Subject() string {
	s, _ := c[ClaimSubject].(string)
	return s
}
