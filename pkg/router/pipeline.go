package router

import (
	"context"
	"fmt"
	"io"

	"github.com/morezero/catalog-broker/pkg/ids"
)

// TokenVerifier inspects a present security token and returns the claims it
// carries. Returning an error rejects the request as unauthenticated.
type TokenVerifier interface {
	Verify(ctx context.Context, header *ids.Envelope) (Claims, error)
}

// PresenceVerifier accepts every present token and yields no claims.
type PresenceVerifier struct{}

func (PresenceVerifier) Verify(context.Context, *ids.Envelope) (Claims, error) {
	return Claims{}, nil
}

// Pipeline runs the validation stages in order: header presence, header
// parse, required fields, security token. The first failing stage ends it.
type Pipeline struct {
	Verifier TokenVerifier
}

// Validate returns a Request when every stage passes. On failure it returns
// the typed stage error and, from the required-field stage on, the parsed
// envelope so the rejection can be correlated to it. header is nil when the
// request had no header part.
func (p *Pipeline) Validate(ctx context.Context, header io.Reader, payload *string) (*Request, *ids.Envelope, error) {
	if header == nil {
		return nil, nil, ErrMissingHeader
	}

	env, err := ids.ParseReader(header)
	if err != nil {
		return nil, nil, err
	}

	if missing := env.MissingFields(); len(missing) > 0 {
		return nil, env, &MissingFieldError{Fields: missing}
	}

	if !env.SecurityToken.Present() {
		return nil, env, ErrMissingToken
	}

	verifier := p.Verifier
	if verifier == nil {
		verifier = PresenceVerifier{}
	}
	claims, err := verifier.Verify(ctx, env)
	if err != nil {
		return nil, env, fmt.Errorf("%w: %v", ErrTokenRejected, err)
	}
	if claims == nil {
		claims = Claims{}
	}

	return &Request{Header: env, Payload: payload, Claims: claims}, env, nil
}
