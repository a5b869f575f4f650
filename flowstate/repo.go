// Package flowstate keeps the PKCE verifier of an OAuth sign-in between the
// redirect to the provider and the callback.
package flowstate

import (
	"context"
	"time"
)

type FlowState struct {
	CodeVerifier string    `json:"code_verifier"`
	Provider     string    `json:"provider"`
	RedirectTo   string    `json:"redirect_to"`
	CreatedAt    time.Time `json:"created_at"`
}

// Repo stores flow states by flow ID. Take is read-and-delete so a callback
// can only be completed once; a missing or expired flow is
// ErrFlowStateNotFound.
type Repo interface {
	Save(ctx context.Context, id string, state *FlowState, ttl time.Duration) error
	Take(ctx context.Context, id string) (*FlowState, error)
}
