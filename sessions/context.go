package sessions

import "context"

type sessionContextKey struct{}

// NewContext returns a context carrying the verified session. A nil session
// leaves ctx unchanged.
func NewContext(ctx context.Context, s *Session) context.Context {
	if s == nil {
		return ctx
	}
	return context.WithValue(ctx, sessionContextKey{}, s)
}

// FromContext returns the session verified earlier in the request, if any.
func FromContext(ctx context.Context) (*Session, bool) {
	if ctx == nil {
		return nil, false
	}
	s, ok := ctx.Value(sessionContextKey{}).(*Session)
	return s, ok && s != nil
}
