package client

import "context"

type clientContextKey struct{}

// NewContext returns a context carrying the request's server client.
func NewContext(ctx context.Context, c *Client) context.Context {
	return context.WithValue(ctx, clientContextKey{}, c)
}

func FromContext(ctx context.Context) (*Client, bool) {
	c, ok := ctx.Value(clientContextKey{}).(*Client)
	return c, ok && c != nil
}
