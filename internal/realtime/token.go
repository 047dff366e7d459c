package realtime

import "context"

// TokenSource supplies credentials on demand. The platform's token store
// and refresh endpoint live behind this contract; the manager consults
// it only when the server rejects the current token, at most once per
// connect attempt.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type staticTokenSource struct {
	token string
}

// StaticTokenSource returns a source that always yields the same token.
// Useful for wiring and tests; a rejected static token simply fails the
// one permitted retry.
func StaticTokenSource(token string) TokenSource {
	return staticTokenSource{token: token}
}

func (s staticTokenSource) Token(context.Context) (string, error) {
	return s.token, nil
}
