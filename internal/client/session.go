package client

import (
	"context"
	"time"
)

// Session is the client side login state: LoggedOut or *LoggedIn. It travels
// in a context.Context so that commands can be tested without any live
// transport.
type Session interface {
	LoggedIn() bool
}

type LoggedOut struct{}

func (LoggedOut) LoggedIn() bool { return false }

// LoggedIn holds what authenticated commands need. The server re-checks the
// credential on every call, so it is kept for the lifetime of the session.
type LoggedIn struct {
	Username string
	password string
	Since    time.Time
}

func (*LoggedIn) LoggedIn() bool { return true }

type sessionKey struct{}

// WithSession returns a context carrying s.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFrom returns the session in ctx, LoggedOut when there is none.
func SessionFrom(ctx context.Context) Session {
	if s, ok := ctx.Value(sessionKey{}).(Session); ok && s != nil {
		return s
	}
	return LoggedOut{}
}

func loggedIn(ctx context.Context) (*LoggedIn, error) {
	s, ok := SessionFrom(ctx).(*LoggedIn)
	if !ok || s == nil {
		return nil, ErrNotLoggedIn
	}
	return s, nil
}
