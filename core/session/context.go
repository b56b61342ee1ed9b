package session

import "context"

type contextKey int

const (
	sessionKey contextKey = iota
	sessionIDKey
)

func NewContext(ctx context.Context, sess *Session, id string) context.Context {
	ctx = context.WithValue(ctx, sessionKey, sess)
	return context.WithValue(ctx, sessionIDKey, id)
}

func FromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionKey).(*Session)
	return sess
}

func IDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey).(string)
	return id
}
