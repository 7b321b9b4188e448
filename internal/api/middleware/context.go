package middleware

import (
	"context"
	"net"
	"net/http"
)

type contextKey string

const subjectKey contextKey = "rate_limit_subject"

func setSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey, subject)
}

func getSubject(r *http.Request) (string, bool) {
	subject, ok := r.Context().Value(subjectKey).(string)
	return subject, ok
}

// ExportedSubjectKey returns the context key for the rate limit subject (for testing).
func ExportedSubjectKey() contextKey {
	return subjectKey
}

// ClientIP returns the host part of the request's remote address.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
