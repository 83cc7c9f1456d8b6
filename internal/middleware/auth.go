// Package middleware holds the Connect interceptors of the ledger API.
package middleware

import (
	"context"
	"net"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/equb/internal/auth"
	"github.com/mmynk/equb/internal/models"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// ActorKey is the context key for the resolved actor.
const ActorKey contextKey = "actor"

// DeviceIDHeader carries an optional client device identifier into audit rows.
const DeviceIDHeader = "X-Device-Id"

// CommandIDHeader carries an optional client command identifier into audit
// rows, so every event one request writes can be correlated.
const CommandIDHeader = "X-Command-Id"

// WithActor returns a copy of ctx carrying actor.
func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, ActorKey, actor)
}

// GetActor extracts the actor from the context.
func GetActor(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(ActorKey).(models.Actor)
	return actor, ok
}

// GetUserID extracts the actor's user ID from the context.
// Returns empty string if not found.
func GetUserID(ctx context.Context) string {
	actor, _ := GetActor(ctx)
	return actor.ID
}

// RequireActor validates the bearer token and stores the actor, with its
// request metadata, in the context.
func RequireActor(jwtManager *auth.JWTManager) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			authHeader := req.Header().Get("Authorization")
			if authHeader == "" {
				return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrMissingToken)
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrInvalidToken)
			}

			claims, err := jwtManager.Validate(parts[1])
			if err != nil {
				return nil, connect.NewError(connect.CodeUnauthenticated, err)
			}

			actor := claims.Actor()
			actor.IPAddress = clientIP(req)
			actor.DeviceID = req.Header().Get(DeviceIDHeader)
			actor.CommandID = req.Header().Get(CommandIDHeader)
			return next(WithActor(ctx, actor), req)
		}
	}
}

func clientIP(req connect.AnyRequest) string {
	if fwd := req.Header().Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	addr := req.Peer().Addr
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
