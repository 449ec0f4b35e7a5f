package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ctxKey int

const (
	userIDKey ctxKey = iota
	claimsKey
	requestInfoKey
)

func userIDFrom(ctx context.Context) int64 {
	id, _ := ctx.Value(userIDKey).(int64)
	return id
}

func claimsFrom(ctx context.Context) *jwt.RegisteredClaims {
	claims, _ := ctx.Value(claimsKey).(*jwt.RegisteredClaims)
	return claims
}

// requestInfo lets inner handlers report back to the request logger.
type requestInfo struct {
	userID int64
}

// requestLogMiddleware logs one line per request. Bodies are never logged
// since they carry passwords.
func (s *Server) requestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		info := &requestInfo{}
		r = r.WithContext(context.WithValue(r.Context(), requestInfoKey, info))

		start := time.Now()
		wrw := newResponseWriterWrapper(w)

		next.ServeHTTP(wrw, r)

		fields := []zap.Field{
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrw.StatusCode()),
			zap.Int("bytes", wrw.Written()),
			zap.Duration("elapsed", time.Since(start)),
		}
		if info.userID != 0 {
			fields = append(fields, zap.Int64("user_id", info.userID))
		}
		if wrw.StatusCode() >= http.StatusInternalServerError {
			s.logger.Error("request", fields...)
			return
		}
		s.logger.Info("request", fields...)
	})
}

// authMiddleware accepts only unexpired, unrevoked bearer tokens.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			respondUnauthenticated(w)
			return
		}

		claims, err := s.tokens.Parse(strings.TrimSpace(raw))
		if err != nil {
			s.logger.Debug("rejected bearer token", zap.Error(err))
			respondUnauthenticated(w)
			return
		}

		revoked, err := s.storage.IsRevoked(r.Context(), claims.ID)
		if err != nil {
			s.logger.Error("failed to check token revocation", zap.Error(err))
			respondError(w, http.StatusInternalServerError, "Server Error")
			return
		}
		if revoked {
			respondUnauthenticated(w)
			return
		}

		userID, err := strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil {
			respondUnauthenticated(w)
			return
		}

		if info, ok := r.Context().Value(requestInfoKey).(*requestInfo); ok {
			info.userID = userID
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		ctx = context.WithValue(ctx, claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
