// Package middleware 提供JWT认证和授权中间件。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/warestack/lotkeeper/internal/resp"
)

// 上下文键定义
const (
	contextKeyClaims contextKey = "auth_claims"
)

// RoleAdmin 管理端接口要求的角色
const RoleAdmin = "admin"

// AuthClaims JWT令牌携带的业务声明
type AuthClaims struct {
	CompanyID int64  `json:"company_id"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// ClaimsFromContext 从上下文读取认证信息（可能为 nil）
func ClaimsFromContext(ctx context.Context) *AuthClaims {
	if v := ctx.Value(contextKeyClaims); v != nil {
		if c, ok := v.(*AuthClaims); ok {
			return c
		}
	}
	return nil
}

// Auth JWT认证中间件
// 验证 Authorization 头中的 Bearer 令牌，并将声明注入请求上下文。
func Auth(secret, issuer string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := RequestIDFromContext(r.Context())

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("missing authorization header", zap.String("request_id", reqID))
				resp.Error(w, http.StatusUnauthorized, resp.CodeUnauthorized, "authorization header required", reqID, "")
				return
			}

			const bearerPrefix = "Bearer "
			if !strings.HasPrefix(authHeader, bearerPrefix) {
				logger.Warn("invalid authorization header format", zap.String("request_id", reqID))
				resp.Error(w, http.StatusUnauthorized, resp.CodeUnauthorized, "invalid authorization header format", reqID, "")
				return
			}

			tokenString := strings.TrimPrefix(authHeader, bearerPrefix)
			claims, err := parseToken(tokenString, secret, issuer)
			if err != nil {
				logger.Warn("token validation failed", zap.String("request_id", reqID), zap.Error(err))
				if errors.Is(err, jwt.ErrTokenExpired) {
					resp.Error(w, http.StatusUnauthorized, resp.CodeUnauthorized, "token expired", reqID, "")
				} else {
					resp.Error(w, http.StatusUnauthorized, resp.CodeUnauthorized, "invalid token", reqID, "")
				}
				return
			}

			ctx := context.WithValue(r.Context(), contextKeyClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin 管理员授权中间件，必须位于 Auth 之后
func RequireAdmin(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := RequestIDFromContext(r.Context())

			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				resp.Error(w, http.StatusUnauthorized, resp.CodeUnauthorized, "authentication required", reqID, "")
				return
			}
			if claims.Role != RoleAdmin {
				logger.Warn("admin access denied",
					zap.String("request_id", reqID),
					zap.String("role", claims.Role),
				)
				resp.Error(w, http.StatusForbidden, resp.CodeForbidden, "admin access required", reqID, "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// parseToken 验证HS256令牌并返回声明
func parseToken(tokenString, secret, issuer string) (*AuthClaims, error) {
	if tokenString == "" {
		return nil, errors.New("token required")
	}

	claims := &AuthClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
