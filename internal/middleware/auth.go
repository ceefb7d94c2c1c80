package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"
)

// ContextUserIDKey 是认证后的用户 id 在 gin.Context 中的键，值为 string。
const ContextUserIDKey = "user_id"

// ErrMissingAuthHeader 定义一个自定义错误，用于表示缺少 Authorization 头
var ErrMissingAuthHeader = errors.New("missing Authorization header")

// ErrMissingUserClaim 表示 token 中没有可用的 user_id
var ErrMissingUserClaim = errors.New("token has no usable user_id claim")

// Auth 返回一个 Gin 中间件，要求请求携带有效的 JWT。
func Auth(jwtSecret string) gin.HandlerFunc {
	if jwtSecret == "" {
		panic("JWT secret cannot be empty for Auth middleware")
	}

	return func(c *gin.Context) {
		tokenStr, err := extractToken(c)
		if err != nil {
			if errors.Is(err, ErrMissingAuthHeader) {
				logrus.Warn("Auth middleware: Missing Authorization header")
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
			} else {
				logrus.Warnf("Auth middleware: Malformed token format: %v", err)
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token format"})
			}
			c.Abort()
			return
		}

		userID, err := ParseUserID(tokenStr, jwtSecret)
		if err != nil {
			logCtx := logrus.WithError(err)
			logCtx.Warn("Auth middleware: Invalid token")
			var validationError *jwt.ValidationError
			if errors.As(err, &validationError) && validationError.Errors&jwt.ValidationErrorExpired != 0 {
				logCtx.Warn("Reason: Token is expired")
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(ContextUserIDKey, userID)
		logrus.WithField("user_id", userID).Debug("Auth middleware: User authenticated via JWT")
		c.Next()
	}
}

// OptionalAuth 在请求带有 token 时校验并设置 user_id；没有 token 时按访客放行。
// token 可以放在 Authorization 头，也可以放在 token 查询参数 (浏览器 WebSocket 无法设置请求头)。
// 带了无效 token 的请求会被拒绝。jwtSecret 为空时不做任何校验。
func OptionalAuth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if jwtSecret == "" {
			c.Next()
			return
		}
		tokenStr := c.Query("token")
		if tokenStr == "" {
			var err error
			tokenStr, err = extractToken(c)
			if errors.Is(err, ErrMissingAuthHeader) {
				c.Next()
				return
			}
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token format"})
				c.Abort()
				return
			}
		}

		userID, err := ParseUserID(tokenStr, jwtSecret)
		if err != nil {
			logrus.WithError(err).Warn("OptionalAuth middleware: Invalid token")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}
		c.Set(ContextUserIDKey, userID)
		c.Next()
	}
}

// UserID 返回上下文中认证过的用户 id，未认证时为空。
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserIDKey)
}

// ParseUserID 校验 HS256 token 并返回其中的 user_id。数字和字符串形式的 claim 都接受。
func ParseUserID(tokenStr, secret string) (string, error) {
	claims, err := validateToken(tokenStr, secret)
	if err != nil {
		return "", err
	}
	switch v := claims["user_id"].(type) {
	case string:
		if v != "" {
			return v, nil
		}
	case float64:
		if v > 0 && v == float64(uint64(v)) {
			return strconv.FormatUint(uint64(v), 10), nil
		}
	}
	return "", ErrMissingUserClaim
}

// extractToken 从 Gin 上下文中提取 Bearer Token
func extractToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", ErrMissingAuthHeader
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", jwt.ErrTokenMalformed
	}
	return parts[1], nil
}

// validateToken 解析并验证 JWT token 字符串
func validateToken(tokenStr string, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token or claims type")
}
