// Package middleware gin 미들웨어와 공통 응답
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// RequestIDKey 요청 ID 컨텍스트 키
const RequestIDKey = "request_id"

// UserIDKey 인증된 사용자 id 컨텍스트 키
const UserIDKey = "user_id"

// ErrorCode API 에러 코드
type ErrorCode string

const (
	ErrCodeUnauthorized     ErrorCode = "AUTH_UNAUTHORIZED"
	ErrCodeInvalidToken     ErrorCode = "AUTH_INVALID_TOKEN"
	ErrCodeValidationFailed ErrorCode = "REQUEST_VALIDATION_FAILED"
	ErrCodeInvalidJSON      ErrorCode = "REQUEST_INVALID_JSON"
	ErrCodeNotFound         ErrorCode = "RESOURCE_NOT_FOUND"
	ErrCodeAlreadyRunning   ErrorCode = "BUSINESS_ALREADY_RUNNING"
	ErrCodeInvalidState     ErrorCode = "BUSINESS_INVALID_STATE"
	ErrCodeStageFailed      ErrorCode = "BUSINESS_STAGE_FAILED"
	ErrCodeInternalError    ErrorCode = "SERVER_INTERNAL_ERROR"
)

// APIError 구조화된 에러
type APIError struct {
	Code    ErrorCode         `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// APIResponse 기본 API 응답
type APIResponse[T any] struct {
	Success   bool      `json:"success"`
	Data      T         `json:"data,omitempty"`
	Error     *APIError `json:"error,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

// GetRequestID gin 컨텍스트의 요청 ID
func GetRequestID(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}

// ErrorResponse 에러 코드와 요청 ID를 포함한 에러 응답
func ErrorResponse(c *gin.Context, status int, code ErrorCode, message string) {
	c.JSON(status, APIResponse[any]{
		Success:   false,
		Error:     &APIError{Code: code, Message: message},
		RequestID: GetRequestID(c),
	})
}

// ErrorResponseWithDetails 상세 정보 포함 에러 응답
func ErrorResponseWithDetails(c *gin.Context, status int, code ErrorCode, message string, details map[string]string) {
	c.JSON(status, APIResponse[any]{
		Success:   false,
		Error:     &APIError{Code: code, Message: message, Details: details},
		RequestID: GetRequestID(c),
	})
}

// SuccessResponse 성공 응답
func SuccessResponse[T any](c *gin.Context, status int, data T) {
	c.JSON(status, APIResponse[T]{
		Success:   true,
		Data:      data,
		RequestID: GetRequestID(c),
	})
}

// AuthMiddleware JWT(HMAC) bearer 인증
func AuthMiddleware(jwtSecret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			ErrorResponse(c, http.StatusUnauthorized, ErrCodeUnauthorized, "Missing authorization header")
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			ErrorResponse(c, http.StatusUnauthorized, ErrCodeUnauthorized, "Invalid authorization header format")
			c.Abort()
			return
		}

		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return jwtSecret, nil
		})
		if err != nil || !token.Valid {
			ErrorResponse(c, http.StatusUnauthorized, ErrCodeInvalidToken, "Invalid token")
			c.Abort()
			return
		}

		if sub, err := token.Claims.GetSubject(); err == nil && sub != "" {
			c.Set(UserIDKey, sub)
		}

		c.Next()
	}
}

// CORSMiddleware CORS 미들웨어
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RequestIDMiddleware 요청 ID 부여
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		c.Set(RequestIDKey, requestID)
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}
