package common

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"jasdaq.com/pkg/logger"
)

const (
	HeaderRequestID = "X-Request-Id"
	CtxKeyRequestID = logger.RequestIdKey
)

func New() string { return uuid.NewString() }

// RequestIDFromGin 取 ReqId 中间件写入的 id
func RequestIDFromGin(c *gin.Context) string {
	if v, ok := c.Get(CtxKeyRequestID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
