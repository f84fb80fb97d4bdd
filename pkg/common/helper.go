package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"jasdaq.com/pkg/logger"
	"jasdaq.com/pkg/xerr"
)

// 定义http返回格式
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func Success(ctx *gin.Context, data interface{}) {
	ctx.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: http.StatusText(http.StatusOK),
		Data:    data,
	})
}

func Fail(c *gin.Context, httpStatus int, code int, message string) {
	c.JSON(httpStatus, Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

// FailErr 按 CodeError 的业务码回包；5xx 记录完整错误
func FailErr(c *gin.Context, err error) {
	ce := xerr.FromError(err)
	status := xerr.HTTPStatus(ce.Code)
	log := logger.Warn
	if status >= http.StatusInternalServerError {
		log = logger.Error
	}
	log(c.Request.Context(), "http error",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Int("biz_code", ce.Code),
		zap.Error(err),
	)
	Fail(c, status, ce.Code, ce.Msg)
}
