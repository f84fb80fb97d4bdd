package xerr

import (
	"errors"
	"fmt"
	"net/http"
)

// 常用错误码定义
const (
	OK                 = 200
	RequestParamsError = 400
	RecordNotFound     = 404
	DuplicateOrder     = 409
	TooManyRequests    = 429
	ServerCommonError  = 500
	DbError            = 501
	EngineUnavailable  = 503
	Timeout            = 504
)

type CodeError struct {
	Code  int    `json:"code"`
	Msg   string `json:"msg"`
	cause error
}

func (e *CodeError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("ErrCode:%d, Msg:%s, Cause:%v", e.Code, e.Msg, e.cause)
	}
	return fmt.Sprintf("ErrCode:%d, Msg:%s", e.Code, e.Msg)
}

func (e *CodeError) Unwrap() error { return e.cause }

func New(code int, msg string) error {
	return &CodeError{Code: code, Msg: msg}
}

func NewErrCode(code int) error {
	return &CodeError{Code: code, Msg: MapErrMsg(code)}
}

// Wrap 给底层错误挂上业务码，errors.Is 仍能找到底层错误
func Wrap(err error, code int, msg string) error {
	if err == nil {
		return nil
	}
	if msg == "" {
		msg = MapErrMsg(code)
	}
	return &CodeError{Code: code, Msg: msg, cause: err}
}

// FromError 取出链上的第一个 CodeError；没有就当作服务器错误
func FromError(err error) *CodeError {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce
	}
	return &CodeError{Code: ServerCommonError, Msg: MapErrMsg(ServerCommonError), cause: err}
}

// HTTPStatus 业务码 -> HTTP 状态码
func HTTPStatus(code int) int {
	switch code {
	case OK:
		return http.StatusOK
	case RequestParamsError:
		return http.StatusBadRequest
	case RecordNotFound:
		return http.StatusNotFound
	case DuplicateOrder:
		return http.StatusConflict
	case TooManyRequests:
		return http.StatusTooManyRequests
	case EngineUnavailable:
		return http.StatusServiceUnavailable
	case Timeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func MapErrMsg(code int) string {
	switch code {
	case ServerCommonError:
		return "服务器开小差了"
	case RequestParamsError:
		return "参数错误"
	case DbError:
		return "数据库繁忙"
	case RecordNotFound:
		return "记录不存在"
	case DuplicateOrder:
		return "订单号重复"
	case TooManyRequests:
		return "请求过于频繁"
	case EngineUnavailable:
		return "撮合服务不可用"
	case Timeout:
		return "请求超时"
	default:
		return "未知错误"
	}
}
