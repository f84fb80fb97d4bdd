package handler

import (
	"context"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"jasdaq.com/internal/engine"
	"jasdaq.com/internal/matching"
	"jasdaq.com/internal/tradestore"
	"jasdaq.com/pkg/xerr"
)

// codeOf 领域错误 -> 业务码
func codeOf(err error) error {
	switch {
	case errors.Is(err, matching.ErrInvalidOrder), errors.Is(err, tradestore.ErrBadArgument),
		errors.Is(err, engine.ErrBadSymbol):
		return xerr.Wrap(err, xerr.RequestParamsError, err.Error())
	case errors.Is(err, matching.ErrDuplicateOrder):
		return xerr.Wrap(err, xerr.DuplicateOrder, "")
	case errors.Is(err, engine.ErrEngineBusy):
		return xerr.Wrap(err, xerr.TooManyRequests, "")
	case errors.Is(err, engine.ErrUnknownSym):
		return xerr.Wrap(err, xerr.RecordNotFound, err.Error())
	case errors.Is(err, engine.ErrStopped), errors.Is(err, engine.ErrJournal):
		return xerr.Wrap(err, xerr.EngineUnavailable, "")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return xerr.Wrap(err, xerr.Timeout, "")
	}
	return err
}

func badRequest(err error) error {
	return xerr.Wrap(err, xerr.RequestParamsError, err.Error())
}

// intQuery 读正整数 query 参数，缺省用 def
func intQuery(c *gin.Context, name string, def int) (int, error) {
	v := c.Query(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, xerr.New(xerr.RequestParamsError, name+" must be a positive integer")
	}
	return n, nil
}

// storeErr 落库查询的错误，除参数/超时外都算数据库错误
func storeErr(err error) error {
	if e := codeOf(err); e != err {
		return e
	}
	return xerr.Wrap(err, xerr.DbError, "")
}
