package xerr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrap_KeepsCause(t *testing.T) {
	base := errors.New("mailbox full")
	err := Wrap(base, TooManyRequests, "")

	assert.ErrorIs(t, err, base)
	ce := FromError(err)
	assert.Equal(t, TooManyRequests, ce.Code)
	assert.Equal(t, "请求过于频繁", ce.Msg)
	assert.Equal(t, http.StatusTooManyRequests, HTTPStatus(ce.Code))
	assert.Nil(t, Wrap(nil, DbError, "x"))
}

func TestFromError_Unknown(t *testing.T) {
	ce := FromError(errors.New("boom"))
	assert.Equal(t, ServerCommonError, ce.Code)
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(ce.Code))
}
