package matching

import (
	"errors"
	"fmt"
)

// 定义错误
var (
	ErrInvalidOrder   = errors.New("invalid order")
	ErrDuplicateOrder = errors.New("duplicate order id")
)

// InvariantError 订单簿内部结构损坏，不是用户错误
type InvariantError struct {
	Op     string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("matching: invariant violation in %s: %s", e.Op, e.Detail)
}

// 结构损坏继续跑只会把数据弄得更乱，直接 panic
func invariant(op, format string, args ...any) {
	panic(&InvariantError{Op: op, Detail: fmt.Sprintf(format, args...)})
}
