package safe

import (
	"context"
	"runtime/debug"

	"go.uber.org/zap"
	"jasdaq.com/pkg/logger"
)

// Go 启动协程，panic 会被记录而不是打挂进程
// 撮合 actor 不走这里：订单簿结构损坏必须让进程退出
func Go(fn func()) {
	GoCtx(context.Background(), func(context.Context) { fn() })
}

// GoCtx 带 context 启动，日志里保留链路信息
func GoCtx(ctx context.Context, fn func(ctx context.Context)) {
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error(ctx, "goroutine panic recovered",
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()),
				)
			}
		}()
		fn(ctx)
	}()
}
