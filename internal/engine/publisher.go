package engine

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"jasdaq.com/pkg/logger"
	"jasdaq.com/pkg/wal"
)

// OutboxPublisher tail 一个 symbol 的 journal，把事件阻塞发布到总线
// cursor 只在命令边界（EvCmdEnd）推进并落盘：重启后最多重复发布半条命令的事件（at-least-once）
type OutboxPublisher struct {
	ctx        context.Context
	bus        *ChanBus
	evPath     string
	cursorPath string
	notify     <-chan struct{}
	codec      EvCodec
	poll       time.Duration
}

func NewOutboxPublisher(ctx context.Context, bus *ChanBus, evPath, cursorPath string, notify <-chan struct{}, poll time.Duration, codec EvCodec) *OutboxPublisher {
	if poll <= 0 {
		poll = 50 * time.Millisecond
	}
	return &OutboxPublisher{
		ctx:        ctx,
		bus:        bus,
		evPath:     evPath,
		cursorPath: cursorPath,
		notify:     notify,
		poll:       poll,
		codec:      codec,
	}
}

func (p *OutboxPublisher) Run() {
	committed := loadCursor(p.cursorPath)
	// journal 被修复/截断过，cursor 可能越界
	if st, err := os.Stat(p.evPath); err == nil && committed > st.Size() {
		committed = st.Size()
		if err := storeCursor(p.cursorPath, committed); err != nil {
			logger.Error(p.ctx, "store cursor failed", zap.String("path", p.cursorPath), zap.Error(err))
			return
		}
	}

	pos := committed // 已经读到的位置，可能在命令中间
	for p.ctx.Err() == nil {
		r, err := wal.OpenReader(p.evPath, pos, wal.ReaderOptions{AllowTruncatedTail: true})
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				logger.Warn(p.ctx, "open journal failed", zap.String("path", p.evPath), zap.Error(err))
			}
			p.wait()
			continue
		}
		err = p.drain(r, &pos, &committed)
		_ = r.Close()
		if err != nil {
			if p.ctx.Err() != nil {
				return
			}
			logger.Warn(p.ctx, "publish from journal failed, rewind to cursor",
				zap.String("path", p.evPath), zap.Int64("cursor", committed), zap.Error(err))
			pos = committed
		}
		p.wait()
	}
}

// drain 读到 EOF 为止
func (p *OutboxPublisher) drain(r *wal.Reader, pos, committed *int64) error {
	for {
		payload, next, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		ev, err := p.codec.Decode(payload)
		if err != nil {
			return err
		}
		if ev.Type == EvCmdEnd {
			if err := storeCursor(p.cursorPath, next); err != nil {
				return err
			}
			*committed = next
			*pos = next
			continue
		}
		// 不在撮合线程里，允许阻塞
		if err := p.bus.Publish(p.ctx, ev); err != nil {
			return err
		}
		*pos = next
	}
}

func (p *OutboxPublisher) wait() {
	t := time.NewTimer(p.poll)
	defer t.Stop()
	select {
	case <-p.ctx.Done():
	case <-p.notify:
	case <-t.C:
	}
}
