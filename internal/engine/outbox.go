package engine

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"

	"jasdaq.com/pkg/wal"
)

// Outbox actor 写事件的地方
// 每条命令的事件后面跟一个 AppendCmdEnd，每个 batch Flush 一次
type Outbox interface {
	Append(ev Event) error
	AppendCmdEnd(seq uint64) error
	Flush() error
	Close() error
}

// busOutbox 没开 journal：事件直接非阻塞投递到总线
type busOutbox struct{ bus *ChanBus }

func (o busOutbox) Append(ev Event) error   { o.bus.TryPublish(ev); return nil }
func (busOutbox) AppendCmdEnd(uint64) error { return nil }
func (busOutbox) Flush() error              { return nil }
func (busOutbox) Close() error              { return nil }

// EventOutbox 开了 journal：事件先落到 <sym>.ev.wal，再由 OutboxPublisher 发布
type EventOutbox struct {
	path  string
	w     *wal.Writer
	codec EvCodec
	buf   []byte
}

func OpenEventOutbox(path string, bufSize int, codec EvCodec) (*EventOutbox, error) {
	if codec == nil {
		codec = BinaryEvCodec{}
	}
	w, err := wal.OpenWrite(path, bufSize)
	if err != nil {
		return nil, err
	}
	return &EventOutbox{path: path, w: w, codec: codec, buf: make([]byte, 0, 256)}, nil
}

func (o *EventOutbox) Append(ev Event) error {
	payload, err := o.codec.Encode(o.buf[:0], ev)
	if err != nil {
		return err
	}
	// 复用 buffer：wal.Writer 写进 bufio 时已经拷贝过
	o.buf = payload[:0]
	return o.w.Append(payload)
}

func (o *EventOutbox) AppendCmdEnd(seq uint64) error {
	return o.Append(Event{Type: EvCmdEnd, Seq: seq})
}

func (o *EventOutbox) Flush() error { return o.w.Flush() }
func (o *EventOutbox) Close() error { return o.w.Close() }

// ScanAndRepairOutbox 启动时扫一遍 journal：
//  1. 尾部半写的记录截掉
//  2. 最后一个 CmdEnd 之后的残留事件截掉（命令边界一致性）
//
// 返回最后一个完整命令的 seq
func ScanAndRepairOutbox(path string, codec EvCodec) (lastCompleteSeq uint64, lastCompleteOffset int64, err error) {
	r, err := wal.OpenReader(path, 0, wal.ReaderOptions{AllowTruncatedTail: true})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, 0, nil
		}
		return 0, 0, err
	}
	defer r.Close()

	for {
		p, nextOff, e := r.Next()
		if e != nil {
			if errors.Is(e, io.EOF) {
				break
			}
			return 0, 0, e
		}
		ev, e := codec.Decode(p)
		if e != nil {
			return 0, 0, e
		}
		if ev.Type == EvCmdEnd {
			lastCompleteSeq = ev.Seq
			lastCompleteOffset = nextOff
		}
	}

	if err := wal.TruncateTo(path, lastCompleteOffset); err != nil {
		return 0, 0, err
	}
	return lastCompleteSeq, lastCompleteOffset, nil
}

// ReadJournal 读出 journal 里所有已发布的事件（跳过 CmdEnd），离线排查用
func ReadJournal(path string, codec EvCodec) ([]Event, error) {
	var out []Event
	_, err := wal.Replay(path, wal.ReplayOptions{AllowTruncatedTail: true}, func(p []byte) error {
		ev, err := codec.Decode(p)
		if err != nil {
			return err
		}
		if ev.Type != EvCmdEnd {
			out = append(out, ev)
		}
		return nil
	})
	return out, err
}

func outboxCursorPath(dir, symbol string) string {
	return filepath.Join(dir, safeSym(symbol)+".ev.cursor")
}

func outboxWalPath(dir, symbol string) string {
	return filepath.Join(dir, safeSym(symbol)+".ev.wal")
}

// cursor 文件：8 字节 little endian offset
func loadCursor(path string) int64 {
	b, err := os.ReadFile(path)
	if err != nil || len(b) < 8 {
		return 0
	}
	return int64(binary.LittleEndian.Uint64(b[:8]))
}

// 先写 tmp 再 rename，避免半写的 cursor
func storeCursor(path string, off int64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(off))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b[:], 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func safeSym(symbol string) string {
	sb := make([]rune, 0, len(symbol))
	for _, r := range symbol {
		if (r >= '0' && r <= '9') || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || r == '_' || r == '-' {
			sb = append(sb, r)
		} else {
			sb = append(sb, '_')
		}
	}
	return string(sb)
}
