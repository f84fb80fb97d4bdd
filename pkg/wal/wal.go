package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
)

// 记录格式：len(4, LE) | crc32(4, LE) | payload
const (
	headerSize      = 8
	defaultFilePerm = 0o644
	defaultBufSize  = 1 << 20 // 1M
)

// DefaultMaxPayload 防止坏数据把内存吃爆
const DefaultMaxPayload = 4 << 20

var (
	ErrCorruptHeader    = errors.New("wal: corrupt header")
	ErrCorruptPayload   = errors.New("wal: corrupt payload")
	ErrChecksumMismatch = errors.New("wal: checksum mismatch")
	ErrPayloadTooLarge  = errors.New("wal: payload too large")
	ErrClosed           = errors.New("wal: writer closed")
)

// Writer 只追加写；Append 进 bufio，Flush 才落盘
type Writer struct {
	f      *os.File
	bw     *bufio.Writer
	off    int64 // 逻辑偏移，包含还没 flush 的数据
	closed bool
}

func OpenWrite(path string, bufSize int) (*Writer, error) {
	if bufSize <= 0 {
		bufSize = defaultBufSize
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, defaultFilePerm)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Writer{f: f, bw: bufio.NewWriterSize(f, bufSize), off: st.Size()}, nil
}

func (w *Writer) Append(payload []byte) error {
	if w.closed {
		return ErrClosed
	}
	if len(payload) > DefaultMaxPayload {
		return ErrPayloadTooLarge
	}
	var hdr [headerSize]byte
	binary.LittleEndian.PutUint32(hdr[:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(hdr[4:], crc32.ChecksumIEEE(payload))
	if _, err := w.bw.Write(hdr[:]); err != nil {
		return fmt.Errorf("wal: write header: %w", err)
	}
	if _, err := w.bw.Write(payload); err != nil {
		return fmt.Errorf("wal: write payload: %w", err)
	}
	w.off += int64(headerSize + len(payload))
	return nil
}

// Offset 下一条记录的起始偏移
func (w *Writer) Offset() int64 { return w.off }

// Flush bufio -> 内核 -> fsync
func (w *Writer) Flush() error {
	if w.closed {
		return ErrClosed
	}
	if err := w.bw.Flush(); err != nil {
		return err
	}
	return w.f.Sync()
}

func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.bw.Flush(); err != nil {
		_ = w.f.Close()
		return err
	}
	if err := w.f.Sync(); err != nil {
		_ = w.f.Close()
		return err
	}
	return w.f.Close()
}

type ReplayOptions struct {
	MaxPayload int // <=0 用 DefaultMaxPayload
	// 最后一条记录半写（崩溃）时当作正常结束
	AllowTruncatedTail bool
}

type ReplayStats struct {
	Records        int
	LastGoodOffset int64
	TruncatedTail  bool
}

// Replay 从头顺序读完整个文件；文件不存在不是错误
func Replay(path string, opts ReplayOptions, onRecord func(payload []byte) error) (ReplayStats, error) {
	var st ReplayStats
	r, err := OpenReader(path, 0, ReaderOptions{
		MaxPayload:         opts.MaxPayload,
		AllowTruncatedTail: opts.AllowTruncatedTail,
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return st, nil
		}
		return st, err
	}
	defer r.Close()

	for {
		payload, next, err := r.Next()
		if err != nil {
			st.TruncatedTail = r.TruncatedTail()
			if errors.Is(err, io.EOF) {
				return st, nil
			}
			return st, err
		}
		st.Records++
		st.LastGoodOffset = next
		if err := onRecord(payload); err != nil {
			return st, err
		}
	}
}

// TruncateTo 把文件截断到 offset，用于修复半写的尾部
// 文件不存在或 offset 超过文件大小都是 no-op
func TruncateTo(path string, offset int64) error {
	if offset < 0 {
		return fmt.Errorf("wal: negative truncate offset %d", offset)
	}
	st, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if offset >= st.Size() {
		return nil
	}
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Truncate(offset); err != nil {
		return err
	}
	_ = f.Sync()
	return nil
}
