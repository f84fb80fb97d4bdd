package engine

import (
	"encoding/binary"
	"errors"
	"time"

	"jasdaq.com/internal/matching"
)

// 定长头 + 三个 uint16 长度前缀的字符串（symbol, clientID, reason）
const (
	evWalVersion = 2
	evFixedLen   = 77

	evOffVer   = 0
	evOffType  = 1  // uint8
	evOffSeq   = 2  // uint64
	evOffIdx   = 10 // uint16
	evOffReqID = 12 // uint64
	evOffOrder = 20 // uint64
	evOffSide  = 28 // uint8
	evOffPrice = 29 // int64
	evOffQty   = 37 // int64
	evOffBuy   = 45 // uint64
	evOffSell  = 53 // uint64
	evOffMaker = 61 // int64
	evOffTs    = 69 // int64

	maxStrLen = 1<<16 - 1
)

var (
	ErrBadEvRecordLen = errors.New("outbox: bad record length")
	ErrBadEvVersion   = errors.New("outbox: bad version")
	ErrEvFieldTooLong = errors.New("outbox: string field too long")
)

// BinaryEvCodec 热路径用：固定偏移的小端编码
type BinaryEvCodec struct{}

func (BinaryEvCodec) Encode(dst []byte, ev Event) ([]byte, error) {
	if len(ev.Symbol) > maxStrLen || len(ev.ClientID) > maxStrLen || len(ev.Reason) > maxStrLen {
		return nil, ErrEvFieldTooLong
	}
	n := evFixedLen + 6 + len(ev.Symbol) + len(ev.ClientID) + len(ev.Reason)
	if cap(dst) < n {
		dst = make([]byte, n)
	} else {
		dst = dst[:n]
	}

	dst[evOffVer] = evWalVersion
	dst[evOffType] = byte(ev.Type)
	binary.LittleEndian.PutUint64(dst[evOffSeq:], ev.Seq)
	binary.LittleEndian.PutUint16(dst[evOffIdx:], ev.Idx)
	binary.LittleEndian.PutUint64(dst[evOffReqID:], ev.ReqID)
	binary.LittleEndian.PutUint64(dst[evOffOrder:], ev.OrderID)
	dst[evOffSide] = byte(ev.Side)
	binary.LittleEndian.PutUint64(dst[evOffPrice:], uint64(ev.Price))
	binary.LittleEndian.PutUint64(dst[evOffQty:], uint64(ev.Qty))
	binary.LittleEndian.PutUint64(dst[evOffBuy:], ev.BuyOrderID)
	binary.LittleEndian.PutUint64(dst[evOffSell:], ev.SellOrderID)
	binary.LittleEndian.PutUint64(dst[evOffMaker:], uint64(ev.MakerRemaining))
	binary.LittleEndian.PutUint64(dst[evOffTs:], uint64(ev.Ts))

	off := evFixedLen
	for _, s := range [...]string{ev.Symbol, ev.ClientID, ev.Reason} {
		binary.LittleEndian.PutUint16(dst[off:], uint16(len(s)))
		off += 2
		off += copy(dst[off:], s)
	}
	return dst, nil
}

func (BinaryEvCodec) Decode(payload []byte) (Event, error) {
	if len(payload) < evFixedLen+6 {
		return Event{}, ErrBadEvRecordLen
	}
	if payload[evOffVer] != evWalVersion {
		return Event{}, ErrBadEvVersion
	}

	var ev Event
	ev.Type = EventType(payload[evOffType])
	ev.Seq = binary.LittleEndian.Uint64(payload[evOffSeq:])
	ev.Idx = binary.LittleEndian.Uint16(payload[evOffIdx:])
	ev.ReqID = binary.LittleEndian.Uint64(payload[evOffReqID:])
	ev.OrderID = binary.LittleEndian.Uint64(payload[evOffOrder:])
	ev.Side = matching.Side(payload[evOffSide])
	ev.Price = int64(binary.LittleEndian.Uint64(payload[evOffPrice:]))
	ev.Qty = int64(binary.LittleEndian.Uint64(payload[evOffQty:]))
	ev.BuyOrderID = binary.LittleEndian.Uint64(payload[evOffBuy:])
	ev.SellOrderID = binary.LittleEndian.Uint64(payload[evOffSell:])
	ev.MakerRemaining = int64(binary.LittleEndian.Uint64(payload[evOffMaker:]))
	ev.Ts = int64(binary.LittleEndian.Uint64(payload[evOffTs:]))

	var strs [3]string
	off := evFixedLen
	for i := range strs {
		if off+2 > len(payload) {
			return Event{}, ErrBadEvRecordLen
		}
		ln := int(binary.LittleEndian.Uint16(payload[off:]))
		off += 2
		if off+ln > len(payload) {
			return Event{}, ErrBadEvRecordLen
		}
		strs[i] = string(payload[off : off+ln])
		off += ln
	}
	if off != len(payload) {
		return Event{}, ErrBadEvRecordLen
	}
	ev.Symbol, ev.ClientID, ev.Reason = strs[0], strs[1], strs[2]
	return ev, nil
}

func unixNano(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(0, ts)
}
