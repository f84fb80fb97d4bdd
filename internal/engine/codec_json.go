package engine

import "github.com/segmentio/encoding/json"

type evJSON struct {
	V  uint8 `json:"v"`
	Ev Event `json:"ev"`
}

// JSONEvCodec 可读性优先，排查问题时用；每条记录一行 JSON
type JSONEvCodec struct{ Version uint8 }

func (c JSONEvCodec) Encode(dst []byte, ev Event) ([]byte, error) {
	b, err := json.Marshal(evJSON{V: c.Version, Ev: ev})
	if err != nil {
		return nil, err
	}
	return append(dst, b...), nil
}

func (c JSONEvCodec) Decode(payload []byte) (Event, error) {
	var rec evJSON
	if err := json.Unmarshal(payload, &rec); err != nil {
		return Event{}, err
	}
	return rec.Ev, nil
}

// CodecByName 配置里的 engine.journal.codec
func CodecByName(name string) EvCodec {
	if name == "json" {
		return JSONEvCodec{Version: 1}
	}
	return BinaryEvCodec{}
}
