package broadcast

import (
	"context"
	"strings"
)

type Message struct {
	Topic   string
	Payload []byte
}

// Broker 跨进程的发布订阅；单机用 MemBroker，多机用 NatsBroker
// topic 用 ":" 分段，订阅时 "*" 匹配一段，">" 匹配剩余所有段
type Broker interface {
	// publish
	Publish(ctx context.Context, topic string, payload []byte) error
	// 订阅，ctx 结束时关闭返回的 channel
	Subscribe(ctx context.Context, topics []string) (<-chan Message, error)
	// 关闭
	Close() error
}

// Match 判断 topic 是否命中订阅 pattern
func Match(pattern, topic string) bool {
	if pattern == topic {
		return true
	}
	ps := strings.Split(pattern, ":")
	ts := strings.Split(topic, ":")
	for i, p := range ps {
		if p == ">" {
			return len(ts) > i
		}
		if i >= len(ts) {
			return false
		}
		if p != "*" && p != ts[i] {
			return false
		}
	}
	return len(ps) == len(ts)
}
