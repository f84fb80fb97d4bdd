package matching

// 订单都放在 arena 里，用 int32 句柄互相引用（prev/next），
// 避免指针环，撤单时 O(1) 摘链
const nilSlot int32 = -1

type orderSlot struct {
	order Order
	prev  int32
	next  int32
	used  bool
}

type arena struct {
	slots []orderSlot
	free  []int32 // 回收的句柄，下次优先复用
}

func newArena(capacity int) arena {
	return arena{slots: make([]orderSlot, 0, capacity)}
}

func (a *arena) alloc(o Order) int32 {
	var h int32
	if n := len(a.free); n > 0 {
		h = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		a.slots = append(a.slots, orderSlot{})
		h = int32(len(a.slots) - 1)
	}
	a.slots[h] = orderSlot{order: o, prev: nilSlot, next: nilSlot, used: true}
	return h
}

func (a *arena) release(h int32) {
	s := a.at(h)
	*s = orderSlot{prev: nilSlot, next: nilSlot}
	a.free = append(a.free, h)
}

func (a *arena) at(h int32) *orderSlot {
	if h < 0 || int(h) >= len(a.slots) {
		invariant("arena.at", "slot handle %d out of range [0,%d)", h, len(a.slots))
	}
	s := &a.slots[h]
	if !s.used {
		invariant("arena.at", "slot handle %d is not in use", h)
	}
	return s
}

// priceLevel 同一价格的所有挂单，按到达顺序排队
type priceLevel struct {
	price  int64 // 价格
	volume int64 // 总挂单量 == 所有订单剩余数量之和
	count  int   // 订单数
	head   int32 // 最早的订单
	tail   int32 // 最新的订单
}

func newPriceLevel(price int64) *priceLevel {
	return &priceLevel{price: price, head: nilSlot, tail: nilSlot}
}

// pushBack 新订单追加到队尾 => 天然满足 FIFO
func (l *priceLevel) pushBack(a *arena, h int32) {
	n := a.at(h)
	n.prev, n.next = l.tail, nilSlot
	if l.tail != nilSlot {
		a.at(l.tail).next = h
	} else {
		l.head = h
	}
	l.tail = h
	l.count++
	l.volume += n.order.Qty
}

// remove 摘链，同时扣掉该订单剩余的量
func (l *priceLevel) remove(a *arena, h int32) {
	n := a.at(h)
	if n.prev != nilSlot {
		a.at(n.prev).next = n.next
	} else {
		if l.head != h {
			invariant("priceLevel.remove", "slot %d has no prev but head is %d", h, l.head)
		}
		l.head = n.next
	}
	if n.next != nilSlot {
		a.at(n.next).prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev, n.next = nilSlot, nilSlot
	l.count--
	l.volume -= n.order.Qty
}

// fill 部分成交，订单留在原位
func (l *priceLevel) fill(n *orderSlot, qty int64) {
	n.order.Qty -= qty
	l.volume -= qty
}

func (l *priceLevel) empty() bool {
	return l.count == 0
}
