package matching

// priceHeap 价格堆：asks 用最小堆，bids 用最大堆（desc=true）
type priceHeap struct {
	prices []int64
	desc   bool
}

func (m priceHeap) Len() int {
	return len(m.prices)
}

func (m priceHeap) Less(i, j int) bool {
	if m.desc {
		return m.prices[i] > m.prices[j]
	}
	return m.prices[i] < m.prices[j]
}

func (m priceHeap) Swap(i, j int) {
	m.prices[i], m.prices[j] = m.prices[j], m.prices[i]
}

func (m *priceHeap) Push(x any) {
	m.prices = append(m.prices, x.(int64))
}

func (m *priceHeap) Pop() any {
	old := m.prices
	n := len(old)
	x := old[n-1]
	m.prices = old[:n-1]
	return x
}

func (m priceHeap) top() int64 { return m.prices[0] }
