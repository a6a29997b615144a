// Package bufpool 复用对象流编码缓冲区。
// 池会按近期归还的缓冲区大小自动调整新建容量与可回收上限，避免偶发的大存档长期占用内存。
package bufpool

import (
	"bytes"
	"math/bits"
	"sort"
	"sync"
	"sync/atomic"
)

const (
	minBitSize = 10 // 1 KiB
	steps      = 20

	minSize = 1 << minBitSize

	calibrateCallsThreshold = 4096
	maxPercentile           = 0.95
)

// Pool 是 *bytes.Buffer 的对象池，零值可用。
type Pool struct {
	calls       [steps]uint64
	calibrating uint64

	defaultSize uint64
	maxSize     uint64

	pool sync.Pool
}

var builtinPool Pool

func Get() *bytes.Buffer { return builtinPool.Get() }

func Put(b *bytes.Buffer) { builtinPool.Put(b) }

// Get 返回一个长度为 0 的缓冲区。
func (p *Pool) Get() *bytes.Buffer {
	if v := p.pool.Get(); v != nil {
		return v.(*bytes.Buffer)
	}
	return bytes.NewBuffer(make([]byte, 0, atomic.LoadUint64(&p.defaultSize)))
}

// Put 归还缓冲区，之后不得再访问 b 或其 Bytes() 的结果。
func (p *Pool) Put(b *bytes.Buffer) {
	if atomic.AddUint64(&p.calls[index(b.Len())], 1) > calibrateCallsThreshold {
		p.calibrate()
	}

	maxSize := int(atomic.LoadUint64(&p.maxSize))
	if maxSize == 0 || b.Cap() <= maxSize {
		b.Reset()
		p.pool.Put(b)
	}
}

// calibrate 取最常见的大小档作为新建容量，覆盖 95% 调用的最大档作为回收上限。
func (p *Pool) calibrate() {
	if !atomic.CompareAndSwapUint64(&p.calibrating, 0, 1) {
		return
	}
	defer atomic.StoreUint64(&p.calibrating, 0)

	buckets := make([]bucket, 0, steps)
	var total uint64
	for i := uint64(0); i < steps; i++ {
		calls := atomic.SwapUint64(&p.calls[i], 0)
		total += calls
		buckets = append(buckets, bucket{calls: calls, size: minSize << i})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].calls > buckets[j].calls })

	defaultSize := buckets[0].size
	maxSize := defaultSize
	limit := uint64(float64(total) * maxPercentile)
	var seen uint64
	for _, b := range buckets {
		if seen > limit {
			break
		}
		seen += b.calls
		maxSize = max(maxSize, b.size)
	}

	atomic.StoreUint64(&p.defaultSize, defaultSize)
	atomic.StoreUint64(&p.maxSize, maxSize)
}

type bucket struct {
	calls uint64
	size  uint64
}

func index(n int) int {
	n--
	n >>= minBitSize
	idx := 0
	if n > 0 {
		idx = bits.Len(uint(n))
	}
	return min(idx, steps-1)
}
