package bufpool

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIndex(t *testing.T) {
	assert.Equal(t, 0, index(0))
	assert.Equal(t, 0, index(minSize))
	assert.Equal(t, 1, index(minSize+1))
	assert.Equal(t, 1, index(2*minSize))
	assert.Equal(t, 2, index(2*minSize+1))
	assert.Equal(t, steps-1, index(1<<40))
}

func TestGetPut(t *testing.T) {
	var p Pool
	b := p.Get()
	assert.Zero(t, b.Len())
	b.WriteString("hello")
	p.Put(b)

	b = p.Get()
	assert.Zero(t, b.Len())
	p.Put(b)

	g := Get()
	g.WriteString("x")
	Put(g)
}

func TestCalibrate(t *testing.T) {
	var p Pool
	small := bytes.Repeat([]byte("a"), minSize/2)
	for i := 0; i < calibrateCallsThreshold+1; i++ {
		b := p.Get()
		b.Write(small)
		p.Put(b)
	}
	assert.Equal(t, uint64(minSize), p.defaultSize)
	assert.Equal(t, uint64(minSize), p.maxSize)

	// 超过上限的大缓冲区不再回收。
	big := bytes.NewBuffer(make([]byte, 0, 64*minSize))
	p.Put(big)
	assert.NotSame(t, big, p.Get())
}

func TestConcurrent(t *testing.T) {
	var p Pool
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				b := p.Get()
				b.WriteString("record")
				p.Put(b)
			}
		}()
	}
	wg.Wait()
}
