package conc

import (
	"runtime"

	ants "github.com/panjf2000/ants/v2"

	"github.com/lk2023060901/simsave/pkg/util/merr"
)

// Pool 是基于 ants 的泛型协程池，任务结果通过 Future 返回。
type Pool[T any] struct {
	inner *ants.Pool
	opt   *poolOption
}

// NewPool 创建容量为 cap 的协程池。
func NewPool[T any](cap int, opts ...PoolOption) *Pool[T] {
	opt := defaultPoolOption()
	for _, o := range opts {
		o(opt)
	}
	pool, err := ants.NewPool(cap, opt.antsOptions()...)
	if err != nil {
		panic(err)
	}
	return &Pool[T]{inner: pool, opt: opt}
}

// NewDefaultPool 创建容量为 GOMAXPROCS 的协程池。
func NewDefaultPool[T any]() *Pool[T] {
	return NewPool[T](runtime.GOMAXPROCS(0))
}

// Submit 提交一个任务。池已关闭或非阻塞模式下池已满时，返回的 Future 立即带错完成。
func (pool *Pool[T]) Submit(method func() (T, error)) *Future[T] {
	future := newFuture[T]()
	err := pool.inner.Submit(func() {
		defer close(future.ch)
		defer func() {
			if x := recover(); x != nil {
				future.err = merr.WrapErrParameterInvalidMsg("task panicked: %v", x)
				if !pool.opt.concealPanic {
					panic(x)
				}
			}
		}()
		future.value, future.err = method()
	})
	if err != nil {
		future.err = err
		close(future.ch)
	}
	return future
}

func (pool *Pool[T]) Cap() int {
	return pool.inner.Cap()
}

func (pool *Pool[T]) Running() int {
	return pool.inner.Running()
}

// Release 关闭协程池，已提交的任务会继续执行完毕。
func (pool *Pool[T]) Release() {
	pool.inner.Release()
}
