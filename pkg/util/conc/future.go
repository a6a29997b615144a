package conc

// Future 表示一个异步任务的结果。
type Future[T any] struct {
	ch    chan struct{}
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{ch: make(chan struct{})}
}

// Await 阻塞直到任务完成，并返回结果与错误。
func (future *Future[T]) Await() (T, error) {
	<-future.ch
	return future.value, future.err
}

// Done 返回任务完成时关闭的通道。
func (future *Future[T]) Done() <-chan struct{} {
	return future.ch
}

// AwaitAll 依次等待所有 Future，返回各自的结果；err 为全部错误的组合。
func AwaitAll[T any](futures ...*Future[T]) ([]T, []error) {
	values := make([]T, len(futures))
	errs := make([]error, len(futures))
	for i, f := range futures {
		values[i], errs[i] = f.Await()
	}
	return values, errs
}
