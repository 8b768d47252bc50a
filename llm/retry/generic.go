package retry

import "context"

// DoWithResult 带返回值的 Do；失败时返回零值
func DoWithResult[T any](ctx context.Context, r Retryer, fn func() (T, error)) (T, error) {
	var (
		out  T
		zero T
	)
	if err := r.Do(ctx, func() (err error) {
		out, err = fn()
		return err
	}); err != nil {
		return zero, err
	}
	return out, nil
}
