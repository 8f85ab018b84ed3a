package peripheral

import "time"

// WithTimeout runs op and returns its result, or ErrTimeout if op has
// not returned within d. op is expected to be cooperative (it should
// itself observe cancellation where practical); WithTimeout does not
// kill the goroutine running op, it only stops waiting for it, mirroring
// driver/mjolnir's write-mutex hand-off: a caller that times out must
// never assume the peripheral op's side effects didn't happen.
func WithTimeout[T any](d time.Duration, op func() (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := op()
		ch <- result{v, err}
	}()
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case r := <-ch:
		return r.val, r.err
	case <-t.C:
		var zero T
		return zero, NewError("with_timeout", KindTimeout, nil)
	}
}

// WithTimeoutErr is WithTimeout for operations with no return value.
func WithTimeoutErr(d time.Duration, op func() error) error {
	_, err := WithTimeout(d, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}
