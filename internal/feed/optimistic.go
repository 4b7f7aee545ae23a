package feed

import "context"

// Snapshotter is state that can be captured and rolled back.
type Snapshotter[S any] interface {
	Snapshot() S
	Restore(S)
}

// Optimistic applies a local mutation immediately, then performs call. If
// call fails the target is restored to its state before apply and the error
// is returned.
func Optimistic[S any](ctx context.Context, target Snapshotter[S], apply func(), call func(context.Context) error) error {
	snap := target.Snapshot()
	apply()
	if err := call(ctx); err != nil {
		target.Restore(snap)
		return err
	}
	return nil
}
