// Package retry runs an operation with exponential backoff and jitter.
//
// Key sources use it to ride out a backend that is briefly unreachable:
//
//	err := retry.Do(ctx, &retry.Config{MaxRetries: 3}, func(ctx context.Context) error {
//	    return src.Load(ctx)
//	}, retry.WithRetryIf(isTransient))
package retry
