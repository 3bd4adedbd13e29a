package notify

import (
	"context"

	"github.com/Spok95/tutoring-platform/internal/ctxutil"
)

// callGateway — SDK Twilio и Telegram не принимают ctx, поэтому ждём ответа не дольше
// дедлайна запроса (и не дольше таймаута шлюза). Сам HTTP-вызов ограничен таймаутом клиента.
func callGateway[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	ctx, cancel := ctxutil.WithGatewayTimeout(ctx)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
