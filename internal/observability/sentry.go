package observability

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

func InitSentry(dsn, env, release string) (func(), error) {
	if dsn == "" {
		return func() {}, nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: env,
		Release:     release,
	}); err != nil {
		return func() {}, err
	}
	return func() { sentry.Flush(2 * time.Second) }, nil
}

func CaptureErr(err error) {
	if err != nil {
		sentry.CaptureException(err)
	}
}

// CaptureErrWith — то же, но с тегами (op, slot_id, reservation_id ...), чтобы группировать в Sentry.
func CaptureErrWith(err error, tags map[string]string) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		sentry.CaptureException(err)
	})
}

// RecoverTo — для defer в фоновых горутинах: паника превращается в ошибку Sentry.
func RecoverTo(op string) {
	if r := recover(); r != nil {
		CaptureErrWith(fmt.Errorf("panic in %s: %v", op, r), map[string]string{"op": op})
	}
}
