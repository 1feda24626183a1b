package clock

import (
	"time"

	"go.uber.org/fx"
)

var Module = fx.Module("clock",
	fx.Provide(func() Clock { return SystemClock{} }),
)

// Clock abstracts wall time so billing periods can be pinned in tests.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// PeriodKey returns the monthly billing period key (YYYY-MM, UTC) containing t.
func PeriodKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}
