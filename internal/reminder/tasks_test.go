package reminder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTaskSchedulerFiresWhenDue(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	ts := NewTaskScheduler(nil)
	ts.SetClock(func() time.Time { return now })

	var fired int
	ts.Add("check", time.Hour, 6*time.Hour, func(ctx context.Context) { fired++ })

	ctx := context.Background()

	ts.Tick(ctx)
	assert.Equal(t, 0, fired, "task fired before its delay")

	now = now.Add(time.Hour)
	ts.Tick(ctx)
	assert.Equal(t, 1, fired)

	// Within the interval nothing re-fires.
	now = now.Add(time.Hour)
	ts.Tick(ctx)
	assert.Equal(t, 1, fired)

	now = now.Add(5 * time.Hour)
	ts.Tick(ctx)
	assert.Equal(t, 2, fired)
}

func TestTaskSchedulerRemove(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	ts := NewTaskScheduler(nil)
	ts.SetClock(func() time.Time { return now })

	var fired int
	ts.Add("doomed", 0, time.Hour, func(ctx context.Context) { fired++ })
	ts.Remove("doomed")

	now = now.Add(2 * time.Hour)
	ts.Tick(context.Background())
	assert.Equal(t, 0, fired)
}

func TestTaskSchedulerReplaceByName(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	ts := NewTaskScheduler(nil)
	ts.SetClock(func() time.Time { return now })

	var first, second int
	ts.Add("job", 0, time.Hour, func(ctx context.Context) { first++ })
	ts.Add("job", 0, time.Hour, func(ctx context.Context) { second++ })

	now = now.Add(time.Minute)
	ts.Tick(context.Background())
	assert.Equal(t, 0, first, "replaced task must not run")
	assert.Equal(t, 1, second)
}

func TestTaskSchedulerDeterministicOrder(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	ts := NewTaskScheduler(nil)
	ts.SetClock(func() time.Time { return now })

	var order []string
	ts.Add("b", 0, time.Hour, func(ctx context.Context) { order = append(order, "b") })
	ts.Add("a", 0, time.Hour, func(ctx context.Context) { order = append(order, "a") })
	ts.Add("c", 0, time.Hour, func(ctx context.Context) { order = append(order, "c") })

	now = now.Add(time.Minute)
	ts.Tick(context.Background())
	assert.Equal(t, []string{"a", "b", "c"}, order)
}
