// Package task is the scheduling side of the splicing engine: a Task is owned
// by exactly one goroutine, watches a set of non-blocking descriptors and parks
// that goroutine until one of them becomes ready.
package task

import (
	"context"
	"runtime"
	"time"
)

const DefaultWaitTimeout = time.Second

// YieldType tells the scheduler why the caller gives up control.
type YieldType int

const (
	// Yield asks to be resumed as soon as possible, without waiting for I/O.
	Yield YieldType = iota
	// WaitIO asks to be resumed once a watched descriptor becomes ready.
	WaitIO
)

func (yt YieldType) String() string {
	switch yt {
	case Yield:
		return "yield"
	case WaitIO:
		return "waitio"
	default:
		return "unknown"
	}
}

// Event is a readiness condition a descriptor is watched for.
type Event uint8

const (
	EventRead Event = 1 << iota
	EventWrite
)

// Yielder is a cancellation-aware replacement for Task.Yield. Returning true
// asks the caller to stop whatever it is retrying.
type Yielder func(yt YieldType) (stop bool)

// Yield surrenders control. Yield resumes after runtime.Gosched, WaitIO
// resumes when a watched descriptor is ready, the wait timeout elapses or Wake
// is called. A nil Task busy-yields for both reasons.
func (t *Task) Yield(yt YieldType) {
	if t == nil || yt != WaitIO {
		runtime.Gosched()
		return
	}
	if !t.wait() {
		runtime.Gosched()
	}
}

// ContextYielder returns a Yielder that delegates to t until ctx is done and
// then reports stop. Cancelling ctx wakes a parked t. The returned stop func
// must be called before t is closed.
func ContextYielder(ctx context.Context, t *Task) (Yielder, func() bool) {
	stop := func() bool { return false }
	if t != nil && ctx.Done() != nil {
		stop = context.AfterFunc(ctx, t.Wake)
	}
	return func(yt YieldType) bool {
		if ctx.Err() != nil {
			return true
		}
		t.Yield(yt)
		return ctx.Err() != nil
	}, stop
}

func timeoutMillis(d time.Duration) int {
	if d <= 0 {
		d = DefaultWaitTimeout
	}
	ms := d.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return int(ms)
}
