package main

import "sync/atomic"

// latestOnlyChannel is a single-slot overwrite mailbox: the writer never blocks, and a newer sample
// replaces any older undelivered sample. A dedicated forwarder drains the
// slot and emits envelopes; drops under backpressure are expected and
// counted, never queued.
type latestOnlyChannel struct {
	slot    atomic.Pointer[Envelope]
	notify  chan struct{}
	dropped atomic.Uint64
}

func newLatestOnlyChannel() *latestOnlyChannel {
	return &latestOnlyChannel{notify: make(chan struct{}, 1)}
}

// put overwrites the slot with env and wakes the forwarder. Never blocks.
func (c *latestOnlyChannel) put(env *Envelope) {
	c.slot.Store(env)
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// take returns the currently-held envelope (if any) and clears the slot.
// A nil return means nothing is pending.
func (c *latestOnlyChannel) take() *Envelope {
	return c.slot.Swap(nil)
}

// wait blocks until put has been called since the last wait returned, or
// done fires. take does not clear the pending wakeup, so spurious wakeups
// are possible and harmless: callers re-check take().
func (c *latestOnlyChannel) wait(done <-chan struct{}) {
	select {
	case <-c.notify:
	case <-done:
	}
}

// recordDrop increments the drop counter.
func (c *latestOnlyChannel) recordDrop() {
	c.dropped.Add(1)
}

func (c *latestOnlyChannel) droppedCount() uint64 {
	return c.dropped.Load()
}
