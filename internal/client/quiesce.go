package client

import "time"

// Unbounded disables the deadline in WaitAllSent.
const Unbounded time.Duration = -1

// quiesceInterval is the fixed small sleep between drain attempts (spec
// §4.8 "sleep a fixed small interval").
const quiesceInterval = 2 * time.Millisecond

// WaitAllSent drains every channel-client's outgoing pipe, retrying on a
// fixed interval until either everything is flushed or timeout elapses
// (Unbounded for no deadline). Returns true iff drained before the deadline
// (spec §4.8).
func (c *Client) WaitAllSent(timeout time.Duration) bool {
	var deadline time.Time
	hasDeadline := timeout >= 0
	if hasDeadline {
		deadline = time.Now().Add(timeout)
	}

	c.pushAll()
	for c.anyPending() {
		if hasDeadline && !time.Now().Before(deadline) {
			return false
		}
		time.Sleep(quiesceInterval)
		c.receiveAll()
		c.sendAll()
		c.pushAll()
	}
	return true
}

func (c *Client) snapshotChannels() []channelClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]channelClient, len(c.channels))
	for i, rcc := range c.channels {
		out[i] = rcc
	}
	return out
}

// channelClient is the subset of *channelhub.ChannelClient the quiesce loop
// needs, kept as a small interface to stay decoupled from the concrete
// type's full surface.
type channelClient interface {
	Receive() error
	Send() error
	Push()
	PipeSize() int
	IsBlocked() bool
}

func (c *Client) pushAll() {
	for _, rcc := range c.snapshotChannels() {
		rcc.Push()
	}
}

func (c *Client) receiveAll() {
	for _, rcc := range c.snapshotChannels() {
		_ = rcc.Receive()
	}
}

func (c *Client) sendAll() {
	for _, rcc := range c.snapshotChannels() {
		_ = rcc.Send()
	}
}

func (c *Client) anyPending() bool {
	for _, rcc := range c.snapshotChannels() {
		if rcc.PipeSize() > 0 || rcc.IsBlocked() {
			return true
		}
	}
	return false
}
