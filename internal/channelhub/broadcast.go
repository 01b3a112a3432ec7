package channelhub

// Broadcast operations fan an action out over every connected client of a
// Channel (spec §4.6).

// Receive fans Receive out over every connected client.
func (c *Channel) Receive() {
	for _, cc := range c.snapshot() {
		if err := cc.Receive(); err != nil {
			c.log.Debug().Err(err).Msg("channelhub: receive")
		}
	}
}

// Send fans Send out over every connected client.
func (c *Channel) Send() {
	for _, cc := range c.snapshot() {
		if err := cc.Send(); err != nil {
			c.log.Debug().Err(err).Msg("channelhub: send")
		}
	}
}

// Push fans Push out over every connected client.
func (c *Channel) Push() {
	for _, cc := range c.snapshot() {
		cc.Push()
	}
}

// InitOutgoingWindow fans InitOutgoingWindow(size) out over every connected
// client.
func (c *Channel) InitOutgoingWindow(size int) {
	for _, cc := range c.snapshot() {
		cc.InitOutgoingWindow(size)
	}
}

// PipesAddType synthesizes a BareItem of itemType for every connected
// client and enqueues it, returning the count enqueued (spec §4.6,
// §8 scenario 6).
func (c *Channel) PipesAddType(itemType int) int {
	n := 0
	for _, cc := range c.snapshot() {
		cc.Enqueue(&BareItem{ItemType: itemType})
		n++
	}
	return n
}

// PipesAddEmptyMsg is PipesAddType's EmptyMsgItem counterpart.
func (c *Channel) PipesAddEmptyMsg(msgType int) int {
	n := 0
	for _, cc := range c.snapshot() {
		cc.Enqueue(&EmptyMsgItem{MsgType: msgType})
		n++
	}
	return n
}

// EnqueuePosition selects where PipesNewAdd inserts a newly created item.
type EnqueuePosition int

const (
	EnqueueTail EnqueuePosition = iota
	EnqueueHead
)

// PipesNewAdd invokes creator(rcc, data, index) once per connected client,
// index starting at 0 and incrementing on every call (even when creator
// returns nil, per spec §4.6), enqueueing every non-nil result at pos and
// optionally Push-ing that client afterwards. Returns the number of
// non-nil items enqueued.
func (c *Channel) PipesNewAdd(creator func(cc *ChannelClient, data interface{}, index int) PipeItem, data interface{}, pos EnqueuePosition, push bool) int {
	n := 0
	index := 0
	for _, cc := range c.snapshot() {
		item := creator(cc, data, index)
		index++
		if item == nil {
			continue
		}
		if pos == EnqueueHead {
			cc.EnqueueHead(item)
		} else {
			cc.Enqueue(item)
		}
		n++
		if push {
			cc.Push()
		}
	}
	return n
}

// MaxPipeSize is the largest per-client outgoing queue depth, 0 with no
// clients.
func (c *Channel) MaxPipeSize() int {
	max := 0
	for _, cc := range c.clients {
		if n := cc.PipeSize(); n > max {
			max = n
		}
	}
	return max
}

// MinPipeSize is the smallest per-client outgoing queue depth, 0 with no
// clients (spec §4.6); otherwise the minimum starts from the first client's
// depth.
func (c *Channel) MinPipeSize() int {
	if len(c.clients) == 0 {
		return 0
	}
	min := c.clients[0].PipeSize()
	for _, cc := range c.clients[1:] {
		if n := cc.PipeSize(); n < min {
			min = n
		}
	}
	return min
}

// SumPipesSize is the sum of every connected client's outgoing queue depth.
func (c *Channel) SumPipesSize() int {
	sum := 0
	for _, cc := range c.clients {
		sum += cc.PipeSize()
	}
	return sum
}

// FirstSocket is the transport file descriptor of the first-listed client,
// -1 when there are no clients (spec §4.6).
func (c *Channel) FirstSocket() int {
	if len(c.clients) == 0 {
		return -1
	}
	return c.clients[0].Socket()
}

// AllBlocked is the logical AND of IsBlocked across clients (vacuously true
// with no clients).
func (c *Channel) AllBlocked() bool {
	for _, cc := range c.clients {
		if !cc.IsBlocked() {
			return false
		}
	}
	return true
}

// AnyBlocked is the logical OR of IsBlocked across clients.
func (c *Channel) AnyBlocked() bool {
	for _, cc := range c.clients {
		if cc.IsBlocked() {
			return true
		}
	}
	return false
}

// NoItemBeingSent is the logical AND of NoItemBeingSent across clients
// (vacuously true with no clients).
func (c *Channel) NoItemBeingSent() bool {
	for _, cc := range c.clients {
		if !cc.NoItemBeingSent() {
			return false
		}
	}
	return true
}
