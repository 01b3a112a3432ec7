package channelhub

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/symphonicityy/spice/internal/wsframe"
)

const defaultRecvBufSize = 4096

// Stats holds atomically-updated per-ChannelClient counters, grounded on
// momentics-hioload-ws's WSConnection.GetStats() pattern (spec §4 addition;
// full statistics reporting is out of scope per spec.md §1, these exist only
// to give the demo CLI something to log). Receive updates bytesReceived and
// framesReceived and Send updates framesSent; bytesSent is never incremented,
// since SendItem reports no byte count, so BytesSent always returns 0.
type Stats struct {
	bytesSent      int64
	bytesReceived  int64
	framesSent     int64
	framesReceived int64
}

func (s *Stats) BytesSent() int64      { return atomic.LoadInt64(&s.bytesSent) }
func (s *Stats) BytesReceived() int64  { return atomic.LoadInt64(&s.bytesReceived) }
func (s *Stats) FramesSent() int64     { return atomic.LoadInt64(&s.framesSent) }
func (s *Stats) FramesReceived() int64 { return atomic.LoadInt64(&s.framesReceived) }

// ChannelClient is one remote participant's binding to one Channel: a
// transport stream, an outgoing FIFO pipe, and state bits for blocking,
// destroying, and migration readiness (spec §3).
//
// Ownership: ChannelClient → Channel is a strong reference kept until this
// ChannelClient's refcount hits zero. Channel → ChannelClient (via the
// channel's clients slice) is a non-owning membership edge.
type ChannelClient struct {
	mu sync.Mutex

	refcount int32

	channel   *Channel
	transport wsframe.Transport
	stream    *wsframe.Stream

	// owner is an opaque back-reference to the spawning Client aggregate.
	// Kept as interface{} rather than a concrete type to avoid channelhub
	// importing the client package (spec §9's cycle note, generalized to
	// this package boundary too).
	owner interface{}

	pipe []PipeItem

	blocking       bool
	destroying     bool
	migrationReady bool
	noItemSending  bool
	outgoingWindow int

	remoteCommonCaps capBitset
	remoteCaps       capBitset

	Stats Stats

	log zerolog.Logger
}

// NewChannelClient creates a ChannelClient bound to channel over transport,
// with an initial refcount of 1 held by the caller. The channel's
// ConfigSocket hook is invoked once, immediately, so it can adjust
// socket-level options before the client is registered with the channel.
func NewChannelClient(channel *Channel, transport wsframe.Transport, stream *wsframe.Stream, log zerolog.Logger) (*ChannelClient, error) {
	cc := &ChannelClient{
		refcount:      1,
		channel:       channel,
		transport:     transport,
		stream:        stream,
		noItemSending: true,
		log:           log,
	}
	if err := channel.hooks.ConfigSocket(cc); err != nil {
		return nil, errors.Wrap(err, "channelhub: config socket")
	}
	return cc, nil
}

// Ref increments the refcount, matching the source's manual refcounting
// discipline for the Channel↔ChannelClient edge (spec §9).
func (cc *ChannelClient) Ref() { atomic.AddInt32(&cc.refcount, 1) }

// Unref decrements the refcount and reports whether this was the final
// reference. spec §7's "ref-leak-at-free" is a caller-side program
// assertion: callers destroying a ChannelClient must first empty its pipe.
func (cc *ChannelClient) Unref() bool {
	return atomic.AddInt32(&cc.refcount, -1) == 0
}

// Channel returns the bound Channel.
func (cc *ChannelClient) Channel() *Channel { return cc.channel }

// Stream returns the underlying WebSocket stream, so a SendItem hook can
// write an item's serialized bytes onto the wire.
func (cc *ChannelClient) Stream() *wsframe.Stream { return cc.stream }

// Owner returns the opaque back-reference set by SetOwner.
func (cc *ChannelClient) Owner() interface{} { return cc.owner }

// SetOwner records the spawning Client aggregate; called once by
// client.Client.AddChannel.
func (cc *ChannelClient) SetOwner(owner interface{}) { cc.owner = owner }

// SetRemoteCaps records the capability bitsets the connecting client
// advertised during its own handshake, consumed by
// Channel.TestRemoteCommonCap / Channel.TestRemoteCap.
func (cc *ChannelClient) SetRemoteCaps(common, channel []int) {
	for _, bit := range common {
		cc.remoteCommonCaps.set(bit)
	}
	for _, bit := range channel {
		cc.remoteCaps.set(bit)
	}
}

func (cc *ChannelClient) hasRemoteCommonCap(bit int) bool { return cc.remoteCommonCaps.test(bit) }
func (cc *ChannelClient) hasRemoteCap(bit int) bool       { return cc.remoteCaps.test(bit) }

// IsBlocked reports whether the outgoing side is currently would-block on
// its transport.
func (cc *ChannelClient) IsBlocked() bool {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.blocking
}

// NoItemBeingSent reports whether the pipe is empty and nothing is mid-send.
func (cc *ChannelClient) NoItemBeingSent() bool {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.noItemSending
}

// PipeSize returns the current outgoing queue depth.
func (cc *ChannelClient) PipeSize() int {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return len(cc.pipe)
}

// Enqueue appends item to the tail of the outgoing pipe.
func (cc *ChannelClient) Enqueue(item PipeItem) {
	cc.mu.Lock()
	cc.pipe = append(cc.pipe, item)
	cc.noItemSending = false
	cc.mu.Unlock()
}

// EnqueueHead prepends item to the outgoing pipe, for the head-insertion
// pipes_new_add variant (spec §4.6).
func (cc *ChannelClient) EnqueueHead(item PipeItem) {
	cc.mu.Lock()
	cc.pipe = append([]PipeItem{item}, cc.pipe...)
	cc.noItemSending = false
	cc.mu.Unlock()
}

// Socket reports the underlying transport's file descriptor, for
// Channel.FirstSocket, when the transport opts into exposing one; -1
// otherwise (test fakes and in-process transports commonly don't).
func (cc *ChannelClient) Socket() int {
	type fder interface{ Fd() int }
	if f, ok := cc.transport.(fder); ok {
		return f.Fd()
	}
	return -1
}

// TryBeginMigrate attempts to transition this ChannelClient into the
// "awaiting migrate data" state, succeeding only when the channel's
// migration flags request data transfer and its hooks implement
// MigrateDataHandler (spec §4.7 add_channel/set_migration_seamless).
func (cc *ChannelClient) TryBeginMigrate() bool {
	if cc.channel == nil || cc.channel.migrationFlags&MigrateNeedsDataTransfer == 0 {
		return false
	}
	if _, ok := cc.channel.hooks.(MigrateDataHandler); !ok {
		return false
	}
	cc.mu.Lock()
	cc.migrationReady = false
	cc.mu.Unlock()
	return true
}

// MarkDestroying flips the destroying bit, asserted during Client.Destroy.
func (cc *ChannelClient) MarkDestroying() {
	cc.mu.Lock()
	cc.destroying = true
	cc.mu.Unlock()
}

// AssertQuiescent panics if the pipe is non-empty or a send is in flight —
// the "ref-leak-at-free" program assertion from spec §7, invoked just
// before a ChannelClient is torn down.
func (cc *ChannelClient) AssertQuiescent() {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if len(cc.pipe) != 0 || !cc.noItemSending {
		panic(errors.Errorf("channelhub: ChannelClient destroyed with non-empty pipe (depth=%d)", len(cc.pipe)))
	}
}

// Receive pulls one message's worth of bytes from the stream and dispatches
// it through the channel's hooks, preferring the Parser+HandleParsed path
// and falling back to HandleMessage when Parser reports no structured
// parse (spec §4.6 "receive" fan-out leaf).
func (cc *ChannelClient) Receive() error {
	if cc.stream == nil {
		return nil
	}
	buf := cc.channel.hooks.AllocRecvBuf(cc, defaultRecvBufSize)
	defer cc.channel.hooks.ReleaseRecvBuf(cc, buf)

	n, err := cc.stream.Read(buf)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	atomic.AddInt64(&cc.Stats.bytesReceived, int64(n))

	parsed, size, msgType, perr := cc.channel.hooks.Parser(cc, buf[:n])
	if perr != nil {
		return errors.Wrap(perr, "channelhub: parse incoming message")
	}
	atomic.AddInt64(&cc.Stats.framesReceived, 1)
	if parsed == nil {
		return cc.channel.hooks.HandleMessage(cc, msgType, buf[:n])
	}
	return cc.channel.hooks.HandleParsed(cc, size, msgType, parsed)
}

// Send pops and transmits the head of the outgoing pipe via the channel's
// send_item hook (spec §4.6 "send" fan-out leaf).
func (cc *ChannelClient) Send() error {
	cc.mu.Lock()
	if len(cc.pipe) == 0 {
		cc.noItemSending = true
		cc.mu.Unlock()
		return nil
	}
	item := cc.pipe[0]
	cc.mu.Unlock()

	if err := cc.channel.hooks.SendItem(cc, item); err != nil {
		if isWouldBlock(err) {
			cc.mu.Lock()
			cc.blocking = true
			cc.mu.Unlock()
			return err
		}
		cc.mu.Lock()
		cc.blocking = false
		cc.mu.Unlock()
		return errors.Wrap(err, "channelhub: send item")
	}

	cc.mu.Lock()
	cc.pipe = cc.pipe[1:]
	cc.blocking = false
	cc.noItemSending = len(cc.pipe) == 0
	cc.mu.Unlock()
	atomic.AddInt64(&cc.Stats.framesSent, 1)
	return nil
}

// Push drains the outgoing pipe until it empties or the transport would
// block, setting IsBlocked accordingly (spec §4.6 "push" fan-out leaf).
func (cc *ChannelClient) Push() {
	for {
		if cc.PipeSize() == 0 {
			cc.mu.Lock()
			cc.blocking = false
			cc.mu.Unlock()
			return
		}
		if err := cc.Send(); err != nil {
			return
		}
	}
}

// InitOutgoingWindow resets the outgoing ack-window accounting used by
// channels with handle_acks set (spec §4.6 "init_outgoing_window").
func (cc *ChannelClient) InitOutgoingWindow(size int) {
	cc.mu.Lock()
	cc.outgoingWindow = size
	cc.mu.Unlock()
}

func isWouldBlock(err error) bool {
	we, ok := err.(*wsframe.Error)
	return ok && we.Kind == wsframe.KindWouldBlock
}
