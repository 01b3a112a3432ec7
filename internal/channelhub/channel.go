package channelhub

import (
	"github.com/rs/zerolog"
)

// ThreadID identifies the thread/goroutine-group that owns mutation of a
// Channel's clients list (spec §5). Go has no portable way to introspect
// "the current OS thread" the way the source's pthread_self() does, so
// ThreadID is a caller-assigned token: the code driving a Channel's event
// loop picks one value for itself at startup and passes it into every
// mutating call, exactly as it would pass a context value. Mismatches are
// logged, never enforced.
type ThreadID uint64

// ClientCallbacks are the client-level hooks spec §6 describes: {connect,
// disconnect, migrate} plus whatever closure state the caller wants to
// capture (Go closures replace the source's void* data pointer).
type ClientCallbacks struct {
	// Connect is the callback for a newly joining ChannelClient. Channel
	// only stores it: Add does not call it. The main channel is exempt from
	// requiring a custom Connect (spec §6); other channels that leave it nil
	// get a Connect that always errors, matching "default connect aborts".
	Connect func(cc *ChannelClient) error
	// Disconnect is the generic per-client teardown notification; a nil
	// value falls back to hooks.OnDisconnect alone.
	Disconnect func(cc *ChannelClient)
	// Migrate is invoked by Client.Migrate for each connected channel-client
	// of this channel. A nil value is a no-op.
	Migrate func(cc *ChannelClient)
}

// Channel is a typed logical endpoint within a session, addressed by
// (Type, ID), multiplexing many ChannelClients (spec §3, GLOSSARY).
type Channel struct {
	Type int
	ID   int

	thread         ThreadID
	handleAcks     bool
	migrationFlags MigrationFlags

	localCommonCaps capBitset
	localCaps       capBitset

	clients []*ChannelClient

	hooks     ClientHooks
	callbacks ClientCallbacks

	log zerolog.Logger
}

// NewChannel constructs a Channel bound to owningThread, verifying at
// construction (spec §6) that hooks is non-nil and, when migrationFlags
// requests data transfer, that hooks also implements MigrateDataHandler.
func NewChannel(channelType, id int, owningThread ThreadID, migrationFlags MigrationFlags, hooks ClientHooks, callbacks ClientCallbacks, log zerolog.Logger) (*Channel, error) {
	if hooks == nil {
		return nil, errMissingHooks
	}
	if migrationFlags&MigrateNeedsDataTransfer != 0 {
		if _, ok := hooks.(MigrateDataHandler); !ok {
			return nil, errMissingMigrateDataHandler
		}
	}
	if callbacks.Connect == nil && id != mainChannelID {
		callbacks.Connect = func(*ChannelClient) error { return errConnectRefused }
	}
	return &Channel{
		Type:           channelType,
		ID:             id,
		thread:         owningThread,
		migrationFlags: migrationFlags,
		hooks:          hooks,
		callbacks:      callbacks,
		log:            log.With().Int("channel_type", channelType).Int("channel_id", id).Logger(),
	}, nil
}

// mainChannelID is the conventional id of a session's main channel, exempt
// from requiring a custom Connect callback (spec §6).
const mainChannelID = 0

func (c *Channel) checkThread(caller ThreadID) {
	if caller != c.thread {
		c.log.Warn().
			Uint64("caller_thread", uint64(caller)).
			Uint64("owning_thread", uint64(c.thread)).
			Msg("channelhub: channel mutated off its owning thread")
	}
}

// Add prepends rcc to the clients list (spec §4.5 "add").
func (c *Channel) Add(rcc *ChannelClient, caller ThreadID) {
	c.checkThread(caller)
	c.clients = append([]*ChannelClient{rcc}, c.clients...)
}

// Remove unlinks rcc if present. It does not release rcc — the
// ChannelClient's own strong reference to this Channel keeps it alive
// (spec §4.5 "remove").
func (c *Channel) Remove(rcc *ChannelClient, caller ThreadID) {
	c.checkThread(caller)
	for i, existing := range c.clients {
		if existing == rcc {
			c.clients = append(c.clients[:i], c.clients[i+1:]...)
			return
		}
	}
}

// snapshot copies the clients slice so callbacks may safely mutate the
// list while Apply/ApplyData/broadcast ops are iterating (spec §4.5
// "the list must not be mutated during iteration").
func (c *Channel) snapshot() []*ChannelClient {
	out := make([]*ChannelClient, len(c.clients))
	copy(out, c.clients)
	return out
}

// TestRemoteCommonCap reports whether every currently-connected client
// advertises bit in its common capability set (spec §4.5, §8 "Capability
// AND across clients"). Vacuously true with no clients.
func (c *Channel) TestRemoteCommonCap(bit int) bool {
	for _, cc := range c.clients {
		if !cc.hasRemoteCommonCap(bit) {
			return false
		}
	}
	return true
}

// TestRemoteCap is TestRemoteCommonCap's channel-specific counterpart.
func (c *Channel) TestRemoteCap(bit int) bool {
	for _, cc := range c.clients {
		if !cc.hasRemoteCap(bit) {
			return false
		}
	}
	return true
}

// Apply invokes cb once per connected client, over a snapshot.
func (c *Channel) Apply(cb func(*ChannelClient)) {
	for _, cc := range c.snapshot() {
		cb(cc)
	}
}

// ApplyData is Apply with an extra opaque data argument threaded through to
// cb, matching the source's apply_data signature.
func (c *Channel) ApplyData(cb func(*ChannelClient, interface{}), data interface{}) {
	for _, cc := range c.snapshot() {
		cb(cc, data)
	}
}

// SetCommonCap ORs bit into the channel's local common capability bitset,
// growing storage as needed (spec §4.5).
func (c *Channel) SetCommonCap(bit int) { c.localCommonCaps.set(bit) }

// SetCap is SetCommonCap's channel-specific counterpart.
func (c *Channel) SetCap(bit int) { c.localCaps.set(bit) }

// HasHandleAcks reports whether this channel tracks an outgoing ack
// window (spec §3 "handle_acks boolean").
func (c *Channel) HasHandleAcks() bool { return c.handleAcks }

// SetHandleAcks toggles ack-window tracking.
func (c *Channel) SetHandleAcks(v bool) { c.handleAcks = v }

// MigrationFlags returns the channel's migration flags.
func (c *Channel) MigrationFlags() MigrationFlags { return c.migrationFlags }

// ClientCount reports the number of currently-connected clients.
func (c *Channel) ClientCount() int { return len(c.clients) }

// InvokeMigrateCallback runs this channel's migrate client-callback for cc,
// a no-op when none was supplied. Used by client.Client.Migrate (spec
// §4.7 "migrate").
func (c *Channel) InvokeMigrateCallback(cc *ChannelClient) {
	if c.callbacks.Migrate != nil {
		c.callbacks.Migrate(cc)
	}
}

// InvokeDisconnectCallback runs the per-channel Disconnect callback if one
// was supplied, otherwise falls back to the generic hooks.OnDisconnect
// (spec §6 "default disconnect calls generic disconnect"). Used by
// client.Client.Destroy (spec §4.7 "destroy").
func (c *Channel) InvokeDisconnectCallback(cc *ChannelClient) {
	if c.callbacks.Disconnect != nil {
		c.callbacks.Disconnect(cc)
		return
	}
	c.hooks.OnDisconnect(cc)
}
