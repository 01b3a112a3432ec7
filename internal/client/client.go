// Package client implements the Client aggregate: the holder of every
// ChannelClient spawned for one remote participant, its migration state,
// and its refcount (spec §3, §4.7).
package client

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/symphonicityy/spice/internal/channelhub"
)

// ServerDispatcher is the Client's view of the surrounding server core: the
// message-posting/signaling collaborator spec §4.7 describes as "the
// server" and "the server's main dispatcher", out of scope to implement
// concretely per spec.md §1.
type ServerDispatcher interface {
	// SignalMigrateComplete is called (outside the Client's lock) once
	// SemiSeamlessMigrateComplete finishes.
	SignalMigrateComplete(c *Client)
	// PostMigrationDone posts the seamless-migration completion message
	// once SeamlessMigrationDoneForChannel's counter reaches zero.
	PostMigrationDone(c *Client)
}

// Client is the aggregate of all ChannelClients belonging to one remote
// participant (spec §3, GLOSSARY).
type Client struct {
	mu sync.Mutex

	refcount int32

	thread channelhub.ThreadID
	server ServerDispatcher
	log    zerolog.Logger

	channels    []*channelhub.ChannelClient
	mainChannel *channelhub.ChannelClient

	duringTargetMigrate bool
	seamlessMigrate     bool
	numMigratedChannels int
}

// New constructs a Client owned by owningThread with an initial refcount of
// 1 held by the caller.
func New(owningThread channelhub.ThreadID, server ServerDispatcher, log zerolog.Logger) *Client {
	return &Client{
		refcount: 1,
		thread:   owningThread,
		server:   server,
		log:      log,
	}
}

// Ref increments the refcount.
func (c *Client) Ref() { atomic.AddInt32(&c.refcount, 1) }

// Unref decrements the refcount; the last decrement tears down the mutex
// and frees the client (spec §4.7) — in Go that is simply "becomes eligible
// for garbage collection once the caller drops its reference", so Unref
// just reports whether this was the final one.
func (c *Client) Unref() bool {
	return atomic.AddInt32(&c.refcount, -1) == 0
}

func (c *Client) checkThread(caller channelhub.ThreadID) {
	if caller != c.thread {
		c.log.Warn().
			Uint64("caller_thread", uint64(caller)).
			Uint64("owning_thread", uint64(c.thread)).
			Msg("client: operation invoked off the client's owning thread")
	}
}

// AddChannel prepends rcc to the channels list. If this client is currently
// in target-side seamless migration, it attempts to transition rcc into the
// "awaiting migrate data" state, incrementing numMigratedChannels on
// success (spec §4.7 "add_channel").
func (c *Client) AddChannel(rcc *channelhub.ChannelClient) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rcc.SetOwner(c)
	c.channels = append([]*channelhub.ChannelClient{rcc}, c.channels...)
	if c.mainChannel == nil {
		c.mainChannel = rcc
	}

	if c.duringTargetMigrate {
		if rcc.TryBeginMigrate() {
			c.numMigratedChannels++
		}
	}
}

// GetChannel returns the first channel-client bound to a Channel matching
// (channelType, id), or nil.
func (c *Client) GetChannel(channelType, id int) *channelhub.ChannelClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, rcc := range c.channels {
		ch := rcc.Channel()
		if ch.Type == channelType && ch.ID == id {
			return rcc
		}
	}
	return nil
}

// SetMigrationSeamless marks this client as undergoing seamless migration
// and attempts to transition every existing channel-client into the
// "awaiting migrate data" state, counting successes (spec §4.7
// "set_migration_seamless").
func (c *Client) SetMigrationSeamless() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seamlessMigrate = true
	for _, rcc := range c.channels {
		if rcc.TryBeginMigrate() {
			c.numMigratedChannels++
		}
	}
}

// errNotSemiSeamless is the "program error" spec §4.7 describes for
// SemiSeamlessMigrateComplete being invoked in the wrong state.
var errNotSemiSeamless = errors.New("client: semi-seamless migrate complete called without during_target_migrate && !seamless_migrate")

// SemiSeamlessMigrateComplete requires during_target_migrate=true and
// seamless_migrate=false, clears during_target_migrate, and (outside the
// lock) signals the server (spec §4.7).
func (c *Client) SemiSeamlessMigrateComplete() error {
	c.mu.Lock()
	if !c.duringTargetMigrate || c.seamlessMigrate {
		c.mu.Unlock()
		return errNotSemiSeamless
	}
	c.duringTargetMigrate = false
	channels := append([]*channelhub.ChannelClient(nil), c.channels...)
	c.mu.Unlock()

	for _, rcc := range channels {
		rcc.Channel().InvokeMigrateCallback(rcc)
	}
	if c.server != nil {
		c.server.SignalMigrateComplete(c)
	}
	return nil
}

// SeamlessMigrationDoneForChannel decrements numMigratedChannels; when it
// reaches zero, clears both migration flags and posts a completion message
// to the server. Returns true iff this call was the one that reached zero
// (spec §4.7).
func (c *Client) SeamlessMigrationDoneForChannel() bool {
	c.mu.Lock()
	c.numMigratedChannels--
	done := c.numMigratedChannels == 0
	if done {
		c.duringTargetMigrate = false
		c.seamlessMigrate = false
	}
	c.mu.Unlock()

	if done && c.server != nil {
		c.server.PostMigrationDone(c)
	}
	return done
}

// NumMigratedChannels reports the count of channel-clients currently
// awaiting migration data.
func (c *Client) NumMigratedChannels() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.numMigratedChannels
}

// DuringTargetMigrate reports whether this client is the migration target
// of an in-progress handover.
func (c *Client) DuringTargetMigrate() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duringTargetMigrate
}

// BeginTargetMigrate marks this client as the target side of an in-progress
// migration handover. The full migration protocol that decides when to call
// this is out of scope per spec.md §1; this setter exists so AddChannel and
// SemiSeamlessMigrateComplete have something to gate on.
func (c *Client) BeginTargetMigrate() {
	c.mu.Lock()
	c.duringTargetMigrate = true
	c.mu.Unlock()
}

// Migrate invokes each connected channel-client's channel's migrate
// callback. Must be called from the client's owning thread; off-thread
// invocation logs a warning but proceeds (spec §4.7 "migrate").
func (c *Client) Migrate(caller channelhub.ThreadID) {
	c.checkThread(caller)
	c.mu.Lock()
	channels := append([]*channelhub.ChannelClient(nil), c.channels...)
	c.mu.Unlock()

	for _, rcc := range channels {
		rcc.Channel().InvokeMigrateCallback(rcc)
	}
}

// Destroy marks every channel-client destroying, invokes its channel's
// disconnect callback (assumed synchronous), asserts its pipe is empty and
// nothing is in flight, releases it, then unrefs the client itself (spec
// §4.7 "destroy").
func (c *Client) Destroy() {
	c.mu.Lock()
	channels := c.channels
	c.channels = nil
	c.mainChannel = nil
	c.mu.Unlock()

	for _, rcc := range channels {
		rcc.MarkDestroying()
		rcc.Channel().InvokeDisconnectCallback(rcc)
		rcc.AssertQuiescent()
		rcc.Unref()
	}
	c.Unref()
}
