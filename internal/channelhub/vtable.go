package channelhub

// MigrationFlags bits control what a Channel's migration handshake expects
// of its connected clients (spec §3/§6).
type MigrationFlags uint32

const (
	// MigrateNeedsFlush marks a channel that must flush its pipe before a
	// migration handshake may proceed.
	MigrateNeedsFlush MigrationFlags = 1 << iota
	// MigrateNeedsDataTransfer marks a channel whose migration handshake
	// transfers buffered data, requiring HandleMigrateData on its hooks
	// (spec §6: "verify ... handle_migrate_data is provided whenever the
	// channel's migration flags request data transfer").
	MigrateNeedsDataTransfer
)

// ClientHooks is the capability trait a channel's subclass injects at
// construction, replacing the source's runtime-resolved class vtable (spec
// §9 "Dynamic dispatch"). Every entry spec §6 lists as required becomes a
// statically-enforced interface method; only handle_migrate_data is
// optional, since it is conditionally required and so is checked at
// construction via MigrateDataHandler instead.
type ClientHooks interface {
	// ConfigSocket is invoked once a ChannelClient's transport is attached,
	// letting the hook adjust socket-level options.
	ConfigSocket(cc *ChannelClient) error
	// OnDisconnect is the generic per-client teardown notification.
	OnDisconnect(cc *ChannelClient)
	// AllocRecvBuf hands Receive a scratch buffer of at least size bytes.
	AllocRecvBuf(cc *ChannelClient, size int) []byte
	// ReleaseRecvBuf returns a buffer obtained from AllocRecvBuf.
	ReleaseRecvBuf(cc *ChannelClient, buf []byte)
	// HandleMessage is the legacy raw-message entry point, used when Parser
	// reports no structured parse for the bytes just received.
	HandleMessage(cc *ChannelClient, msgType uint16, payload []byte) error
	// HandleParsed consumes a message Parser has already decoded.
	HandleParsed(cc *ChannelClient, size int, msgType uint16, parsed interface{}) error
	// SendItem serializes and writes one outgoing PipeItem through cc's
	// stream.
	SendItem(cc *ChannelClient, item PipeItem) error
	// Parser attempts to decode payload into a structured message. A nil
	// parsed value (with a nil error) signals "no structured parse; fall
	// back to HandleMessage".
	Parser(cc *ChannelClient, payload []byte) (parsed interface{}, size int, msgType uint16, err error)
}

// MigrateDataHandler is the optional vtable entry spec §6 requires only when
// a channel's migration flags request data transfer.
type MigrateDataHandler interface {
	HandleMigrateData(cc *ChannelClient, data []byte) error
}
