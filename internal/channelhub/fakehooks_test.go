package channelhub

import (
	"github.com/rs/zerolog"

	"github.com/symphonicityy/spice/internal/wsframe"
)

// fakeHooks is a minimal ClientHooks implementation for tests; it records
// nothing meaningful about wire formats since those are out of scope (spec
// §1) — it only needs to satisfy the interface and let SendItem succeed.
type fakeHooks struct {
	sent []PipeItem
}

func (f *fakeHooks) ConfigSocket(*ChannelClient) error { return nil }
func (f *fakeHooks) OnDisconnect(*ChannelClient)       {}
func (f *fakeHooks) AllocRecvBuf(_ *ChannelClient, size int) []byte {
	return make([]byte, size)
}
func (f *fakeHooks) ReleaseRecvBuf(*ChannelClient, []byte) {}
func (f *fakeHooks) HandleMessage(*ChannelClient, uint16, []byte) error {
	return nil
}
func (f *fakeHooks) HandleParsed(*ChannelClient, int, uint16, interface{}) error {
	return nil
}
func (f *fakeHooks) SendItem(_ *ChannelClient, item PipeItem) error {
	f.sent = append(f.sent, item)
	return nil
}
func (f *fakeHooks) Parser(*ChannelClient, []byte) (interface{}, int, uint16, error) {
	return nil, 0, 0, nil
}

// fakeMigratingHooks additionally implements MigrateDataHandler.
type fakeMigratingHooks struct {
	fakeHooks
}

func (f *fakeMigratingHooks) HandleMigrateData(*ChannelClient, []byte) error { return nil }

// noopTransport never produces data and never blocks on write, enough to
// construct a ChannelClient whose Receive/Send paths aren't exercised.
type noopTransport struct{}

func (noopTransport) Read([]byte) (int, error)          { return 0, wsframe.ErrWouldBlock }
func (noopTransport) Write(buf []byte) (int, error)      { return len(buf), nil }
func (noopTransport) Writev(bufs [][]byte) (int, error) {
	n := 0
	for _, b := range bufs {
		n += len(b)
	}
	return n, nil
}

func noopLogger() zerolog.Logger { return zerolog.Nop() }

func newTestChannel(t interface{ Fatal(...interface{}) }, hooks ClientHooks, flags MigrationFlags) *Channel {
	ch, err := NewChannel(1, mainChannelID, ThreadID(1), flags, hooks, ClientCallbacks{}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	return ch
}

func newTestChannelClient(ch *Channel) *ChannelClient {
	tr := noopTransport{}
	cc, err := NewChannelClient(ch, tr, wsframe.NewStream(tr, zerolog.Nop()), zerolog.Nop())
	if err != nil {
		panic(err)
	}
	return cc
}
