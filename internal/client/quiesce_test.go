package client

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/symphonicityy/spice/internal/channelhub"
	"github.com/symphonicityy/spice/internal/wsframe"
)

var wsframeWouldBlock = wsframe.ErrWouldBlock

func TestWaitAllSentDrainsPendingPipe(t *testing.T) {
	c := New(channelhub.ThreadID(1), &fakeServer{}, zerolog.Nop())
	a := newFixtureChannelClient(t, 1, 0, fakeHooks{})
	c.AddChannel(a)
	a.Enqueue(&channelhub.BareItem{ItemType: 1})
	a.Enqueue(&channelhub.BareItem{ItemType: 2})

	require.True(t, c.WaitAllSent(2*time.Second))
	require.Equal(t, 0, a.PipeSize())
}

func TestWaitAllSentTimesOutOnBlockedClient(t *testing.T) {
	c := New(channelhub.ThreadID(1), &fakeServer{}, zerolog.Nop())
	a := newFixtureChannelClient(t, 1, 0, blockingHooks{})
	c.AddChannel(a)
	a.Enqueue(&channelhub.BareItem{ItemType: 1})

	require.False(t, c.WaitAllSent(20*time.Millisecond))
}

func TestWaitAllSentReturnsImmediatelyWhenEmpty(t *testing.T) {
	c := New(channelhub.ThreadID(1), &fakeServer{}, zerolog.Nop())
	require.True(t, c.WaitAllSent(Unbounded))
}

// blockingHooks always reports would-block from SendItem, to exercise the
// timeout branch of WaitAllSent.
type blockingHooks struct{ fakeHooks }

func (blockingHooks) SendItem(*channelhub.ChannelClient, channelhub.PipeItem) error {
	return wsframeWouldBlock
}
