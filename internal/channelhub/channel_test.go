package channelhub

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewChannelRequiresHooks(t *testing.T) {
	_, err := NewChannel(1, mainChannelID, ThreadID(1), 0, nil, ClientCallbacks{}, noopLogger())
	require.Error(t, err)
}

func TestNewChannelRequiresMigrateDataHandlerWhenFlagged(t *testing.T) {
	_, err := NewChannel(1, 2, ThreadID(1), MigrateNeedsDataTransfer, &fakeHooks{}, ClientCallbacks{}, noopLogger())
	require.Error(t, err, "plain fakeHooks does not implement MigrateDataHandler")

	_, err = NewChannel(1, 2, ThreadID(1), MigrateNeedsDataTransfer, &fakeMigratingHooks{}, ClientCallbacks{}, noopLogger())
	require.NoError(t, err)
}

func TestNonMainChannelDefaultConnectRefuses(t *testing.T) {
	ch, err := NewChannel(1, 2, ThreadID(1), 0, &fakeHooks{}, ClientCallbacks{}, noopLogger())
	require.NoError(t, err)
	require.Error(t, ch.callbacks.Connect(nil))
}

func TestAddPrependsAndRemoveUnlinks(t *testing.T) {
	ch := newTestChannel(t, &fakeHooks{}, 0)
	a := newTestChannelClient(ch)
	b := newTestChannelClient(ch)

	ch.Add(a, ThreadID(1))
	ch.Add(b, ThreadID(1))
	require.Equal(t, []*ChannelClient{b, a}, ch.clients, "Add prepends")

	ch.Remove(a, ThreadID(1))
	require.Equal(t, []*ChannelClient{b}, ch.clients)

	ch.Remove(a, ThreadID(1)) // already absent: no-op, no panic
	require.Equal(t, []*ChannelClient{b}, ch.clients)
}

func TestTestRemoteCommonCapIsANDAcrossClients(t *testing.T) {
	ch := newTestChannel(t, &fakeHooks{}, 0)
	a := newTestChannelClient(ch)
	b := newTestChannelClient(ch)
	ch.Add(a, ThreadID(1))
	ch.Add(b, ThreadID(1))

	require.False(t, ch.TestRemoteCommonCap(3), "neither client has advertised it yet")

	a.SetRemoteCaps([]int{3}, nil)
	require.False(t, ch.TestRemoteCommonCap(3), "b has not advertised bit 3")

	b.SetRemoteCaps([]int{3}, nil)
	require.True(t, ch.TestRemoteCommonCap(3))
}

func TestTestRemoteCapIndependentOfCommonCap(t *testing.T) {
	ch := newTestChannel(t, &fakeHooks{}, 0)
	a := newTestChannelClient(ch)
	ch.Add(a, ThreadID(1))

	a.SetRemoteCaps([]int{1}, []int{9})
	require.True(t, ch.TestRemoteCommonCap(1))
	require.False(t, ch.TestRemoteCommonCap(9))
	require.True(t, ch.TestRemoteCap(9))
	require.False(t, ch.TestRemoteCap(1))
}

func TestApplyIteratesSnapshotExactlyOnce(t *testing.T) {
	ch := newTestChannel(t, &fakeHooks{}, 0)
	a := newTestChannelClient(ch)
	b := newTestChannelClient(ch)
	ch.Add(a, ThreadID(1))
	ch.Add(b, ThreadID(1))

	seen := map[*ChannelClient]int{}
	ch.Apply(func(cc *ChannelClient) {
		seen[cc]++
		ch.Remove(cc, ThreadID(1)) // mutating mid-iteration must not affect the snapshot
	})
	require.Equal(t, 1, seen[a])
	require.Equal(t, 1, seen[b])
	require.Empty(t, ch.clients)
}

func TestSetCommonCapAndSetCapGrowStorage(t *testing.T) {
	ch := newTestChannel(t, &fakeHooks{}, 0)
	ch.SetCommonCap(40) // beyond the first 32-bit word
	require.True(t, ch.localCommonCaps.test(40))
	require.False(t, ch.localCommonCaps.test(41))

	ch.SetCap(5)
	require.True(t, ch.localCaps.test(5))
}
