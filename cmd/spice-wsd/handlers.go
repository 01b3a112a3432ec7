package main

import (
	"io"

	"github.com/rs/zerolog"

	"github.com/symphonicityy/spice/internal/channelhub"
)

// echoItemType is the only pipe-item type the demo host produces.
const echoItemType = 1

// echoItem carries one received payload back out to its sender.
type echoItem struct {
	payload []byte
}

func (e *echoItem) Type() int { return echoItemType }

func (e *echoItem) Marshal(w io.Writer) error {
	_, err := w.Write(e.payload)
	return err
}

// echoHooks is the demo ClientHooks: it never structurally parses incoming
// bytes (concrete message parsers are out of scope per spec.md §1), and
// simply echoes whatever binary payload it receives back to the same
// client via the pipe/broadcast machinery.
type echoHooks struct {
	log zerolog.Logger
}

func (h *echoHooks) ConfigSocket(*channelhub.ChannelClient) error { return nil }

func (h *echoHooks) OnDisconnect(cc *channelhub.ChannelClient) {
	h.log.Debug().Msg("spice-wsd: channel-client disconnected")
}

func (h *echoHooks) AllocRecvBuf(_ *channelhub.ChannelClient, size int) []byte {
	return make([]byte, size)
}

func (h *echoHooks) ReleaseRecvBuf(*channelhub.ChannelClient, []byte) {}

func (h *echoHooks) HandleMessage(cc *channelhub.ChannelClient, _ uint16, payload []byte) error {
	cc.Enqueue(&echoItem{payload: append([]byte(nil), payload...)})
	return nil
}

func (h *echoHooks) HandleParsed(*channelhub.ChannelClient, int, uint16, interface{}) error {
	return nil
}

func (h *echoHooks) SendItem(cc *channelhub.ChannelClient, item channelhub.PipeItem) error {
	return item.Marshal(cc.Stream())
}

// Parser always reports "no structured parse", routing every incoming
// message through HandleMessage.
func (h *echoHooks) Parser(*channelhub.ChannelClient, []byte) (interface{}, int, uint16, error) {
	return nil, 0, 0, nil
}

var _ channelhub.ClientHooks = (*echoHooks)(nil)
