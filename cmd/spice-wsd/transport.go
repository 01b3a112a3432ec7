package main

import (
	"io"
	"net"

	"github.com/symphonicityy/spice/internal/wsframe"
)

// netTransport adapts a net.Conn into a wsframe.Transport. It is a
// deliberately blocking transport: each connection is served from its own
// goroutine, so "would-block" semantics (spec §6) collapse to ordinary
// blocking reads/writes here. Writev is expressed via net.Buffers, which
// the runtime lowers to a single writev(2) on platforms that support it.
type netTransport struct {
	conn net.Conn
}

func (t *netTransport) Read(buf []byte) (int, error) {
	n, err := t.conn.Read(buf)
	if err == io.EOF {
		return n, nil
	}
	return n, err
}

func (t *netTransport) Write(buf []byte) (int, error) {
	return t.conn.Write(buf)
}

func (t *netTransport) Writev(bufs [][]byte) (int, error) {
	nb := net.Buffers(append([][]byte(nil), bufs...))
	n, err := nb.WriteTo(t.conn)
	return int(n), err
}

var _ wsframe.Transport = (*netTransport)(nil)
