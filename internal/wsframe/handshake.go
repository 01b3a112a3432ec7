package wsframe

import (
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"strings"

	"github.com/rs/zerolog"
)

const (
	wsGUID       = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"
	handshakeBuf = 4096
	wantedProto  = "binary"
)

// Handshake is the result of a successful HTTP Upgrade validation: the
// computed Sec-WebSocket-Accept value and the exact response bytes to write
// back to the client.
type Handshake struct {
	Accept   string
	Response []byte
}

// ReadFunc pulls more bytes from the transport the way the three framing
// callbacks in spec §6 do: a positive count of bytes read, or 0 on EOF, or
// an error.
type ReadFunc func(buf []byte) (int, error)

// DoHandshake validates an HTTP Upgrade request and computes the 101
// response. prefix is whatever of the request has already been received;
// read is invoked exactly once to pull the remainder into a fixed 4 KiB
// buffer (see spec §4.2, §9 — a request fragmented across more than one
// read is a documented limitation, not supported here).
//
// Acceptance requires: the request starts with "GET ", it carries a
// Sec-WebSocket-Protocol header whose first non-space token is exactly
// "binary", it carries a Sec-WebSocket-Key header, and the accumulated bytes
// end in "\r\n\r\n". Header matching is case-insensitive and header values
// are trimmed of surrounding whitespace.
func DoHandshake(prefix []byte, read ReadFunc, log zerolog.Logger) (*Handshake, error) {
	buf := make([]byte, handshakeBuf)
	n := copy(buf, prefix)

	if n < len(buf) {
		more, err := read(buf[n:])
		if err != nil {
			return nil, newErr(KindHandshakeInvalid, err)
		}
		n += more
	}
	req := buf[:n]

	if !bytes.HasPrefix(req, []byte("GET ")) {
		log.Warn().Msg("handshake: request does not start with GET")
		return nil, newErr(KindHandshakeInvalid, errNotGet)
	}
	if !bytes.HasSuffix(req, []byte("\r\n\r\n")) {
		log.Warn().Msg("handshake: request headers incomplete in single read")
		return nil, newErr(KindHandshakeInvalid, errIncompleteRequest)
	}

	proto, ok := headerValue(req, "Sec-WebSocket-Protocol")
	if !ok || firstToken(proto) != wantedProto {
		log.Warn().Str("protocol", proto).Msg("handshake: missing/wrong Sec-WebSocket-Protocol")
		return nil, newErr(KindHandshakeInvalid, errBadProtocol)
	}

	key, ok := headerValue(req, "Sec-WebSocket-Key")
	if !ok {
		log.Warn().Msg("handshake: missing Sec-WebSocket-Key")
		return nil, newErr(KindHandshakeInvalid, errMissingKey)
	}

	accept := computeAccept(key)
	resp := buildResponse(accept)
	return &Handshake{Accept: accept, Response: resp}, nil
}

// computeAccept implements RFC 6455 §4.2.2:
// base64(SHA1(trim(key) + GUID)).
func computeAccept(key string) string {
	h := sha1.New()
	h.Write([]byte(strings.TrimSpace(key) + wsGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func buildResponse(accept string) []byte {
	var b bytes.Buffer
	b.WriteString("HTTP/1.1 101 Switching Protocols\r\n")
	b.WriteString("Upgrade: websocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	b.WriteString("Sec-WebSocket-Accept: ")
	b.WriteString(accept)
	b.WriteString("\r\n")
	b.WriteString("Sec-WebSocket-Protocol: binary\r\n\r\n")
	return b.Bytes()
}

// headerValue does a case-insensitive scan of req's header lines for name
// and returns its (whitespace-trimmed) value.
func headerValue(req []byte, name string) (string, bool) {
	lines := strings.Split(string(req), "\r\n")
	prefix := strings.ToLower(name) + ":"
	for _, line := range lines {
		if len(line) < len(prefix) {
			continue
		}
		if strings.ToLower(line[:len(prefix)]) == prefix {
			return strings.TrimSpace(line[len(prefix):]), true
		}
	}
	return "", false
}

// firstToken returns the first whitespace/comma-delimited token of a header
// value, the way a Sec-WebSocket-Protocol list is parsed.
func firstToken(v string) string {
	v = strings.TrimSpace(v)
	if i := strings.IndexAny(v, " \t,"); i >= 0 {
		return v[:i]
	}
	return v
}

var (
	errNotGet            = protoErr("request does not start with GET")
	errIncompleteRequest = protoErr("request headers not terminated by single read")
	errBadProtocol       = protoErr("Sec-WebSocket-Protocol missing or not binary")
	errMissingKey        = protoErr("Sec-WebSocket-Key missing")
)
