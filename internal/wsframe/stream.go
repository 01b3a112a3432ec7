package wsframe

import (
	"github.com/rs/zerolog"
)

// writeState models the outgoing side as a small state machine, per spec §9's
// redesign note. It sits alongside the header position/length and
// write_remainder fields rather than replacing them.
type writeState int

const (
	stateIdle writeState = iota
	stateSendingHeader
	stateSendingPayload
)

const drainChunk = 128

// Stream is a stateful read/write layer over a Transport, produced once a
// handshake has succeeded. It shuttles opaque binary payloads in and out of
// WebSocket frames, resuming cleanly across would-block/interrupted
// transport calls (spec §3/§4.3/§4.4).
type Stream struct {
	transport Transport
	log       zerolog.Logger

	// read side
	frame        Frame
	closed       bool
	closePending bool

	// write side: outgoing header scratch plus a writeState; headerPos and
	// headerLen play the roles of write_header_pos and write_header_len in
	// the spec §4.4 invariants.
	state          writeState
	header         [maxHeaderLen]byte
	headerLen      int
	headerPos      int
	writeRemainder int64

	closeAckPos int
}

// NewStream wraps transport in a WebSocketStream. Created by the caller once
// Handshake succeeds; destroyed explicitly by simply dropping the reference
// (there is no background goroutine to stop).
func NewStream(transport Transport, log zerolog.Logger) *Stream {
	return &Stream{transport: transport, log: log}
}

// Closed reports whether the stream has transitioned to closed (orderly
// peer close, protocol violation, or transport EOF).
func (s *Stream) Closed() bool { return s.closed }

func isWouldBlock(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == KindWouldBlock
}

// Read fills buf with up to len(buf) bytes of relayed WebSocket payload,
// returning the bytes delivered, 0 on orderly close, or an error. It loops
// until either buf is filled or the transport would block (spec §4.3).
func (s *Stream) Read(buf []byte) (int, error) {
	delivered := 0
	for delivered < len(buf) {
		if s.closed || s.closePending {
			s.drainOnClose()
			return 0, nil
		}

		if !s.frame.Ready() {
			n, err := s.fillHeader()
			if err != nil {
				if delivered > 0 {
					return delivered, nil
				}
				return 0, err
			}
			if n < 0 || s.closed {
				// transport EOF or failure while accumulating the header;
				// payload already delivered this call is still reported
				return delivered, nil
			}
			if s.frame.BytesNeeded() > 0 {
				// still accumulating header bytes; try the transport again
				continue
			}
			if perr := s.frame.ParseHeader(); perr != nil {
				s.closed = true
				s.log.Error().Err(perr).Msg("websocket: malformed frame header, closing stream")
				return delivered, perr
			}
			continue
		}

		switch s.frame.Opcode {
		case OpClose:
			s.closePending = true
			s.frame.Reset()
			s.flushCloseAck()
			return delivered, nil

		case OpBinary:
			remaining := s.frame.Expected - s.frame.Relayed
			if remaining == 0 {
				s.frame.Reset()
				continue
			}
			want := len(buf) - delivered
			if int64(want) > remaining {
				want = int(remaining)
			}
			n, err := s.transport.Read(buf[delivered : delivered+want])
			if n > 0 {
				s.frame.ApplyMask(buf[delivered:delivered+n], n)
				delivered += n
			}
			if err != nil {
				if isWouldBlock(err) {
					if delivered > 0 {
						return delivered, nil
					}
					return 0, err
				}
				s.closed = true
				return delivered, nil
			}
			if n == 0 {
				s.closed = true
				return delivered, nil
			}
			if s.frame.Relayed == s.frame.Expected {
				s.frame.Reset()
			}

		default:
			// ping, pong, text: warn and discard, draining the payload from
			// the transport first so subsequent header parses stay aligned
			// (resolves the open question in spec §9 about undrained
			// discarded payloads).
			op := s.frame.Opcode
			n, err := s.discardFrame()
			if err != nil {
				if isWouldBlock(err) {
					if delivered > 0 {
						return delivered, nil
					}
					return 0, err
				}
				s.closed = true
				return delivered, nil
			}
			if n < 0 {
				s.closed = true
				return delivered, nil
			}
			s.log.Warn().Int("opcode", int(op)).Msg("websocket: discarding unsupported frame")
			s.frame.Reset()
		}
	}
	return delivered, nil
}

// fillHeader requests exactly BytesNeeded() more header bytes from the
// transport. Returns n=-1 on orderly transport EOF.
func (s *Stream) fillHeader() (int, error) {
	need := s.frame.BytesNeeded()
	scratch := make([]byte, need)
	n, err := s.transport.Read(scratch)
	if n > 0 {
		s.frame.FeedHeader(scratch[:n])
	}
	if err != nil {
		if isWouldBlock(err) {
			return 0, err
		}
		s.closed = true
		return 0, nil
	}
	if n == 0 {
		s.closed = true
		return -1, nil
	}
	return n, nil
}

// discardFrame reads and drops the remaining undelivered payload of the
// current ready frame. Returns n=-1 on orderly transport EOF.
func (s *Stream) discardFrame() (int, error) {
	scratch := make([]byte, drainChunk)
	for s.frame.Relayed < s.frame.Expected {
		want := s.frame.Expected - s.frame.Relayed
		if want > int64(len(scratch)) {
			want = int64(len(scratch))
		}
		n, err := s.transport.Read(scratch[:want])
		if n > 0 {
			s.frame.Relayed += int64(n)
		}
		if err != nil {
			return 0, err
		}
		if n == 0 {
			return -1, nil
		}
	}
	return 0, nil
}

// drainOnClose drains up to drainChunk bytes from the transport to avoid
// livelock on half-closed peers (spec §4.3 step 1).
func (s *Stream) drainOnClose() {
	scratch := make([]byte, drainChunk)
	_, _ = s.transport.Read(scratch)
}

// flushCloseAck makes a best-effort attempt to write the 2-byte close
// acknowledgement immediately after a peer close frame is observed. If it
// doesn't complete here, Write/Writev resume it on the next call (spec
// §4.4's "drive send_pending first").
func (s *Stream) flushCloseAck() {
	if s.closed {
		return
	}
	_, _ = s.emitCloseAck()
}

// emitCloseAck writes (or resumes writing) the fixed {0x88, 0x00} close
// acknowledgement, marking the stream closed once fully flushed.
func (s *Stream) emitCloseAck() (int, error) {
	remaining := CloseAckBytes[s.closeAckPos:]
	n, err := s.transport.Write(remaining[:])
	s.closeAckPos += n
	if s.closeAckPos >= len(CloseAckBytes) {
		s.closed = true
		s.closePending = false
	}
	return 0, err
}

// Write sends buf as (part of) a single binary final frame, obeying the
// partial-I/O resumption state machine in spec §4.4. When an outgoing
// payload is already in progress, the write is clamped to
// min(len(buf), write_remainder) so it never straddles a frame boundary.
func (s *Stream) Write(buf []byte) (int, error) {
	if s.closed {
		return 0, newErr(KindBrokenPipe, nil)
	}

	if s.state == stateIdle && s.writeRemainder == 0 && !s.closePending {
		s.beginHeader(int64(len(buf)))
	}

	if s.state == stateSendingHeader {
		if err := s.finishHeader(); err != nil {
			return 0, err
		}
		if s.state == stateSendingHeader {
			// transport would-block partway through the header; no payload
			// byte has left this call.
			return 0, nil
		}
	}

	if s.closePending && s.state == stateIdle {
		return s.emitCloseAck()
	}

	n := len(buf)
	if int64(n) > s.writeRemainder {
		n = int(s.writeRemainder)
	}
	written, err := s.transport.Write(buf[:n])
	s.writeRemainder -= int64(written)
	if s.writeRemainder == 0 {
		s.state = stateIdle
	}
	if err != nil && !isWouldBlock(err) {
		s.closed = true
	}
	return written, err
}

// Writev is Write's vectored counterpart: it prepends a synthetic iovec
// carrying the new frame header and issues a single Writev call. If the
// transport writes fewer bytes than the header length, write_header_pos is
// recorded so the next call finishes the header before any further payload;
// any surplus written beyond the header is subtracted from write_remainder
// and returned to the caller.
func (s *Stream) Writev(bufs [][]byte) (int, error) {
	if s.closed {
		return 0, newErr(KindBrokenPipe, nil)
	}

	if s.state == stateSendingHeader {
		if err := s.finishHeader(); err != nil {
			return 0, err
		}
		if s.state == stateSendingHeader {
			return 0, nil
		}
		return s.writevPayload(bufs)
	}

	if s.closePending && s.state == stateIdle {
		return s.emitCloseAck()
	}

	if s.state == stateSendingPayload {
		return s.writevPayload(bufs)
	}

	var total int64
	for _, b := range bufs {
		total += int64(len(b))
	}
	header, used := FillOutHeader(total)
	copy(s.header[:used], header)
	s.headerLen = used
	s.headerPos = 0
	s.writeRemainder = total
	s.state = stateSendingHeader

	synth := make([][]byte, 0, len(bufs)+1)
	synth = append(synth, header)
	synth = append(synth, bufs...)

	wrote, err := s.transport.Writev(synth)
	if err != nil && !isWouldBlock(err) {
		s.closed = true
		return 0, err
	}

	if wrote <= used {
		s.headerPos = wrote
		if s.headerPos >= s.headerLen {
			s.state = stateSendingPayload
		}
		return 0, err
	}

	s.headerPos = used
	s.state = stateSendingPayload
	surplus := wrote - used
	s.writeRemainder -= int64(surplus)
	if s.writeRemainder == 0 {
		s.state = stateIdle
	}
	return surplus, err
}

// writevPayload continues an in-progress payload, clamping the combined
// buffer length to the remaining write_remainder.
func (s *Stream) writevPayload(bufs [][]byte) (int, error) {
	clamped := make([][]byte, 0, len(bufs))
	var remaining = s.writeRemainder
	for _, b := range bufs {
		if remaining <= 0 {
			break
		}
		if int64(len(b)) > remaining {
			b = b[:remaining]
		}
		clamped = append(clamped, b)
		remaining -= int64(len(b))
	}
	written, err := s.transport.Writev(clamped)
	s.writeRemainder -= int64(written)
	if s.writeRemainder == 0 {
		s.state = stateIdle
	}
	if err != nil && !isWouldBlock(err) {
		s.closed = true
	}
	return written, err
}

// beginHeader composes a new outgoing frame header for length bytes of
// upcoming payload; it writes nothing, Write flushes it via finishHeader.
func (s *Stream) beginHeader(length int64) {
	header, used := FillOutHeader(length)
	copy(s.header[:], header)
	s.headerLen = used
	s.headerPos = 0
	s.writeRemainder = length
	s.state = stateSendingHeader
}

// finishHeader writes out any remaining bytes of the in-flight outgoing
// header, tracking write_header_pos, and transitions state once the header
// is fully flushed (invariant: write_remainder > 0 ⇒ header fully flushed).
func (s *Stream) finishHeader() error {
	remaining := s.header[s.headerPos:s.headerLen]
	n, err := s.transport.Write(remaining)
	s.headerPos += n
	if s.headerPos < s.headerLen {
		if err != nil && !isWouldBlock(err) {
			s.closed = true
			return err
		}
		return err
	}
	if s.writeRemainder > 0 {
		s.state = stateSendingPayload
	} else {
		s.state = stateIdle
	}
	return nil
}
