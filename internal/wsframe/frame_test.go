package wsframe

import (
	"reflect"
	"testing"
)

// feedAll drives BytesNeeded/FeedHeader to completion the way Stream.Read
// does, one chunk at a time, to catch off-by-one bugs in the incremental
// parser the teacher's one-shot io.Reader version didn't have to worry about.
func feedAll(t *testing.T, f *Frame, raw []byte, chunk int) int {
	t.Helper()
	pos := 0
	for f.BytesNeeded() > 0 {
		end := pos + chunk
		if end > len(raw) {
			end = len(raw)
		}
		if pos >= end {
			t.Fatalf("ran out of bytes before header was ready, needed %d more", f.BytesNeeded())
		}
		n := f.FeedHeader(raw[pos:end])
		pos += n
	}
	return pos
}

func TestBytesNeededShortFrame(t *testing.T) {
	f := &Frame{}
	if got := f.BytesNeeded(); got != 2 {
		t.Fatalf("BytesNeeded() = %d, want 2", got)
	}
}

func TestParseShortBinaryFrame(t *testing.T) {
	// 0x82 0x85 <4-byte mask> masked "Hello"
	raw := []byte{0x82, 0x85, 0x37, 0xFA, 0x21, 0x3D}
	f := &Frame{}
	feedAll(t, f, raw, 1)
	if err := f.ParseHeader(); err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if f.Opcode != OpBinary || !f.Fin || !f.Masked || f.Expected != 5 {
		t.Fatalf("unexpected header: %+v", f)
	}
	wantMask := [4]byte{0x37, 0xFA, 0x21, 0x3D}
	if f.Mask != wantMask {
		t.Fatalf("Mask = %X, want %X", f.Mask, wantMask)
	}
}

func TestParseExtended16Length(t *testing.T) {
	raw := []byte{0x82, 126, 0x01, 0x2C}
	f := &Frame{}
	feedAll(t, f, raw, 3)
	if err := f.ParseHeader(); err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if f.Expected != 300 {
		t.Fatalf("Expected = %d, want 300", f.Expected)
	}
}

func TestParseRSVSetIsProtocolViolation(t *testing.T) {
	f := &Frame{}
	feedAll(t, f, []byte{0xC2, 0x00}, 2)
	err := f.ParseHeader()
	if err == nil {
		t.Fatal("expected error for RSV bit set")
	}
	var e *Error
	if !asError(err, &e) || e.Kind != KindProtocolViolation {
		t.Fatalf("got %v, want KindProtocolViolation", err)
	}
}

func TestControlFrameFragmentedIsProtocolViolation(t *testing.T) {
	f := &Frame{}
	// opcode 0x8 (close), fin=0
	feedAll(t, f, []byte{0x08, 0x00}, 2)
	if err := f.ParseHeader(); err == nil {
		t.Fatal("expected error for fragmented control frame")
	}
}

func TestControlFrameTooLongIsProtocolViolation(t *testing.T) {
	f := &Frame{}
	feedAll(t, f, []byte{0x89, 126, 0x00, 0x80}, 4)
	if err := f.ParseHeader(); err == nil {
		t.Fatal("expected error for over-long control frame")
	}
}

func TestContinuationFastPathTreatedAsBinary(t *testing.T) {
	f := &Frame{}
	// opcode 0x0 (continuation), fin=0, len=5
	feedAll(t, f, []byte{0x00, 0x05}, 2)
	if err := f.ParseHeader(); err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if f.Opcode != OpBinary {
		t.Fatalf("Opcode = %v, want OpBinary (continuation fast-path)", f.Opcode)
	}
}

func TestApplyMaskIsInvolutive(t *testing.T) {
	f := &Frame{Masked: true, Mask: [4]byte{0x37, 0xFA, 0x21, 0x3D}}
	orig := []byte("Hello, World! This spans more than four bytes.")
	buf := append([]byte(nil), orig...)

	f.ApplyMask(buf, len(buf))
	if reflect.DeepEqual(buf, orig) {
		t.Fatal("masking did not change the buffer")
	}

	f.Relayed = 0 // reapply from the same cumulative offset
	f.ApplyMask(buf, len(buf))
	if !reflect.DeepEqual(buf, orig) {
		t.Fatalf("double mask did not restore original: got %q want %q", buf, orig)
	}
}

func TestApplyMaskAcrossPartialReads(t *testing.T) {
	mask := [4]byte{0x01, 0x02, 0x03, 0x04}
	orig := []byte{10, 20, 30, 40, 50, 60, 70}

	whole := &Frame{Masked: true, Mask: mask}
	wholeBuf := append([]byte(nil), orig...)
	whole.ApplyMask(wholeBuf, len(wholeBuf))

	chunked := &Frame{Masked: true, Mask: mask}
	chunkedBuf := append([]byte(nil), orig...)
	chunked.ApplyMask(chunkedBuf[0:3], 3)
	chunked.ApplyMask(chunkedBuf[3:7], 4)

	if !reflect.DeepEqual(wholeBuf, chunkedBuf) {
		t.Fatalf("chunked masking diverged: whole=%v chunked=%v", wholeBuf, chunkedBuf)
	}
}

func TestFillOutHeaderThresholds(t *testing.T) {
	cases := []struct {
		length   int64
		wantUsed int
		wantByte1 byte
	}{
		{0, 2, 0},
		{125, 2, 125},
		{126, 4, 126},
		{65535, 4, 126},
		{65536, 10, 127},
	}
	for _, c := range cases {
		hdr, used := FillOutHeader(c.length)
		if used != c.wantUsed {
			t.Errorf("length=%d: used=%d, want %d", c.length, used, c.wantUsed)
		}
		if hdr[1] != c.wantByte1 {
			t.Errorf("length=%d: byte1=%d, want %d", c.length, hdr[1], c.wantByte1)
		}
		if hdr[0] != finBit|byte(OpBinary) {
			t.Errorf("length=%d: byte0=%X, want fin|binary", c.length, hdr[0])
		}
	}
}

func TestFillOutHeader300Bytes(t *testing.T) {
	hdr, used := FillOutHeader(300)
	want := []byte{0x82, 0x7E, 0x01, 0x2C}
	if used != 4 || !reflect.DeepEqual(hdr, want) {
		t.Fatalf("FillOutHeader(300) = %X (used %d), want %X", hdr, used, want)
	}
}

// asError is a small errors.As shim kept local so this test file doesn't need
// to import the standard errors package just for one helper.
func asError(err error, target **Error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	*target = e
	return true
}
