package rtpframe_test

import (
	"testing"

	"github.com/pion/rtp"

	"github.com/dantte-lp/relayd/internal/rtpframe"
)

func marshalPacket(t *testing.T, seq uint16, ts uint32, payload []byte) []byte {
	t.Helper()
	pkt := rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    0,
			SequenceNumber: seq,
			Timestamp:      ts,
			SSRC:           1,
		},
		Payload: payload,
	}
	b, err := pkt.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestResizerSplitsAcrossInputPackets(t *testing.T) {
	r := rtpframe.NewResizer(160)

	in1 := marshalPacket(t, 1000, 8000, make([]byte, 80))
	out1, err := r.Push(in1)
	if err != nil {
		t.Fatalf("Push 1: %v", err)
	}
	if len(out1) != 0 {
		t.Fatalf("expected no output yet, got %d packets", len(out1))
	}

	in2 := marshalPacket(t, 1001, 8080, make([]byte, 80))
	out2, err := r.Push(in2)
	if err != nil {
		t.Fatalf("Push 2: %v", err)
	}
	if len(out2) != 1 {
		t.Fatalf("expected exactly one output packet, got %d", len(out2))
	}

	var out rtp.Packet
	if err := out.Unmarshal(out2[0]); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	if len(out.Payload) != 160 {
		t.Fatalf("payload length = %d, want 160", len(out.Payload))
	}
	if out.SequenceNumber != 1000 {
		t.Fatalf("sequence number = %d, want 1000", out.SequenceNumber)
	}
}

func TestResizerPreservesSSRCAndPayloadType(t *testing.T) {
	r := rtpframe.NewResizer(160)
	in := marshalPacket(t, 1, 0, make([]byte, 320))

	out, err := r.Push(in)
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected two output packets, got %d", len(out))
	}

	var p0, p1 rtp.Packet
	if err := p0.Unmarshal(out[0]); err != nil {
		t.Fatalf("unmarshal out[0]: %v", err)
	}
	if err := p1.Unmarshal(out[1]); err != nil {
		t.Fatalf("unmarshal out[1]: %v", err)
	}
	if p0.SSRC != 1 || p1.SSRC != 1 {
		t.Fatalf("SSRC not preserved: %d, %d", p0.SSRC, p1.SSRC)
	}
	if p0.PayloadType != 0 || p1.PayloadType != 0 {
		t.Fatalf("payload type not preserved: %d, %d", p0.PayloadType, p1.PayloadType)
	}
	if p1.SequenceNumber != p0.SequenceNumber+1 {
		t.Fatalf("sequence numbers not consecutive: %d, %d", p0.SequenceNumber, p1.SequenceNumber)
	}
	if p1.Timestamp != p0.Timestamp+160 {
		t.Fatalf("timestamps not advanced by output size: %d, %d", p0.Timestamp, p1.Timestamp)
	}
}
