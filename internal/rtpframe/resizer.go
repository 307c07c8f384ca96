// Package rtpframe implements RTP header parsing and the output-duration
// repacketizer (the "resizer" of spec.md section 3), built on
// github.com/pion/rtp for wire (de)serialization.
package rtpframe

import (
	"bytes"
	"fmt"

	"github.com/pion/rtp"
)

// Resizer reframes a stream of RTP packets to a fixed number of payload
// octets per output packet (spec.md's Z<ms> modifier: "nsamples =
// (ms/10)*80"). It assumes one octet per sample, true of the G.711-class
// codecs this relay plays and records.
type Resizer struct {
	outputSamples uint32

	buf         bytes.Buffer
	initialized bool
	header      rtp.Header
	seq         uint16
	ts          uint32
}

// NewResizer creates a Resizer targeting outputSamples octets per output
// packet. Callers must not construct one with outputSamples <= 0; that
// case means "no resizing" and is handled by skipping the resizer
// entirely (spec.md section 4.2 step 5).
func NewResizer(outputSamples int) *Resizer {
	return &Resizer{outputSamples: uint32(outputSamples)}
}

// OutputSamples returns the configured output frame size.
func (r *Resizer) OutputSamples() int {
	return int(r.outputSamples)
}

// Push accumulates pkt's RTP payload and returns zero or more
// repacketized datagrams, each carrying exactly OutputSamples() octets.
// Partial tail data is buffered for the next call.
func (r *Resizer) Push(pkt []byte) ([][]byte, error) {
	var in rtp.Packet
	if err := in.Unmarshal(pkt); err != nil {
		return nil, fmt.Errorf("rtpframe: unmarshal: %w", err)
	}

	if !r.initialized {
		r.header = in.Header
		r.header.Marker = false
		r.seq = in.SequenceNumber
		r.ts = in.Timestamp
		r.initialized = true
	}
	r.header.PayloadType = in.PayloadType
	r.header.SSRC = in.SSRC

	r.buf.Write(in.Payload)

	var out [][]byte
	for uint32(r.buf.Len()) >= r.outputSamples {
		payload := make([]byte, r.outputSamples)
		copy(payload, r.buf.Next(int(r.outputSamples)))

		hdr := r.header
		hdr.SequenceNumber = r.seq
		hdr.Timestamp = r.ts

		b, err := (&rtp.Packet{Header: hdr, Payload: payload}).Marshal()
		if err != nil {
			return out, fmt.Errorf("rtpframe: marshal: %w", err)
		}
		out = append(out, b)

		r.seq++
		r.ts += r.outputSamples
	}

	return out, nil
}
