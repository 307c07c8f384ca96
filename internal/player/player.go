// Package player implements the synthetic RTP generator spec.md treats
// as an out-of-scope collaborator (the "prompt player"): it decodes a
// WAV prompt with github.com/go-audio/wav, encodes it to a G.711 variant
// with github.com/zaf/g711, and paces 20ms RTP frames to wall clock.
package player

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/pion/rtp"

	"github.com/dantte-lp/relayd/internal/relay"
)

const (
	sampleRate      = 8000
	ptime           = 20 * time.Millisecond
	samplesPerFrame = 160 // 20ms at 8kHz
)

// RTP static payload type numbers accepted in a P command's codec list
// (spec.md section 4.1: "first codec that builds").
const (
	PayloadPCMU = 0
	PayloadPCMA = 8
)

// Source is a relay.PlaySource backed by a decoded, encoded prompt file.
type Source struct {
	frames      [][]byte
	repeat      int
	played      int
	idx         int
	next        time.Time
	seq         uint16
	ts          uint32
	ssrc        uint32
	payloadType uint8
}

// Open decodes path as 8kHz mono PCM and encodes it with the first codec
// in codecs that builds successfully. repeat is the total number of
// plays, per spec.md's P<n> modifier (n == 0 plays the prompt once).
func Open(path string, codecs []int, repeat int) (*Source, error) {
	pcm, err := decodeWAV(path)
	if err != nil {
		return nil, fmt.Errorf("player: decode %s: %w", path, err)
	}

	for _, codec := range codecs {
		frames, ferr := encodeFrames(pcm, codec)
		if ferr != nil {
			continue
		}
		return &Source{
			frames:      frames,
			repeat:      repeat,
			seq:         uint16(rand.Uint32()),
			ts:          rand.Uint32(),
			ssrc:        rand.Uint32(),
			payloadType: uint8(codec),
		}, nil
	}

	return nil, relay.ErrPlayerFailed
}

// Next implements relay.PlaySource.
func (s *Source) Next(now time.Time) ([]byte, relay.PlayResult) {
	if s.next.IsZero() {
		s.next = now
	}
	if now.Before(s.next) {
		return nil, relay.RTPSLater
	}

	if s.idx >= len(s.frames) {
		s.idx = 0
		s.played++
		if s.played > s.repeat {
			return nil, relay.RTPSEOF
		}
	}

	payload := s.frames[s.idx]
	pkt := rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    s.payloadType,
			SequenceNumber: s.seq,
			Timestamp:      s.ts,
			SSRC:           s.ssrc,
		},
		Payload: payload,
	}

	b, err := pkt.Marshal()

	s.idx++
	s.seq++
	s.ts += samplesPerFrame
	s.next = s.next.Add(ptime)

	if err != nil {
		return nil, relay.RTPSEOF
	}
	return b, relay.RTPSData
}

// Close releases Source's resources. There are none held beyond the
// decoded frame buffer, so this always succeeds.
func (s *Source) Close() error {
	return nil
}

func decodeWAV(path string) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := newWAVDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("player: read pcm: %w", err)
	}
	if buf.Format.SampleRate != sampleRate || buf.Format.NumChannels != 1 {
		return nil, fmt.Errorf("player: %s must be 8kHz mono, got %dHz/%dch",
			path, buf.Format.SampleRate, buf.Format.NumChannels)
	}

	return buf.Data, nil
}

func encodeFrames(pcm []int, codec int) ([][]byte, error) {
	lpcm := make([]byte, len(pcm)*2)
	for i, sample := range pcm {
		lpcm[2*i] = byte(sample)
		lpcm[2*i+1] = byte(sample >> 8)
	}

	encoded, err := encodeG711(lpcm, codec)
	if err != nil {
		return nil, err
	}

	var frames [][]byte
	for off := 0; off+samplesPerFrame <= len(encoded); off += samplesPerFrame {
		frame := make([]byte, samplesPerFrame)
		copy(frame, encoded[off:off+samplesPerFrame])
		frames = append(frames, frame)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("player: encoded prompt shorter than one frame")
	}

	return frames, nil
}
