// Package recorder implements the recording sink spec.md treats as an
// out-of-scope collaborator: it decodes the G.711 payload of forwarded
// RTP packets back to linear PCM and writes one WAV file per direction,
// using github.com/go-audio/wav for the container and github.com/zaf/g711
// for the codec. The exact on-disk recording format is explicitly
// unspecified ("opaque to this spec"); this package picks one.
package recorder

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/pion/rtp"
	"github.com/zaf/g711"

	"github.com/dantte-lp/relayd/internal/relay"
)

const sampleRate = 8000

// Sink is a relay.RecordSink writing one mono 16-bit WAV file per
// direction under a session-specific directory.
type Sink struct {
	files [2]*os.File
	encs  [2]*wav.Encoder
}

// Open creates "<dir>/<callID>-<fromTag>-<0|1>.wav" for each direction
// and returns a Sink that writes decoded PCM to them as packets arrive.
func Open(dir, callID, fromTag string) (*Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("recorder: mkdir %s: %w", dir, err)
	}

	s := &Sink{}
	for d := range 2 {
		name := filepath.Join(dir, fmt.Sprintf("%s-%s-%d.wav", callID, fromTag, d))
		f, err := os.Create(name)
		if err != nil {
			s.closeOpened(d)
			return nil, fmt.Errorf("recorder: create %s: %w", name, err)
		}
		s.files[d] = f
		s.encs[d] = wav.NewEncoder(f, sampleRate, 16, 1, 1)
	}

	return s, nil
}

func (s *Sink) closeOpened(upTo int) {
	for d := range upTo {
		if s.encs[d] != nil {
			_ = s.encs[d].Close()
		}
		if s.files[d] != nil {
			_ = s.files[d].Close()
		}
	}
}

// Write implements relay.RecordSink: it decodes pkt's RTP payload
// according to its RTP payload type (0 = PCMU, 8 = PCMA; anything else
// is written silently discarded since the repacketizer never changes the
// codec) and appends the resulting PCM to dir's file.
func (s *Sink) Write(dir relay.Direction, pkt []byte) error {
	var in rtp.Packet
	if err := in.Unmarshal(pkt); err != nil {
		return fmt.Errorf("recorder: unmarshal: %w", err)
	}

	pcm := make([]int, 0, len(in.Payload))
	switch in.PayloadType {
	case 0:
		for _, b := range in.Payload {
			pcm = append(pcm, int(g711.DecodeUlawFrame(b)))
		}
	case 8:
		for _, b := range in.Payload {
			pcm = append(pcm, int(g711.DecodeAlawFrame(b)))
		}
	default:
		return nil
	}

	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:   pcm,
		SourceBitDepth: 16,
	}
	return s.encs[dir].Write(buf)
}

// Close finalizes both WAV files' headers and closes the underlying
// file descriptors.
func (s *Sink) Close() error {
	var firstErr error
	for d := range 2 {
		if err := s.encs[d].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := s.files[d].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
