package player

import (
	"fmt"
	"io"

	"github.com/go-audio/wav"
	"github.com/zaf/g711"
)

func newWAVDecoder(r io.ReadSeeker) *wav.Decoder {
	return wav.NewDecoder(r)
}

// encodeG711 encodes 16-bit little-endian linear PCM to the G.711 codec
// named by its RTP static payload type, frame by frame via
// github.com/zaf/g711's per-sample encoders.
func encodeG711(lpcm []byte, codec int) ([]byte, error) {
	var frame func(int16) byte
	switch codec {
	case PayloadPCMU:
		frame = g711.EncodeUlawFrame
	case PayloadPCMA:
		frame = g711.EncodeAlawFrame
	default:
		return nil, fmt.Errorf("player: unsupported codec %d", codec)
	}

	out := make([]byte, 0, len(lpcm)/2)
	for i := 0; i+1 < len(lpcm); i += 2 {
		sample := int16(lpcm[i]) | int16(lpcm[i+1])<<8
		out = append(out, frame(sample))
	}
	return out, nil
}
