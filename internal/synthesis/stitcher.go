package synthesis

import (
	"errors"
	"fmt"
	"time"
)

var ErrFormatMismatch = errors.New("audio chunks have different formats")

// DefaultCrossfade is the overlap between consecutive chunks.
const DefaultCrossfade = 500 * time.Millisecond

// Stitch joins parts in order, overlapping each boundary with a linear
// crossfade. The overlap shrinks to fit parts shorter than the crossfade.
func Stitch(parts []*PCM, crossfade time.Duration) (*PCM, error) {
	if len(parts) == 0 {
		return nil, errors.New("no audio chunks to stitch")
	}
	first := parts[0]
	total := 0
	for i, p := range parts {
		if p.SampleRate != first.SampleRate || p.Channels != first.Channels {
			return nil, fmt.Errorf("%w: chunk %d is %d Hz/%d ch, want %d Hz/%d ch",
				ErrFormatMismatch, i, p.SampleRate, p.Channels, first.SampleRate, first.Channels)
		}
		total += len(p.Samples)
	}

	ch := first.Channels
	fadeFrames := int(crossfade * time.Duration(first.SampleRate) / time.Second)
	out := make([]int16, 0, total)
	out = append(out, first.Samples...)

	for _, next := range parts[1:] {
		overlap := min(fadeFrames, len(out)/ch, next.Frames())
		start := len(out) - overlap*ch
		for f := range overlap {
			// Gain ramps from 1 to 0 on the tail and 0 to 1 on the head.
			w := float64(f+1) / float64(overlap+1)
			for c := range ch {
				i := f*ch + c
				mixed := float64(out[start+i])*(1-w) + float64(next.Samples[i])*w
				out[start+i] = clampSample(mixed)
			}
		}
		out = append(out, next.Samples[overlap*ch:]...)
	}

	return &PCM{SampleRate: first.SampleRate, Channels: ch, Samples: out}, nil
}

func clampSample(v float64) int16 {
	switch {
	case v > 32767:
		return 32767
	case v < -32768:
		return -32768
	default:
		return int16(v)
	}
}
