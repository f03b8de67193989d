package synthesis

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWAVRoundTripKeepsFormat(t *testing.T) {
	in := &PCM{SampleRate: 24000, Channels: 1, Samples: []int16{0, 1000, -1000, 32767, -32768}}
	var buf bytes.Buffer
	require.NoError(t, EncodeWAV(&buf, in))
	assert.Equal(t, 44+len(in.Samples)*2, buf.Len())

	out, err := DecodeWAV(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeWAVSkipsUnknownChunks(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeWAV(&buf, &PCM{SampleRate: 16000, Channels: 2, Samples: []int16{1, 2, 3, 4}}))
	raw := buf.Bytes()

	// Splice a LIST chunk with an odd payload between fmt and data.
	var spliced bytes.Buffer
	spliced.Write(raw[:36])
	spliced.WriteString("LIST")
	_ = binary.Write(&spliced, binary.LittleEndian, uint32(3))
	spliced.Write([]byte{'a', 'b', 'c', 0})
	spliced.Write(raw[36:])

	out, err := DecodeWAV(spliced.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 2, out.Channels)
	assert.Equal(t, []int16{1, 2, 3, 4}, out.Samples)
	assert.Equal(t, 2, out.Frames())
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	for _, data := range [][]byte{nil, []byte("RIFF"), []byte("RIFF\x00\x00\x00\x00WAVEdata\x00\x00\x00\x00")} {
		_, err := DecodeWAV(data)
		require.ErrorIs(t, err, ErrInvalidWAV)
	}
}

func TestPCMDuration(t *testing.T) {
	p := &PCM{SampleRate: 10, Channels: 2, Samples: make([]int16, 40)}
	assert.Equal(t, 2*time.Second, p.Duration())
}

func TestStitchCrossfades(t *testing.T) {
	a := &PCM{SampleRate: 10, Channels: 1, Samples: []int16{100, 100, 100, 100, 100}}
	b := &PCM{SampleRate: 10, Channels: 1, Samples: []int16{0, 0, 0, 0, 0}}

	// 300ms at 10 Hz is a three frame overlap.
	out, err := Stitch([]*PCM{a, b}, 300*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, []int16{100, 100, 75, 50, 25, 0, 0}, out.Samples)
	assert.Len(t, a.Samples, 5, "inputs are not modified")
}

func TestStitchShortPartsAndSingle(t *testing.T) {
	a := &PCM{SampleRate: 1000, Channels: 1, Samples: []int16{10, 20}}
	out, err := Stitch([]*PCM{a}, DefaultCrossfade)
	require.NoError(t, err)
	assert.Equal(t, a.Samples, out.Samples)

	b := &PCM{SampleRate: 1000, Channels: 1, Samples: []int16{30}}
	out, err = Stitch([]*PCM{a, b}, DefaultCrossfade)
	require.NoError(t, err)
	assert.Len(t, out.Samples, 2)
}

func TestStitchRejectsMismatch(t *testing.T) {
	_, err := Stitch([]*PCM{
		{SampleRate: 24000, Channels: 1, Samples: []int16{1}},
		{SampleRate: 16000, Channels: 1, Samples: []int16{1}},
	}, DefaultCrossfade)
	require.ErrorIs(t, err, ErrFormatMismatch)

	_, err = Stitch(nil, DefaultCrossfade)
	require.Error(t, err)
}
