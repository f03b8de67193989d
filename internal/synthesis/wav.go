package synthesis

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

var ErrInvalidWAV = errors.New("invalid wav data")

// PCM is interleaved 16-bit linear PCM audio.
type PCM struct {
	SampleRate int
	Channels   int
	Samples    []int16
}

// Frames is the number of sample frames across all channels.
func (p *PCM) Frames() int {
	if p.Channels == 0 {
		return 0
	}
	return len(p.Samples) / p.Channels
}

// Duration is the playback length of p.
func (p *PCM) Duration() time.Duration {
	if p.SampleRate == 0 {
		return 0
	}
	return time.Duration(p.Frames()) * time.Second / time.Duration(p.SampleRate)
}

type wavFormat struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

// DecodeWAV parses a RIFF/WAVE PCM16 file, skipping unknown chunks.
func DecodeWAV(data []byte) (*PCM, error) {
	r := bytes.NewReader(data)
	var header [12]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("%w: short header", ErrInvalidWAV)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%w: not a RIFF/WAVE file", ErrInvalidWAV)
	}

	var (
		format  *wavFormat
		samples []int16
	)
	for {
		var id [4]byte
		var size uint32
		if _, err := io.ReadFull(r, id[:]); err != nil {
			break
		}
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return nil, fmt.Errorf("%w: truncated chunk header", ErrInvalidWAV)
		}
		switch string(id[:]) {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("%w: fmt chunk too small", ErrInvalidWAV)
			}
			var f wavFormat
			if err := binary.Read(r, binary.LittleEndian, &f); err != nil {
				return nil, fmt.Errorf("%w: truncated fmt chunk", ErrInvalidWAV)
			}
			if _, err := r.Seek(int64(size-16), io.SeekCurrent); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
			}
			format = &f
		case "data":
			if format == nil {
				return nil, fmt.Errorf("%w: data before fmt", ErrInvalidWAV)
			}
			n := min(int(size), r.Len()) / 2
			samples = make([]int16, n)
			if err := binary.Read(r, binary.LittleEndian, samples); err != nil {
				return nil, fmt.Errorf("%w: truncated data chunk", ErrInvalidWAV)
			}
		default:
			if _, err := r.Seek(int64(size+size%2), io.SeekCurrent); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
			}
		}
		if format != nil && samples != nil {
			break
		}
	}

	if format == nil || samples == nil {
		return nil, fmt.Errorf("%w: missing fmt or data chunk", ErrInvalidWAV)
	}
	if format.AudioFormat != 1 || format.BitsPerSample != 16 {
		return nil, fmt.Errorf("%w: only 16-bit PCM is supported", ErrInvalidWAV)
	}
	if format.Channels == 0 || format.SampleRate == 0 {
		return nil, fmt.Errorf("%w: zero channels or sample rate", ErrInvalidWAV)
	}
	return &PCM{SampleRate: int(format.SampleRate), Channels: int(format.Channels), Samples: samples}, nil
}

// EncodeWAV writes p as a canonical 44-byte-header PCM16 WAV file.
func EncodeWAV(w io.Writer, p *PCM) error {
	dataSize := uint32(len(p.Samples) * 2)
	blockAlign := uint16(p.Channels * 2)
	header := struct {
		Riff     [4]byte
		Size     uint32
		Wave     [4]byte
		Fmt      [4]byte
		FmtSize  uint32
		Format   wavFormat
		Data     [4]byte
		DataSize uint32
	}{
		Riff:    [4]byte{'R', 'I', 'F', 'F'},
		Size:    36 + dataSize,
		Wave:    [4]byte{'W', 'A', 'V', 'E'},
		Fmt:     [4]byte{'f', 'm', 't', ' '},
		FmtSize: 16,
		Format: wavFormat{
			AudioFormat:   1,
			Channels:      uint16(p.Channels),
			SampleRate:    uint32(p.SampleRate),
			ByteRate:      uint32(p.SampleRate) * uint32(blockAlign),
			BlockAlign:    blockAlign,
			BitsPerSample: 16,
		},
		Data:     [4]byte{'d', 'a', 't', 'a'},
		DataSize: dataSize,
	}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, p.Samples)
}
