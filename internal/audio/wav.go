// Package audio writes and inspects the PCM WAV files exchanged with speech
// providers.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

const (
	pcmFormat     = 1
	bitsPerSample = 16
)

// HeaderSize is the length of the canonical PCM WAV header.
const HeaderSize = 44

// wavHeader is the canonical 44 byte RIFF/WAVE header for PCM audio.
type wavHeader struct {
	RIFF          [4]byte
	ChunkSize     uint32
	WAVE          [4]byte
	Fmt           [4]byte
	FmtSize       uint32
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Data          [4]byte
	DataSize      uint32
}

// Format describes a PCM16 WAV stream.
type Format struct {
	SampleRate int
	Channels   int
	DataBytes  int
}

// Duration is the playback length of the data chunk.
func (f Format) Duration() time.Duration {
	bytesPerSecond := f.SampleRate * f.Channels * bitsPerSample / 8
	if bytesPerSecond == 0 {
		return 0
	}
	return time.Duration(f.DataBytes) * time.Second / time.Duration(bytesPerSecond)
}

// WritePCM16 writes mono PCM16LE samples as a WAV stream.
func WritePCM16(out io.Writer, pcm []byte, sampleRate int) error {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	h := wavHeader{
		RIFF:          [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(HeaderSize - 8 + len(pcm)),
		WAVE:          [4]byte{'W', 'A', 'V', 'E'},
		Fmt:           [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   pcmFormat,
		Channels:      1,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * bitsPerSample / 8),
		BlockAlign:    bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Data:          [4]byte{'d', 'a', 't', 'a'},
		DataSize:      uint32(len(pcm)),
	}
	if err := binary.Write(out, binary.LittleEndian, h); err != nil {
		return err
	}
	_, err := out.Write(pcm)
	return err
}

// WriteSilenceFile writes d of mono silence to path.
func WriteSilenceFile(path string, d time.Duration, sampleRate int) error {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	samples := int(d.Seconds() * float64(sampleRate))
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WritePCM16(f, make([]byte, samples*2), sampleRate); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

var errNotWAV = errors.New("not a PCM WAV stream")

// ReadFormat parses the header written by WritePCM16 or a provider that
// emits the canonical layout.
func ReadFormat(r io.Reader) (Format, error) {
	var h wavHeader
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return Format{}, fmt.Errorf("read wav header: %w", err)
	}
	if string(h.RIFF[:]) != "RIFF" || string(h.WAVE[:]) != "WAVE" || h.AudioFormat != pcmFormat {
		return Format{}, errNotWAV
	}
	return Format{
		SampleRate: int(h.SampleRate),
		Channels:   int(h.Channels),
		DataBytes:  int(h.DataSize),
	}, nil
}
