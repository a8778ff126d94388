package jianpu

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"time"

	intaudio "github.com/cbegin/jianpu-go/internal/audio"
	intsched "github.com/cbegin/jianpu-go/internal/scheduler"
	intsynth "github.com/cbegin/jianpu-go/internal/synth"
)

const renderBlock = 1024

type offlineTimer struct{}

func (offlineTimer) Stop() bool { return false }

// RenderRequest renders req with the built-in synth, without an audio
// device. The result is interleaved stereo covering the phrase and its
// release tail; the voices are released at the same point a live playback
// would release them.
func RenderRequest(req Request, sampleRate int) ([]float32, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	mixer := intaudio.NewMixer(sampleRate)
	var release func()
	sched := intsched.New(intaudio.FrameClock{Mixer: mixer}, intsynth.NewResolver(mixer), intsched.Options{
		AfterFunc: func(_ time.Duration, f func()) intsched.Timer {
			release = f
			return offlineTimer{}
		},
	})
	pb, err := sched.Play(context.Background(), req)
	if err != nil {
		return nil, err
	}
	frames := int(math.Ceil(pb.Tail.Seconds() * float64(sampleRate)))
	out := make([]float32, frames*2)
	for pos := 0; pos < len(out); pos += renderBlock * 2 {
		end := min(pos+renderBlock*2, len(out))
		mixer.Process(out[pos:end])
	}
	release()
	return out, nil
}

// RenderPhrase renders phrase at the default tempo with the piano preset.
func RenderPhrase(phrase string, sampleRate int) ([]float32, error) {
	return RenderRequest(Request{Phrase: phrase}, sampleRate)
}

type wavHeader struct {
	RIFF          [4]byte
	ChunkSize     uint32
	WAVE          [4]byte
	Fmt           [4]byte
	FmtSize       uint32
	Format        uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Data          [4]byte
	DataSize      uint32
}

const wavFormatFloat = 3

// EncodeWAVFloat32LE wraps interleaved float32 samples in an IEEE-float WAV
// container.
func EncodeWAVFloat32LE(samples []float32, sampleRate int, channels int) []byte {
	dataSize := uint32(len(samples) * 4)
	h := wavHeader{
		RIFF:          [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		WAVE:          [4]byte{'W', 'A', 'V', 'E'},
		Fmt:           [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		Format:        wavFormatFloat,
		Channels:      uint16(channels),
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * channels * 4),
		BlockAlign:    uint16(channels * 4),
		BitsPerSample: 32,
		Data:          [4]byte{'d', 'a', 't', 'a'},
		DataSize:      dataSize,
	}
	var buf bytes.Buffer
	buf.Grow(44 + int(dataSize))
	_ = binary.Write(&buf, binary.LittleEndian, h)
	_ = binary.Write(&buf, binary.LittleEndian, samples)
	return buf.Bytes()
}
