package audio

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

const (
	DefaultBufferSize = 40 * time.Millisecond
	readyPoll         = 10 * time.Millisecond
)

// Device plays a Mixer through the shared ebiten audio context. It is the
// real-time clock: Now is the mixer's frame count, which only advances once
// the device pulls samples.
type Device struct {
	mixer      *Mixer
	bufferSize time.Duration

	mu      sync.Mutex
	ctx     *ebitaudio.Context
	player  *ebitaudio.Player
	running atomic.Bool
}

func NewDevice(mixer *Mixer) *Device {
	return &Device{mixer: mixer, bufferSize: DefaultBufferSize}
}

func (d *Device) Now() float64 { return d.mixer.Now() }

func (d *Device) IsRunning() bool { return d.running.Load() }

// Activate opens the output stream and blocks until the audio context
// reports ready or ctx ends. It is a no-op once running.
func (d *Device) Activate(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return nil
	}
	if d.player == nil {
		actx, err := sharedAudioContext(d.mixer.SampleRate())
		if err != nil {
			return err
		}
		pl, err := actx.NewPlayerF32(NewStreamReader(d.mixer))
		if err != nil {
			return err
		}
		pl.SetBufferSize(d.bufferSize)
		d.ctx = actx
		d.player = pl
	}
	d.player.Play()

	ticker := time.NewTicker(readyPoll)
	defer ticker.Stop()
	for !d.ctx.IsReady() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	d.running.Store(true)
	return nil
}

// Close stops output. The shared context itself lives for the process.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running.Store(false)
	if d.player == nil {
		return nil
	}
	d.player.Pause()
	err := d.player.Close()
	d.player = nil
	return err
}
