package sound

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
)

// resampleQuality is passed to beep.Resample when a file differs from the device rate.
const resampleQuality = 4

// ErrUnsupportedFormat is returned for files beep cannot decode.
var ErrUnsupportedFormat = errors.New("unsupported audio format; use wav or mp3")

// BeepBackend plays wav and mp3 files in a loop through the speaker package.
type BeepBackend struct {
	// volume is a linear gain in [0, 1].
	volume float64
	// sampleRate is the rate the speaker was initialized with.
	sampleRate beep.SampleRate
	// mu protects speaker initialization.
	mu sync.Mutex
}

// NewBeepBackend creates a backend with a linear volume in [0, 1].
func NewBeepBackend(volume float64) *BeepBackend {
	return &BeepBackend{volume: volume}
}

// Start decodes the file and loops it until the handle is stopped.
func (b *BeepBackend) Start(_ context.Context, file string) (Handle, error) {
	f, err := os.Open(file) //nolint:gosec // Path comes from the user's own settings.
	if err != nil {
		return nil, fmt.Errorf("open sound file: %w", err)
	}

	streamer, format, err := decode(file, f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	var s beep.Streamer = beep.Loop(-1, streamer)

	b.mu.Lock()

	if b.sampleRate == 0 {
		if err = speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10)); err != nil {
			b.mu.Unlock()

			_ = streamer.Close()

			return nil, fmt.Errorf("init speaker: %w", err)
		}

		b.sampleRate = format.SampleRate
	}

	if format.SampleRate != b.sampleRate {
		s = beep.Resample(resampleQuality, format.SampleRate, b.sampleRate, s)
	}

	b.mu.Unlock()

	ctrl := &beep.Ctrl{Streamer: b.withVolume(s)}
	speaker.Play(ctrl)

	return &beepHandle{ctrl: ctrl, source: streamer}, nil
}

// withVolume maps the linear volume onto a base 2 effects.Volume.
func (b *BeepBackend) withVolume(s beep.Streamer) beep.Streamer {
	if b.volume >= 1 {
		return s
	}

	return &effects.Volume{
		Streamer: s,
		Base:     2,
		Volume:   math.Log2(math.Max(b.volume, math.SmallestNonzeroFloat64)),
		Silent:   b.volume <= 0,
	}
}

// decode picks the decoder by file extension.
func decode(file string, f *os.File) (beep.StreamSeekCloser, beep.Format, error) {
	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
		err      error
	)

	switch strings.ToLower(filepath.Ext(file)) {
	case ".wav":
		streamer, format, err = wav.Decode(f)
	case ".mp3":
		streamer, format, err = mp3.Decode(f)
	default:
		return nil, beep.Format{}, fmt.Errorf("%s: %w", file, ErrUnsupportedFormat)
	}

	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("decode %s: %w", file, err)
	}

	return streamer, format, nil
}

// beepHandle detaches the streamer from the speaker mixer.
type beepHandle struct {
	ctrl   *beep.Ctrl
	source beep.StreamSeekCloser
	once   sync.Once
}

func (h *beepHandle) Stop() error {
	var err error

	h.once.Do(func() {
		speaker.Lock()
		h.ctrl.Streamer = nil
		speaker.Unlock()

		err = h.source.Close()
	})

	return err
}
