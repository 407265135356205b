package sound

import (
	"fmt"

	"github.com/oshokin/stop-the-game/internal/config"
)

// NewBackend builds the backend selected in the sound settings.
func NewBackend(cfg config.Sound) (Backend, error) {
	switch cfg.Backend {
	case config.SoundBackendBeep, "":
		return NewBeepBackend(cfg.Volume), nil
	case config.SoundBackendCommand:
		return NewCommandBackend(cfg.Command, nil), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownSoundBackend, cfg.Backend)
	}
}
