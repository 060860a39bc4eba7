package sink

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"go.uber.org/zap"
)

// oto context singleton — one audio device context per process. Its sample
// rate is fixed by whichever player starts first.
var (
	otoCtx      *oto.Context
	otoRate     int
	otoInitOnce sync.Once
	otoInitErr  error
)

// ensureOtoContext initializes the oto audio context on first use.
func ensureOtoContext(sampleRate int) (*oto.Context, error) {
	otoInitOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: 2,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   50 * time.Millisecond, // Reduce OS AudioQueue from default ~100ms
		}
		var readyChan chan struct{}
		otoCtx, readyChan, otoInitErr = oto.NewContext(op)
		if otoInitErr != nil {
			return
		}
		otoRate = sampleRate
		<-readyChan
	})
	return otoCtx, otoInitErr
}

// Player plays an instance's sample stream on the system audio device. oto
// mixes multiple players onto the one device context, so every instance can
// have its own.
type Player struct {
	log    *zap.Logger
	player *oto.Player
}

func NewPlayer(log *zap.Logger) *Player {
	if log == nil {
		log = zap.NewNop()
	}
	return &Player{log: log}
}

func (p *Player) Start(r io.Reader, sampleRate int) error {
	ctx, err := ensureOtoContext(sampleRate)
	if err != nil {
		return fmt.Errorf("oto audio not available: %w", err)
	}
	if otoRate != sampleRate {
		// The device context was opened at another instance's rate and
		// cannot be reopened; playback speed for this stream is skewed.
		p.log.Warn("audio device rate differs from core rate",
			zap.Int("device_rate", otoRate),
			zap.Int("core_rate", sampleRate))
	}

	player := ctx.NewPlayer(r)
	// Reduce mux player buffer from default 96000 bytes (0.5s) to ~19200
	// bytes. Prevents large internal buffer accumulation at startup.
	player.SetBufferSize(19200)
	player.Play()
	p.player = player
	return nil
}

func (p *Player) Close() error {
	if p.player != nil {
		return p.player.Close()
	}
	return nil
}
