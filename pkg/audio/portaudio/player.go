package portaudio

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/auricle-ai/auricle/pkg/audio"
)

const playerChunk = 1024

// Compile-time check that *Player satisfies audio.Player.
var _ audio.Player = (*Player)(nil)

// Player renders mono 16-bit little-endian PCM on the default output device
// using blocking writes. Play holds an internal lock, so overlapping clips
// serialise rather than mix.
type Player struct {
	mu     sync.Mutex
	closed bool
}

// NewPlayer acquires PortAudio and returns a Player. Callers must Close it
// to release the library.
func NewPlayer() (*Player, error) {
	if err := acquirePortAudio(); err != nil {
		return nil, fmt.Errorf("%w: %v", audio.ErrDeviceUnavailable, err)
	}
	return &Player{}, nil
}

// Play implements audio.Player. It blocks until the clip has drained or ctx
// is cancelled; on cancellation the stream is aborted mid-clip.
func (p *Player) Play(ctx context.Context, pcm []byte, sampleRate int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("%w: player is closed", audio.ErrDeviceUnavailable)
	}
	if len(pcm) == 0 {
		return nil
	}
	if sampleRate <= 0 {
		return fmt.Errorf("portaudio: invalid sample rate %d", sampleRate)
	}

	samples := decodePCM16(pcm)

	buf := make([]int16, playerChunk)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), len(buf), &buf)
	if err != nil {
		return fmt.Errorf("%w: open output stream: %v", audio.ErrDeviceUnavailable, err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("%w: start output stream: %v", audio.ErrDeviceUnavailable, err)
	}
	defer stream.Stop()

	for off := 0; off < len(samples); off += playerChunk {
		if err := ctx.Err(); err != nil {
			stream.Abort()
			return err
		}
		n := copy(buf, samples[off:])
		// Zero-pad the tail chunk so stale samples are not replayed.
		for i := n; i < len(buf); i++ {
			buf[i] = 0
		}
		if err := stream.Write(); err != nil {
			return fmt.Errorf("%w: write: %v", audio.ErrDeviceUnavailable, err)
		}
	}
	return nil
}

// Close implements audio.Player. Idempotent.
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	releasePortAudio()
}

func decodePCM16(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples
}
