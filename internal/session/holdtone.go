package session

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"
)

const (
	// holdFrameSize is one 20 ms μ-law frame at 8 kHz.
	holdFrameSize = 160

	holdFrameInterval = 20 * time.Millisecond

	// wavHeaderSize is the canonical RIFF header length. Hold tone assets are
	// exported as μ-law WAV; the header must not reach the wire.
	wavHeaderSize = 44
)

// StripWAVHeader removes the canonical RIFF header from a μ-law WAV asset,
// returning the raw payload. Headerless input passes through unchanged.
func StripWAVHeader(b []byte) []byte {
	if len(b) > wavHeaderSize && bytes.HasPrefix(b, []byte("RIFF")) {
		return b[wavHeaderSize:]
	}
	return b
}

// LoadHoldTone reads a μ-law WAV asset from disk and strips its header.
func LoadHoldTone(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("session: load hold tone: %w", err)
	}
	return StripWAVHeader(b), nil
}

// playHoldTone loops the configured tone to the caller in real-time frames
// until stop closes. Send failures end the loop quietly; the link is already
// reporting them.
func (c *Controller) playHoldTone(ctx context.Context, stop <-chan struct{}) {
	tone := c.cfg.HoldTone
	if len(tone) == 0 {
		return
	}

	ticker := time.NewTicker(holdFrameInterval)
	defer ticker.Stop()

	offset := 0
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			end := offset + holdFrameSize
			if end > len(tone) {
				end = len(tone)
			}
			if err := c.link.SendMedia(ctx, tone[offset:end]); err != nil {
				return
			}
			offset = end
			if offset >= len(tone) {
				offset = 0
			}
		}
	}
}
