// Package audio moves caller audio toward speech recognition and agent audio
// back toward the telephony link.
//
// [State] is the shared per-call flag block, [Ingress] the caller-to-STT path
// with its disconnect spill buffer, and [Egress] the TTS-to-caller path with
// its clear/mark framing.
package audio

import (
	"sync"
	"time"
)

// State tracks the per-call audio flags shared between the ingress and egress
// paths. All methods are safe for concurrent use.
//
// While the agent is speaking, caller audio is never forwarded to speech
// recognition; that keeps the agent's own voice (leaking through echo paths)
// out of the transcript.
type State struct {
	mu sync.Mutex

	speaking      bool
	ttsInProgress bool

	lastActivity     time.Time
	lastChunkEmitted time.Time
}

// NewState returns a State with activity stamped at now so silence timers do
// not fire before the first frame.
func NewState() *State {
	now := time.Now()
	return &State{lastActivity: now}
}

// SetSpeaking marks whether agent audio is currently playing out to the caller.
func (s *State) SetSpeaking(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speaking = v
}

// Speaking reports whether agent audio is playing out.
func (s *State) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// SetTTSInProgress marks whether a synthesis stream is actively producing.
func (s *State) SetTTSInProgress(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ttsInProgress = v
}

// TTSInProgress reports whether a synthesis stream is actively producing.
func (s *State) TTSInProgress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ttsInProgress
}

// SuppressSTT reports whether inbound caller audio must be withheld from
// speech recognition. True whenever the agent is speaking.
func (s *State) SuppressSTT() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// TouchActivity stamps the caller-audio activity clock.
func (s *State) TouchActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
}

// LastActivity returns when caller audio was last observed.
func (s *State) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// TouchChunkEmitted stamps the outbound-audio clock.
func (s *State) TouchChunkEmitted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastChunkEmitted = time.Now()
}

// LastChunkEmitted returns when agent audio was last sent toward the caller,
// or the zero time if none has been.
func (s *State) LastChunkEmitted() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastChunkEmitted
}
