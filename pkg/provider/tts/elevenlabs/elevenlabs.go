// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// ElevenLabs streaming WebSocket API. It implements the tts.Provider interface.
//
// The streaming path requests μ-law 8 kHz output with the lowest latency hint
// so that chunks can be framed onto a telephony media stream without
// transcoding. The WebSocket connection is held open across utterances and
// kept warm with zero-length text pings, so only the first utterance of a call
// pays the dial and TLS handshake. The HTTP path serves as the batch fallback
// when the WebSocket stream fails or stalls mid-utterance.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/atelic-ai/voceria/pkg/provider/tts"
	"github.com/atelic-ai/voceria/pkg/types"
)

const (
	wsEndpointFmt   = "wss://api.elevenlabs.io/v1/text-to-speech/%s/stream-input?model_id=%s&output_format=%s&optimize_streaming_latency=%d"
	httpEndpointFmt = "https://api.elevenlabs.io/v1/text-to-speech/%s/stream?output_format=%s"
	voicesEndpoint  = "https://api.elevenlabs.io/v1/voices"

	defaultModel      = "eleven_flash_v2_5"
	defaultOutputFmt  = "ulaw_8000"
	defaultLatencyOpt = 4

	// defaultKeepaliveIdle is how long the held connection may sit idle before
	// a zero-length text ping goes out. ElevenLabs drops silent sockets after
	// roughly twenty seconds.
	defaultKeepaliveIdle = 10 * time.Second

	// httpChunkSize is the read granularity for the HTTP fallback body.
	httpChunkSize = 4096
)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithOutputFormat sets the audio output format (e.g., "ulaw_8000", "pcm_16000").
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// WithHTTPClient overrides the HTTP client used for the fallback and voice
// listing endpoints.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// WithHTTPEndpointFormat overrides the HTTP synthesis endpoint format string.
// Used by tests to point the fallback at a local server. The format must
// contain two verbs: voice ID and output format.
func WithHTTPEndpointFormat(format string) Option {
	return func(p *Provider) {
		p.httpEndpointFmt = format
	}
}

// WithWSEndpointFormat overrides the streaming endpoint format string. Used by
// tests to point the stream at a local server. The format must contain four
// verbs: voice ID, model, output format and latency level.
func WithWSEndpointFormat(format string) Option {
	return func(p *Provider) {
		p.wsEndpointFmt = format
	}
}

// WithKeepaliveIdle overrides how long the held connection may idle before a
// keepalive ping is sent.
func WithKeepaliveIdle(d time.Duration) Option {
	return func(p *Provider) {
		p.keepaliveIdle = d
	}
}

// Provider implements tts.Provider backed by the ElevenLabs streaming API.
//
// The streaming connection is dialed lazily on the first utterance and reused
// for later ones; [Provider.Close] releases it.
type Provider struct {
	apiKey          string
	model           string
	outputFormat    string
	latencyOpt      int
	httpClient      *http.Client
	httpEndpointFmt string
	wsEndpointFmt   string
	keepaliveIdle   time.Duration

	connMu    sync.Mutex
	conn      *websocket.Conn
	connVoice string
	inUse     bool
	lastUsed  time.Time
	stopKeep  chan struct{}
}

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:          apiKey,
		model:           defaultModel,
		outputFormat:    defaultOutputFmt,
		latencyOpt:      defaultLatencyOpt,
		httpClient:      &http.Client{},
		httpEndpointFmt: httpEndpointFmt,
		wsEndpointFmt:   wsEndpointFmt,
		keepaliveIdle:   defaultKeepaliveIdle,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ---- WebSocket message types ----

// textMessage is the JSON payload sent to ElevenLabs for each text fragment.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// generationConfig mirrors the ElevenLabs generation_config object. auto_mode
// lets the service decide generation boundaries, which minimises first-chunk
// latency for conversational turns.
type generationConfig struct {
	AutoMode bool `json:"auto_mode"`
}

// boiMessage is used for the initial "begin of input" handshake.
type boiMessage struct {
	Text             string            `json:"text"`
	VoiceSettings    *voiceSettings    `json:"voice_settings,omitempty"`
	GenerationConfig *generationConfig `json:"generation_config,omitempty"`
	XiAPIKey         string            `json:"xi_api_key"`
}

// audioResponse is the JSON message received from ElevenLabs over the WebSocket.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded audio
	IsFinal bool   `json:"isFinal"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// SynthesizeStream pipes text fragments to ElevenLabs over the held WebSocket
// and returns a channel emitting raw μ-law audio chunks. The connection is
// dialed on first use and reused for later utterances of the same voice.
//
// The returned audio channel is closed when synthesis is complete or ctx is
// cancelled. Closing the text channel sends the end-of-sequence frame and the
// stream drains to completion. Cancelling ctx mid-utterance tears the held
// connection down; the next utterance redials.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	if voice.ID == "" {
		return nil, errors.New("elevenlabs: voice.ID must not be empty")
	}

	conn, err := p.acquireConn(ctx, voice.ID)
	if err != nil {
		return nil, err
	}

	// The BOI message authenticates and configures the generation. A write
	// failure on a reused connection usually means the far end dropped it
	// while idle; redial once before giving up.
	if err := p.sendBOI(ctx, conn); err != nil {
		p.releaseConn(conn, false)
		conn, err = p.acquireConn(ctx, voice.ID)
		if err != nil {
			return nil, err
		}
		if err := p.sendBOI(ctx, conn); err != nil {
			p.releaseConn(conn, false)
			return nil, fmt.Errorf("elevenlabs: send BOI: %w", err)
		}
	}

	audioCh := make(chan []byte, 256)

	go func() {
		healthy := false
		defer func() {
			p.releaseConn(conn, healthy)
			close(audioCh)
		}()

		readDone := make(chan struct{})
		readOK := false
		go func() {
			defer close(readDone)
			emitted := false
			for {
				_, msg, err := conn.Read(ctx)
				if err != nil {
					return
				}
				audio, final, ok := parseAudioResponse(msg)
				if !ok {
					continue
				}
				if len(audio) > 0 {
					select {
					case audioCh <- audio:
					case <-ctx.Done():
						return
					}
					emitted = true
				}
				if final {
					// A final frame before any audio of this utterance is
					// the tail of an idle keepalive; skip it.
					if !emitted && len(audio) == 0 {
						continue
					}
					readOK = true
					return
				}
			}
		}()

		// Write text fragments to ElevenLabs.
		for {
			select {
			case fragment, ok := <-text:
				if !ok {
					// Text channel closed — send the end-of-sequence frame.
					if err := p.writeJSON(ctx, conn, textMessage{Text: ""}); err != nil {
						return
					}
					// Wait for the reader to finish draining audio.
					select {
					case <-readDone:
						healthy = readOK
					case <-ctx.Done():
					}
					return
				}
				if fragment == "" {
					continue
				}
				if err := p.writeJSON(ctx, conn, textMessage{Text: fragment}); err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return audioCh, nil
}

func (p *Provider) sendBOI(ctx context.Context, conn *websocket.Conn) error {
	return p.writeJSON(ctx, conn, boiMessage{
		Text: " ", // ElevenLabs requires a non-empty first text value
		VoiceSettings: &voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
		},
		GenerationConfig: &generationConfig{AutoMode: true},
		XiAPIKey:         p.apiKey,
	})
}

func (p *Provider) writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	msg, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, msg)
}

// ---- connection management ----

// acquireConn hands out the held connection, dialing if none exists or the
// voice changed. The connection stays marked in use until releaseConn.
func (p *Provider) acquireConn(ctx context.Context, voiceID string) (*websocket.Conn, error) {
	p.connMu.Lock()
	defer p.connMu.Unlock()
	if p.inUse {
		return nil, errors.New("elevenlabs: stream already in use")
	}
	if p.conn != nil && p.connVoice != voiceID {
		p.conn.Close(websocket.StatusNormalClosure, "voice changed")
		p.conn = nil
	}
	if p.conn == nil {
		wsURL := buildWSURL(p.wsEndpointFmt, voiceID, p.model, p.outputFormat, p.latencyOpt)
		conn, _, err := websocket.Dial(ctx, wsURL, nil)
		if err != nil {
			return nil, fmt.Errorf("elevenlabs: dial: %w", err)
		}
		p.conn = conn
		p.connVoice = voiceID
		if p.stopKeep == nil {
			p.stopKeep = make(chan struct{})
			go p.keepalive(p.stopKeep)
		}
	}
	p.inUse = true
	p.lastUsed = time.Now()
	return p.conn, nil
}

// releaseConn returns the connection after an utterance. An unhealthy release
// discards it so the next utterance redials.
func (p *Provider) releaseConn(conn *websocket.Conn, healthy bool) {
	p.connMu.Lock()
	defer p.connMu.Unlock()
	if p.conn != conn {
		conn.Close(websocket.StatusNormalClosure, "superseded")
		return
	}
	p.inUse = false
	p.lastUsed = time.Now()
	if !healthy {
		conn.Close(websocket.StatusNormalClosure, "stream ended unhealthy")
		p.conn = nil
		p.connVoice = ""
	}
}

// keepalive pings the held connection with zero-length text whenever it has
// idled past the threshold, so the far end does not reap it between
// utterances. Runs until stop closes.
func (p *Provider) keepalive(stop <-chan struct{}) {
	tick := p.keepaliveIdle / 2
	if tick <= 0 {
		tick = time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.connMu.Lock()
			conn := p.conn
			idle := conn != nil && !p.inUse && time.Since(p.lastUsed) >= p.keepaliveIdle
			p.connMu.Unlock()
			if !idle {
				continue
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := p.writeJSON(ctx, conn, textMessage{Text: ""})
			cancel()

			p.connMu.Lock()
			if err != nil {
				conn.Close(websocket.StatusNormalClosure, "keepalive failed")
				if p.conn == conn {
					p.conn = nil
					p.connVoice = ""
				}
			} else if p.conn == conn && !p.inUse {
				p.lastUsed = time.Now()
			}
			p.connMu.Unlock()
		}
	}
}

// Close releases the held streaming connection and stops the keepalive. The
// provider remains usable; the next utterance redials.
func (p *Provider) Close() error {
	p.connMu.Lock()
	defer p.connMu.Unlock()
	if p.stopKeep != nil {
		close(p.stopKeep)
		p.stopKeep = nil
	}
	if p.conn != nil {
		p.conn.Close(websocket.StatusNormalClosure, "shutting down")
		p.conn = nil
		p.connVoice = ""
	}
	return nil
}

// ---- HTTP fallback ----

// httpRequest is the JSON body for the batch synthesis endpoint.
type httpRequest struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

// Synthesize performs a blocking HTTP synthesis request and streams the raw
// response body to the returned channel in fixed-size chunks.
func (p *Provider) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (<-chan []byte, error) {
	if voice.ID == "" {
		return nil, errors.New("elevenlabs: voice.ID must not be empty")
	}
	if text == "" {
		return nil, errors.New("elevenlabs: text must not be empty")
	}

	body, _ := json.Marshal(httpRequest{
		Text:    text,
		ModelID: p.model,
		VoiceSettings: &voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
		},
	})

	endpoint := fmt.Sprintf(p.httpEndpointFmt, voice.ID, p.outputFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: synthesize request: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: synthesize HTTP: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("elevenlabs: synthesize: unexpected status %d", resp.StatusCode)
	}

	audioCh := make(chan []byte, 64)
	go func() {
		defer close(audioCh)
		defer resp.Body.Close()

		buf := make([]byte, httpChunkSize)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case audioCh <- chunk:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	return audioCh, nil
}

// ---- ListVoices ----

// voicesResponse is the top-level response from GET /v1/voices.
type voicesResponse struct {
	Voices []elevenLabsVoice `json:"voices"`
}

// elevenLabsVoice is a single voice entry from the ElevenLabs API.
type elevenLabsVoice struct {
	VoiceID  string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Labels   map[string]string `json:"labels"`
}

// ListVoices returns all voices available from ElevenLabs for the configured API key.
func (p *Provider) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, voicesEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices read: %w", err)
	}
	return parseVoicesResponse(data)
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)

// ---- helpers ----

// buildWSURL constructs the streaming WebSocket URL for a given voice, model,
// output format, and latency optimisation level.
func buildWSURL(format, voiceID, model, outputFormat string, latencyOpt int) string {
	return fmt.Sprintf(format, voiceID, model, outputFormat, latencyOpt)
}

// parseAudioResponse parses a raw WebSocket message. Returns the decoded audio
// bytes (may be empty), the isFinal flag, and whether the message was usable.
func parseAudioResponse(data []byte) (audio []byte, final bool, ok bool) {
	var resp audioResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, false, false
	}
	if resp.Error != "" {
		return nil, true, true
	}
	if resp.Audio == "" {
		return nil, resp.IsFinal, true
	}
	decoded, err := base64.StdEncoding.DecodeString(resp.Audio)
	if err != nil {
		return nil, resp.IsFinal, false
	}
	return decoded, resp.IsFinal, true
}

// parseVoicesResponse parses a raw JSON byte slice (matching the ElevenLabs
// /v1/voices response) into a slice of VoiceProfile values.
func parseVoicesResponse(data []byte) ([]types.VoiceProfile, error) {
	var vr voicesResponse
	if err := json.Unmarshal(data, &vr); err != nil {
		return nil, err
	}
	profiles := make([]types.VoiceProfile, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		meta := make(map[string]string, len(v.Labels)+1)
		for k, val := range v.Labels {
			meta[k] = val
		}
		if v.Category != "" {
			meta["category"] = v.Category
		}
		profiles = append(profiles, types.VoiceProfile{
			ID:       v.VoiceID,
			Name:     v.Name,
			Provider: "elevenlabs",
			Metadata: meta,
		})
	}
	return profiles, nil
}
