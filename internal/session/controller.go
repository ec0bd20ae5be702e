// Package session owns the per-call lifecycle: the state machine from
// greeting to farewell, the wiring between the telephony link, the audio
// paths, the transcript aggregator and the decision engine, and the health
// monitor that bounds call duration and silence.
package session

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/atelic-ai/voceria/internal/audio"
	"github.com/atelic-ai/voceria/internal/engine"
	"github.com/atelic-ai/voceria/internal/integration"
	"github.com/atelic-ai/voceria/internal/observe"
	"github.com/atelic-ai/voceria/internal/telephony"
	"github.com/atelic-ai/voceria/internal/transcript"
	"github.com/atelic-ai/voceria/pkg/provider/stt"
	"github.com/atelic-ai/voceria/pkg/types"
)

// State is one phase of the call lifecycle.
type State string

const (
	StateIdle      State = "idle"
	StateGreeting  State = "greeting"
	StateListening State = "listening"
	StateThinking  State = "thinking"
	StateSpeaking  State = "speaking"
	StateFarewell  State = "farewell"
	StateClosed    State = "closed"
)

// End reasons recorded when the call closes.
const (
	EndSTTLost          = "stt_lost"
	EndAssistantRequest = "assistant_request"
	EndMaxDuration      = "max_duration"
	EndSilenceTimeout   = "silence_timeout"
	EndStreamStopped    = "stream_stopped"
	EndFatalError       = "fatal_error"
)

const (
	defaultGreetingDelay   = 500 * time.Millisecond
	defaultFarewellWait    = 10 * time.Second
	defaultMaxCallDuration = 600 * time.Second
	defaultSilenceTimeout  = 30 * time.Second
	defaultMonitorTick     = 5 * time.Second
)

// phoneKeywords in an outgoing reply mean the agent just asked for a phone
// number; the caller will dictate digits slowly, so the pause gap widens.
var phoneKeywords = []string{"número", "teléfono", "celular", "whatsapp", "contacto"}

var digitRunPattern = regexp.MustCompile(`\b\d{10}\b`)

// Decider runs one decision turn. The engine implements it.
type Decider interface {
	Turn(ctx context.Context, conv engine.Conversation) engine.TurnResult
}

// Speaker synthesizes one utterance into an audio stream. The TTS client
// implements it.
type Speaker interface {
	Speak(ctx context.Context, text string) (<-chan []byte, error)
}

// HangupControl terminates the call out of band. May be nil when no control
// channel is configured; the call then ends when the provider closes the
// stream.
type HangupControl interface {
	Hangup(ctx context.Context, callID string) error
}

// Config carries the per-call phrases and timings. Zero values take the
// defaults above.
type Config struct {
	Greeting string
	Farewell string

	GreetingDelay   time.Duration
	FarewellWait    time.Duration
	MaxCallDuration time.Duration
	SilenceTimeout  time.Duration
	MonitorTick     time.Duration

	// UtterancePause and PhonePause override the aggregator silence gaps.
	UtterancePause time.Duration
	PhonePause     time.Duration

	// HoldTone is raw μ-law audio looped to the caller while the recognizer
	// connects. Optional.
	HoldTone []byte
}

func (c *Config) withDefaults() {
	if c.GreetingDelay == 0 {
		c.GreetingDelay = defaultGreetingDelay
	}
	if c.FarewellWait == 0 {
		c.FarewellWait = defaultFarewellWait
	}
	if c.MaxCallDuration == 0 {
		c.MaxCallDuration = defaultMaxCallDuration
	}
	if c.SilenceTimeout == 0 {
		c.SilenceTimeout = defaultSilenceTimeout
	}
	if c.MonitorTick == 0 {
		c.MonitorTick = defaultMonitorTick
	}
}

// Summary is the terminal record of one call.
type Summary struct {
	CallID    string
	StreamID  string
	EndReason string
	EndDetail string
	Duration  time.Duration
	Turns     int
}

// Snapshot is the admin view of a live call.
type Snapshot struct {
	CallID       string                    `json:"call_id"`
	StreamID     string                    `json:"stream_id"`
	State        State                     `json:"state"`
	StartedAt    time.Time                 `json:"started_at,omitzero"`
	LastActivity time.Time                 `json:"last_activity"`
	Turns        int                       `json:"turns"`
	Recognizer   integration.ServiceHealth `json:"recognizer"`
}

// Controller drives one call from the provider's start frame to teardown.
// Create one per media connection and call [Controller.Run].
type Controller struct {
	cfg Config
	log *slog.Logger

	link       *telephony.Link
	sttClient  *integration.STTClient
	supervisor *integration.Supervisor
	ingress    *audio.Ingress
	egress     *audio.Egress
	audioState *audio.State
	agg        *transcript.Aggregator
	decider    Decider
	speaker    Speaker
	hangup     HangupControl

	supOpts []integration.SupervisorOption
	metrics *observe.Metrics

	conv *Conversation

	runCtx context.Context
	cancel context.CancelFunc

	// turnMu enforces at most one decision turn at a time.
	turnMu sync.Mutex

	speechEnded chan struct{}
	closed      chan struct{}
	closeOnce   sync.Once
	wg          sync.WaitGroup

	mu        sync.Mutex
	state     State
	callID    string
	streamID  string
	startedAt time.Time
	endReason string
	endDetail string
}

// Option is a functional option for [Controller].
type Option func(*Controller)

// WithSupervisorOptions forwards options to the recognizer supervisor.
func WithSupervisorOptions(opts ...integration.SupervisorOption) Option {
	return func(c *Controller) {
		c.supOpts = append(c.supOpts, opts...)
	}
}

// WithMetrics records utterance latency on the given instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// New wires a Controller for one call. The recognizer stream is not opened
// until the provider's start frame arrives.
func New(link *telephony.Link, recognizer stt.Provider, sttCfg stt.StreamConfig,
	speaker Speaker, decider Decider, hangup HangupControl,
	cfg Config, log *slog.Logger, opts ...Option) *Controller {

	cfg.withDefaults()
	c := &Controller{
		cfg:         cfg,
		log:         log,
		link:        link,
		decider:     decider,
		speaker:     speaker,
		hangup:      hangup,
		conv:        NewConversation(),
		audioState:  audio.NewState(),
		speechEnded: make(chan struct{}, 1),
		closed:      make(chan struct{}),
		state:       StateIdle,
	}
	for _, o := range opts {
		o(c)
	}

	var aggOpts []transcript.Option
	if cfg.UtterancePause > 0 {
		aggOpts = append(aggOpts, transcript.WithPause(cfg.UtterancePause))
	}
	if cfg.PhonePause > 0 {
		aggOpts = append(aggOpts, transcript.WithPhonePause(cfg.PhonePause))
	}
	c.agg = transcript.New(c.onUtterance, aggOpts...)

	c.sttClient = integration.NewSTTClient(recognizer, sttCfg, integration.STTCallbacks{
		OnPartial: func(types.Transcript) { c.agg.Touch() },
		OnFinal:   func(t types.Transcript) { c.agg.AddFinal(t) },
		OnDisconnect: func() {
			c.ingress.SetConnected(false)
			go c.supervisor.OnStreamLost(c.runCtx)
		},
	}, log)

	c.ingress = audio.NewIngress(c.audioState, c.sttClient, log)
	c.egress = audio.NewEgress(c.audioState, link)

	c.supervisor = integration.NewSupervisor(c.sttClient, integration.SupervisorHooks{
		OnDown: func() { c.ingress.SetConnected(false) },
		OnReconnected: func() {
			if err := c.ingress.DrainSpill(c.runCtx); err != nil {
				c.log.Warn("spill drain failed", "err", err)
			}
		},
		OnFailed: func(lastErr error) {
			c.closeWithHangup(EndSTTLost, lastErr)
		},
	}, log, c.supOpts...)

	return c
}

// Run drives the call until the link closes or the session ends. It blocks
// for the whole call and returns the terminal summary.
func (c *Controller) Run(ctx context.Context) Summary {
	c.runCtx, c.cancel = context.WithCancel(ctx)
	go c.link.Run(c.runCtx)

	for ev := range c.link.Events() {
		switch ev.Type {
		case telephony.EventConnected:
			c.log.Debug("provider connected")

		case telephony.EventStart:
			c.handleStart(ev)

		case telephony.EventMedia:
			if err := c.ingress.HandleMedia(c.runCtx, ev.Media); err != nil {
				c.log.Debug("caller frame dropped", "err", err)
			}

		case telephony.EventMark:
			if c.egress.HandleMark(ev.Mark) {
				c.signalSpeechEnd()
			}

		case telephony.EventStop:
			c.shutdown(EndStreamStopped, nil)
		}
	}

	c.shutdown(EndStreamStopped, nil)
	c.wg.Wait()
	return c.summary()
}

// Done is closed when the session has fully shut down.
func (c *Controller) Done() <-chan struct{} {
	return c.closed
}

// State returns the current lifecycle phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// History returns a copy of the conversation history.
func (c *Controller) History() []types.Message {
	return c.conv.History()
}

// SetMode forwards to the conversation; wire it as the set_mode callback.
func (c *Controller) SetMode(m types.ConversationMode) {
	c.conv.SetMode(m)
}

// CallID returns the provider call identifier, or "" before start.
func (c *Controller) CallID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callID
}

// Snapshot returns the admin view of the call.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	snap := Snapshot{
		CallID:    c.callID,
		StreamID:  c.streamID,
		State:     c.state,
		StartedAt: c.startedAt,
	}
	c.mu.Unlock()
	snap.LastActivity = c.audioState.LastActivity()
	snap.Turns = c.conv.Turns()
	snap.Recognizer = c.supervisor.Health()
	return snap
}

// ─── Call start ───────────────────────────────────────────────────────────────

func (c *Controller) handleStart(ev telephony.Event) {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		c.log.Warn("duplicate start frame ignored", "stream_id", ev.StreamID)
		return
	}
	c.callID = ev.CallID
	c.streamID = ev.StreamID
	c.startedAt = time.Now()
	c.state = StateGreeting
	c.mu.Unlock()

	c.log.Info("call started", "call_id", ev.CallID, "stream_id", ev.StreamID)

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.beginCall(c.runCtx)
	}()
	go func() {
		defer c.wg.Done()
		c.monitor(c.runCtx)
	}()
}

// beginCall connects the recognizer and speaks the greeting, with the hold
// tone covering the warm-up gap.
func (c *Controller) beginCall(ctx context.Context) {
	stopHold := make(chan struct{})
	if len(c.cfg.HoldTone) > 0 {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.playHoldTone(ctx, stopHold)
		}()
	}

	if err := c.supervisor.Start(ctx); err != nil {
		close(stopHold)
		c.log.Error("recognizer failed to start", "err", err)
		c.closeWithHangup(EndFatalError, err)
		return
	}
	c.ingress.SetConnected(true)

	select {
	case <-time.After(c.cfg.GreetingDelay):
	case <-ctx.Done():
		close(stopHold)
		return
	}
	close(stopHold)

	if err := c.speak(ctx, c.cfg.Greeting); err != nil {
		c.log.Warn("greeting failed", "err", err)
	}
	c.setState(StateListening)
}

// ─── Turn flow ────────────────────────────────────────────────────────────────

// onUtterance runs on the aggregator's emit goroutine with one completed
// caller utterance.
func (c *Controller) onUtterance(text string) {
	if c.audioState.TTSInProgress() {
		c.log.Debug("utterance dropped while synthesizing", "text", text)
		return
	}
	if !c.turnMu.TryLock() {
		c.log.Warn("utterance dropped, turn already in flight", "text", text)
		return
	}
	defer c.turnMu.Unlock()

	switch c.State() {
	case StateFarewell, StateClosed, StateIdle:
		return
	}

	ctx := c.runCtx
	c.setState(StateThinking)
	// Suppress recognition before the reply audio exists, so the agent's
	// voice leaking through the handset never re-enters the transcript.
	c.audioState.SetSpeaking(true)

	c.conv.Append(types.Message{Role: "user", Content: text})
	res := c.decider.Turn(ctx, c.conv)

	if res.EndCall {
		c.farewell(ctx, res.EndReason)
		return
	}
	if res.Reply == "" {
		c.audioState.SetSpeaking(false)
		c.setState(StateListening)
		return
	}

	c.updatePhoneCapture(res.Reply)
	c.setState(StateSpeaking)
	if err := c.speak(ctx, res.Reply); err != nil {
		c.log.Warn("reply playback failed", "err", err)
	}
	c.setState(StateListening)
}

// speak synthesizes text and plays it out, blocking until the provider echoes
// the end-of-utterance mark or the wait cap passes.
func (c *Controller) speak(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if c.metrics != nil {
		start := time.Now()
		defer func() {
			c.metrics.SpeakDuration.Record(ctx, time.Since(start).Seconds())
		}()
	}

	// Drop any stale end signal from a previous utterance.
	select {
	case <-c.speechEnded:
	default:
	}

	chunks, err := c.speaker.Speak(ctx, text)
	if err != nil {
		if errors.Is(err, integration.ErrDuplicateUtterance) {
			c.log.Debug("duplicate utterance suppressed", "text", text)
			return nil
		}
		return err
	}

	if err := c.egress.Play(ctx, chunks); err != nil {
		c.audioState.SetSpeaking(false)
		return err
	}

	if c.audioState.Speaking() {
		c.waitSpeechEnd(ctx)
	}
	c.audioState.SetSpeaking(false)
	return nil
}

func (c *Controller) waitSpeechEnd(ctx context.Context) {
	timer := time.NewTimer(c.cfg.FarewellWait)
	defer timer.Stop()
	select {
	case <-c.speechEnded:
	case <-timer.C:
		c.log.Warn("end-of-utterance mark never echoed")
	case <-ctx.Done():
	}
}

func (c *Controller) signalSpeechEnd() {
	select {
	case c.speechEnded <- struct{}{}:
	default:
	}
}

// updatePhoneCapture widens the pause gap after the agent asks for a phone
// number and restores it once ten digits have landed in recent history.
func (c *Controller) updatePhoneCapture(reply string) {
	for _, m := range c.conv.Tail(3) {
		if digitRunPattern.MatchString(m.Content) {
			c.agg.SetPhoneCapture(false)
			return
		}
	}
	lower := strings.ToLower(reply)
	for _, kw := range phoneKeywords {
		if strings.Contains(lower, kw) {
			c.agg.SetPhoneCapture(true)
			return
		}
	}
}

// ─── Farewell and teardown ────────────────────────────────────────────────────

// farewell speaks the goodbye phrase, waits for it to drain, then hangs up.
// The goodbye audio must drain before the control-channel hang-up.
func (c *Controller) farewell(ctx context.Context, detail string) {
	c.setState(StateFarewell)
	c.mu.Lock()
	c.endDetail = detail
	c.mu.Unlock()

	if err := c.speak(ctx, c.cfg.Farewell); err != nil {
		c.log.Warn("farewell playback failed", "err", err)
	}
	c.requestHangup()
	c.shutdown(EndAssistantRequest, nil)
}

// closeWithHangup ends the call from a monitor or failure path: hang up
// first so the caller is not left on a dead line, then tear down.
func (c *Controller) closeWithHangup(reason string, err error) {
	c.requestHangup()
	c.shutdown(reason, err)
}

func (c *Controller) requestHangup() {
	callID := c.CallID()
	if c.hangup == nil || callID == "" {
		return
	}
	// Independent context: the run context is about to be cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.hangup.Hangup(ctx, callID); err != nil {
		c.log.Warn("hangup request failed", "call_id", callID, "err", err)
	}
}

// shutdown tears the call down exactly once: aggregator first so no further
// turns start, then the in-flight work, the recognizer, and finally the link.
func (c *Controller) shutdown(reason string, err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateClosed
		c.endReason = reason
		if err != nil && c.endDetail == "" {
			c.endDetail = err.Error()
		}
		callID := c.callID
		c.mu.Unlock()

		c.agg.Close()
		c.audioState.SetSpeaking(false)
		if c.cancel != nil {
			c.cancel()
		}
		if serr := c.supervisor.Stop(); serr != nil {
			c.log.Debug("recognizer stop", "err", serr)
		}
		c.link.Close()
		close(c.closed)

		c.log.Info("call closed", "call_id", callID, "reason", reason)
	})
}

func (c *Controller) summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	var dur time.Duration
	if !c.startedAt.IsZero() {
		dur = time.Since(c.startedAt)
	}
	return Summary{
		CallID:    c.callID,
		StreamID:  c.streamID,
		EndReason: c.endReason,
		EndDetail: c.endDetail,
		Duration:  dur,
		Turns:     c.conv.Turns(),
	}
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return
	}
	c.state = s
}
