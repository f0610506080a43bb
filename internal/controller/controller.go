// Package controller implements the pipeline state machine that drives an
// interaction from wake phrase to spoken reply.
//
// The controller is the sole writer of the assistant state and the sole
// caller of the audio router's Attach, which is what upholds the one-active-
// consumer invariant: in ListeningWake the wake recognizer consumes frames,
// in RecordingCommand the command capture does, and in every other state
// frames are dropped.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/auricle-ai/auricle/internal/command"
	"github.com/auricle-ai/auricle/internal/convo"
	"github.com/auricle-ai/auricle/internal/notify"
	"github.com/auricle-ai/auricle/internal/observe"
	"github.com/auricle-ai/auricle/internal/wake"
	"github.com/auricle-ai/auricle/pkg/audio"
	"github.com/auricle-ai/auricle/pkg/provider/asr"
	"github.com/auricle-ai/auricle/pkg/provider/stt"
	"github.com/auricle-ai/auricle/pkg/provider/tts"
)

// silenceText is published when a capture finished without usable speech.
const silenceText = "[silence]"

// controllerError is a sentinel error type for controller faults.
type controllerError string

func (e controllerError) Error() string { return string(e) }

const (
	// ErrAlreadyStarted indicates Start was called twice.
	ErrAlreadyStarted = controllerError("controller: already started")
	// ErrNotErrored indicates Reset was called outside the error state.
	ErrNotErrored = controllerError("controller: reset is only valid in the error state")
	// ErrBadSensitivity indicates a sensitivity outside the 1-10 scale.
	ErrBadSensitivity = controllerError("controller: sensitivity must be between 1 and 10")
)

// Deps are the collaborators the controller orchestrates. Source opens a
// fresh capture stream; it is called on Start and again on Reset, since a
// stopped stream is spent. Synth and Player may be nil, which disables the
// speaking stage (replies are still published to observers). Hub and
// Metrics may be nil.
type Deps struct {
	Source      func() (audio.Source, error)
	Player      audio.Player
	Recognizer  asr.Recognizer
	Detector    *wake.Detector
	Transcriber stt.Transcriber
	Engine      *convo.Engine
	Synth       tts.Engine
	Hub         *notify.Hub
	Metrics     *observe.Metrics
}

// Config carries the capture bounds and calibration settings.
type Config struct {
	Capture             command.CaptureConfig
	Sensitivity         int
	CalibrationDuration time.Duration
}

// procResult is the outcome of one processing pipeline run.
type procResult struct {
	stage string
	err   error
}

// Controller drives the wake → capture → transcribe → reason → speak loop.
type Controller struct {
	cfg Config
	d   Deps

	router *audio.Router
	cal    *command.Calibration

	wakeCh  chan wake.Event
	procCh  chan procResult
	fatalCh chan error

	mu          sync.Mutex
	state       State
	sensitivity int
	source      audio.Source
	capture     *command.Capture
	captureDone <-chan command.Utterance
	cancel      context.CancelFunc
	loopDone    chan struct{}
}

// New builds a Controller. The calibration starts from a conservative
// default profile; run CalibrateNoiseFloor to measure the real noise floor.
func New(cfg Config, d Deps) *Controller {
	if d.Metrics == nil {
		d.Metrics = observe.DefaultMetrics()
	}
	return &Controller{
		cfg:         cfg,
		d:           d,
		router:      audio.NewRouter(),
		cal:         command.NewCalibration(cfg.Sensitivity),
		wakeCh:      make(chan wake.Event, 1),
		procCh:      make(chan procResult, 1),
		fatalCh:     make(chan error, 1),
		state:       StateIdle,
		sensitivity: cfg.Sensitivity,
	}
}

// State returns the current pipeline state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Calibration returns the live calibration read by the capture path.
func (c *Controller) Calibration() *command.Calibration { return c.cal }

// Router exposes the frame router for instrumentation.
func (c *Controller) Router() *audio.Router { return c.router }

// Start opens the audio stream, arms the wake detector, and runs the state
// machine until ctx is cancelled or Stop is called.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	if err := c.openSourceLocked(ctx); err != nil {
		cancel()
		return err
	}
	c.cancel = cancel
	c.loopDone = make(chan struct{})

	c.listenLocked(ctx)
	c.setStateLocked(ctx, StateListeningWake)

	go c.pumpHypotheses(ctx)
	go c.run(ctx)
	return nil
}

// Stop halts the pipeline and releases the audio device. Idempotent.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return
	}
	cancel := c.cancel
	loopDone := c.loopDone
	src := c.source
	if c.capture != nil {
		c.capture.Stop()
		c.capture, c.captureDone = nil, nil
	}
	c.d.Detector.Disarm()
	c.attachLocked(context.Background(), nil)
	c.setStateLocked(context.Background(), StateIdle)
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if src != nil {
		if err := src.Stop(); err != nil {
			slog.Warn("audio source stop failed", "err", err)
		}
	}
	if loopDone != nil {
		<-loopDone
	}
}

// Reset recovers from the error state: it reopens the audio stream, re-arms
// the wake detector, and returns to ListeningWake. Calling it in any other
// state is an error.
func (c *Controller) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateError {
		return ErrNotErrored
	}
	if err := c.openSourceLocked(ctx); err != nil {
		return err
	}
	c.listenLocked(ctx)
	c.setStateLocked(ctx, StateListeningWake)
	return nil
}

// UpdateSensitivity changes the 1-10 sensitivity and atomically re-derives
// the threshold from the current noise floor. Callable in any state; an
// in-flight capture picks up the new threshold on its next frame.
func (c *Controller) UpdateSensitivity(value int) error {
	if value < 1 || value > 10 {
		return fmt.Errorf("%w: got %d", ErrBadSensitivity, value)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sensitivity = value
	c.cal.Set(command.NewProfile(c.cal.Current().NoiseFloor, value))
	slog.Info("sensitivity updated",
		"sensitivity", value,
		"threshold", c.cal.Current().Threshold)
	return nil
}

// CalibrateNoiseFloor samples ambient audio for the given duration (the
// configured default when zero) and installs the measured profile. The
// sampler temporarily becomes the frame consumer and the previous consumer
// is restored afterwards. Only the caller blocks for the window: Stop,
// State and UpdateSensitivity stay responsive, and frames that arrive while
// the sampler is attached are simply diverted from whatever was listening.
// On failure the previous profile is retained.
func (c *Controller) CalibrateNoiseFloor(ctx context.Context, duration time.Duration) error {
	if duration <= 0 {
		duration = c.cfg.CalibrationDuration
	}
	c.mu.Lock()
	sensitivity := c.sensitivity
	c.mu.Unlock()

	calibrator := command.NewCalibrator(sensitivity, duration)
	profile, err := calibrator.Run(ctx, c.router)
	// The calibrator swapped the consumer in and back out.
	c.d.Metrics.ConsumerSwaps.Add(ctx, 2)
	if err != nil {
		slog.Warn("calibration failed, keeping previous profile", "err", err)
		return err
	}

	c.mu.Lock()
	// A sensitivity change during the window wins: keep the measured floor
	// but re-derive the threshold with the newer setting.
	if c.sensitivity != sensitivity {
		profile = command.NewProfile(profile.NoiseFloor, c.sensitivity)
	}
	c.cal.Set(profile)
	c.mu.Unlock()
	slog.Info("noise floor calibrated",
		"noise_floor", profile.NoiseFloor,
		"threshold", profile.Threshold,
		"window", duration)
	return nil
}

// ResetConversation discards the in-memory turn history and starts a fresh
// session. The pipeline state is unaffected.
func (c *Controller) ResetConversation(ctx context.Context) {
	c.d.Engine.ResetSession(ctx)
}

// Alive reports pipeline liveness for the readiness probe: healthy unless
// the controller is in the error state.
func (c *Controller) Alive(ctx context.Context) error {
	if c.State() == StateError {
		return errors.New("pipeline is in the error state, reset required")
	}
	return nil
}

// openSourceLocked opens a fresh capture stream and starts its pumps.
func (c *Controller) openSourceLocked(ctx context.Context) error {
	src, err := c.d.Source()
	if err != nil {
		return fmt.Errorf("open audio source: %w", err)
	}
	if err := src.Start(ctx); err != nil {
		return fmt.Errorf("start audio source: %w", err)
	}
	c.source = src

	go func() {
		for f := range src.Frames() {
			c.router.Dispatch(f)
		}
	}()
	go func() {
		if err, ok := <-src.Errors(); ok {
			select {
			case c.fatalCh <- err:
			default:
			}
		}
	}()
	return nil
}

// listenLocked routes frames to the wake recognizer and arms the detector.
func (c *Controller) listenLocked(ctx context.Context) {
	c.capture, c.captureDone = nil, nil
	c.d.Recognizer.Reset()
	c.d.Detector.Arm()
	c.attachLocked(ctx, &wakeConsumer{c: c})
}

// attachLocked swaps the router consumer and counts the swap.
func (c *Controller) attachLocked(ctx context.Context, consumer audio.Consumer) {
	c.router.Attach(consumer)
	c.d.Metrics.ConsumerSwaps.Add(ctx, 1)
}

// setStateLocked records the transition and notifies observers.
func (c *Controller) setStateLocked(ctx context.Context, to State) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	slog.Info("pipeline state change", "from", from.String(), "to", to.String())
	c.d.Metrics.RecordStateTransition(ctx, from.String(), to.String())
	c.publish(notify.StateChanged(from.String(), to.String()))
}

func (c *Controller) publish(ev notify.Event) {
	if c.d.Hub != nil {
		c.d.Hub.Publish(ev)
	}
}

// run is the state machine loop. It owns every transition after Start.
func (c *Controller) run(ctx context.Context) {
	defer close(c.loopDone)
	fatal := c.fatalCh
	for {
		c.mu.Lock()
		captureDone := c.captureDone
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case ev := <-c.wakeCh:
			c.onWake(ctx, ev)
		case utt := <-captureDone:
			c.onUtterance(ctx, utt)
		case res := <-c.procCh:
			c.onProcessed(ctx, res)
		case err := <-fatal:
			c.onFatal(ctx, err)
		}
	}
}

// pumpHypotheses feeds recognizer output through the wake detector.
func (c *Controller) pumpHypotheses(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case h, ok := <-c.d.Recognizer.Hypotheses():
			if !ok {
				return
			}
			if ev, triggered := c.d.Detector.Observe(h.Text, h.Final); triggered {
				select {
				case c.wakeCh <- ev:
				default:
				}
			}
		}
	}
}

// onWake starts a command capture. A wake event arriving in any other state
// is stale (the detector was re-armed concurrently) and is dropped.
func (c *Controller) onWake(ctx context.Context, ev wake.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateListeningWake {
		return
	}
	slog.Info("wake phrase detected",
		"heard", ev.Heard,
		"match", string(ev.Kind),
		"similarity", ev.Similarity)
	c.d.Metrics.RecordWakeDetection(ctx, string(ev.Kind))
	c.publish(notify.WakeDetected(ev.Heard, ev.Similarity))

	c.capture = command.NewCapture(c.cal, c.cfg.Capture)
	c.captureDone = c.capture.Done()
	c.attachLocked(ctx, c.capture)
	c.setStateLocked(ctx, StateRecordingCommand)
}

// onUtterance ends the capture and either short-circuits back to listening
// (no usable speech) or starts the processing pipeline.
func (c *Controller) onUtterance(ctx context.Context, utt command.Utterance) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRecordingCommand {
		return
	}
	c.d.Metrics.CaptureDuration.Record(ctx, utt.Duration.Seconds())
	slog.Info("capture finished",
		"reason", string(utt.Reason),
		"duration", utt.Duration,
		"voice_frames", utt.VoiceFrames)

	if utt.Empty(c.cfg.Capture.MinVoiceFrames) {
		c.d.Metrics.EmptyCaptures.Add(ctx, 1)
		c.publish(notify.Transcript(silenceText))
		c.listenLocked(ctx)
		c.setStateLocked(ctx, StateListeningWake)
		return
	}

	c.capture, c.captureDone = nil, nil
	c.attachLocked(ctx, nil)
	c.setStateLocked(ctx, StateProcessing)
	go c.process(ctx, utt)
}

// process runs transcription, reasoning, synthesis, and playback off the
// state machine loop, reporting the outcome on procCh.
func (c *Controller) process(ctx context.Context, utt command.Utterance) {
	ctx, span := observe.StartSpan(ctx, "pipeline.interaction")
	defer span.End()

	res := c.runStages(ctx, utt)
	select {
	case c.procCh <- res:
	case <-ctx.Done():
	}
}

func (c *Controller) runStages(ctx context.Context, utt command.Utterance) procResult {
	start := time.Now()

	text, err := c.transcribe(ctx, utt)
	if err != nil {
		return procResult{stage: "transcription", err: err}
	}
	c.publish(notify.Transcript(text))

	reply, err := c.respond(ctx, text)
	if err != nil {
		return procResult{stage: "reasoning", err: err}
	}
	c.publish(notify.Reply(reply))

	if c.d.Synth != nil && c.d.Player != nil {
		c.mu.Lock()
		c.setStateLocked(ctx, StateSpeaking)
		c.mu.Unlock()

		if err := c.speak(ctx, reply); err != nil {
			return procResult{stage: "synthesis", err: err}
		}
	}

	c.d.Metrics.InteractionDuration.Record(ctx, time.Since(start).Seconds())
	return procResult{}
}

func (c *Controller) transcribe(ctx context.Context, utt command.Utterance) (string, error) {
	ctx, span := observe.StartSpan(ctx, "pipeline.transcribe")
	defer span.End()
	start := time.Now()
	text, err := c.d.Transcriber.Transcribe(ctx, utt.Samples, utt.SampleRate)
	c.d.Metrics.TranscriptionDuration.Record(ctx, time.Since(start).Seconds())
	return text, err
}

func (c *Controller) respond(ctx context.Context, text string) (string, error) {
	ctx, span := observe.StartSpan(ctx, "pipeline.respond")
	defer span.End()
	start := time.Now()
	reply, err := c.d.Engine.Respond(ctx, text)
	c.d.Metrics.ReasoningDuration.Record(ctx, time.Since(start).Seconds())
	return reply, err
}

func (c *Controller) speak(ctx context.Context, reply string) error {
	ctx, span := observe.StartSpan(ctx, "pipeline.speak")
	defer span.End()
	start := time.Now()
	clip, err := c.d.Synth.Synthesize(ctx, reply)
	c.d.Metrics.SynthesisDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return err
	}
	return c.d.Player.Play(ctx, clip.PCM, clip.SampleRate)
}

// onProcessed closes out an interaction. A recoverable stage failure is
// surfaced once and listening resumes; there is no automatic retry.
func (c *Controller) onProcessed(ctx context.Context, res procResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateProcessing && c.state != StateSpeaking {
		return
	}
	if res.err != nil {
		slog.Error("interaction failed", "stage", res.stage, "err", res.err)
		c.d.Metrics.RecordStageError(ctx, res.stage)
		c.publish(notify.Failure(res.stage, res.err))
	}
	c.listenLocked(ctx)
	c.setStateLocked(ctx, StateListeningWake)
}

// onFatal stops every consumer and parks the pipeline in the error state
// until an operator calls Reset.
func (c *Controller) onFatal(ctx context.Context, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	slog.Error("fatal pipeline fault", "err", err)
	c.d.Metrics.RecordStageError(ctx, "audio")
	c.publish(notify.Failure("audio", err))

	if c.capture != nil {
		c.capture.Stop()
		c.capture, c.captureDone = nil, nil
	}
	c.d.Detector.Disarm()
	c.attachLocked(ctx, nil)
	if c.source != nil {
		if serr := c.source.Stop(); serr != nil {
			slog.Warn("audio source stop failed", "err", serr)
		}
		c.source = nil
	}
	c.setStateLocked(ctx, StateError)
}

// wakeConsumer feeds frames to the wake recognizer and publishes per-frame
// levels, independent of detection.
type wakeConsumer struct {
	c *Controller
}

// Consume implements audio.Consumer.
func (w *wakeConsumer) Consume(f audio.Frame) {
	level := audio.RMS(f.Samples)
	w.c.d.Metrics.AudioLevel.Record(context.Background(), level)
	w.c.publish(notify.AudioLevel(level))
	if err := w.c.d.Recognizer.Feed(f); err != nil {
		slog.Warn("wake recognizer rejected frame", "err", err)
	}
}
