package controller_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/auricle-ai/auricle/internal/command"
	"github.com/auricle-ai/auricle/internal/controller"
	"github.com/auricle-ai/auricle/internal/convo"
	"github.com/auricle-ai/auricle/internal/notify"
	"github.com/auricle-ai/auricle/internal/observe"
	"github.com/auricle-ai/auricle/internal/wake"
	"github.com/auricle-ai/auricle/pkg/audio"
	audiomock "github.com/auricle-ai/auricle/pkg/audio/mock"
	"github.com/auricle-ai/auricle/pkg/provider/asr"
	asrmock "github.com/auricle-ai/auricle/pkg/provider/asr/mock"
	llmmock "github.com/auricle-ai/auricle/pkg/provider/llm/mock"
	sttmock "github.com/auricle-ai/auricle/pkg/provider/stt/mock"
	ttsmock "github.com/auricle-ai/auricle/pkg/provider/tts/mock"
)

const (
	testRate  = 16000
	frameSize = 1280 // 80 ms at 16 kHz
)

// frameAt builds a constant-amplitude frame with the given normalized RMS.
func frameAt(rms float64) audio.Frame {
	amp := int16(rms * 32768)
	samples := make([]int16, frameSize)
	for i := range samples {
		samples[i] = amp
	}
	return audio.Frame{Samples: samples, SampleRate: testRate}
}

// fixture bundles a controller with the doubles behind it.
type fixture struct {
	ctrl        *controller.Controller
	sources     []*audiomock.Source
	recognizer  *asrmock.Recognizer
	detector    *wake.Detector
	transcriber *sttmock.Transcriber
	backend     *llmmock.Backend
	synth       *ttsmock.Engine
	player      *audiomock.Player
	hub         *notify.Hub
	reader      *sdkmetric.ManualReader
}

// counterValue collects and sums the named int64 counter.
func (f *fixture) counterValue(t *testing.T, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := f.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != name {
				continue
			}
			if sum, ok := met.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}

// newFixture wires a controller against mocks. Two sources are queued so
// Reset after a device fault can reopen.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		sources: []*audiomock.Source{
			audiomock.NewSource(),
			audiomock.NewSource(),
		},
		recognizer:  asrmock.NewRecognizer(),
		detector:    wake.New("hey auricle"),
		transcriber: &sttmock.Transcriber{Text: "turn on the lights"},
		backend:     &llmmock.Backend{Reply: "lights are on"},
		synth:       &ttsmock.Engine{},
		player:      &audiomock.Player{},
		hub:         notify.NewHub(),
	}
	for _, s := range f.sources {
		s.Hold = true
	}

	next := 0
	srcFactory := func() (audio.Source, error) {
		if next >= len(f.sources) {
			return nil, errors.New("no more sources")
		}
		s := f.sources[next]
		next++
		return s, nil
	}

	f.reader = sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(f.reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	engine := convo.New(f.backend, convo.WithSystemPrompt("be brief"))
	f.ctrl = controller.New(
		controller.Config{
			Capture: command.CaptureConfig{
				SilenceWindow:  160 * time.Millisecond,
				MaxDuration:    5 * time.Second,
				MinVoiceFrames: 1,
			},
			Sensitivity:         5,
			CalibrationDuration: 100 * time.Millisecond,
		},
		controller.Deps{
			Source:      srcFactory,
			Player:      f.player,
			Recognizer:  f.recognizer,
			Detector:    f.detector,
			Transcriber: f.transcriber,
			Engine:      engine,
			Synth:       f.synth,
			Hub:         f.hub,
			Metrics:     metrics,
		},
	)
	return f
}

func waitForState(t *testing.T, c *controller.Controller, want controller.State) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for c.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("state = %s, never reached %s", c.State(), want)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// emitVoiced pushes enough speech plus trailing silence to complete a
// capture: 13 voiced frames (about a second of audio) closed by quiet
// frames that exceed the silence window.
func (f *fixture) emitVoiced() {
	for i := 0; i < 13; i++ {
		f.sources[0].Emit(frameAt(0.2))
	}
	for i := 0; i < 3; i++ {
		f.sources[0].Emit(frameAt(0.001))
	}
}

func TestController_FullInteraction(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	sub := f.hub.Subscribe()
	defer sub.Close()

	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.ctrl.Stop()
	waitForState(t, f.ctrl, controller.StateListeningWake)

	if !f.sources[0].Started() {
		t.Fatal("audio source never started")
	}

	f.recognizer.Emit(asr.Hypothesis{Text: "hey auricle", Final: false})
	waitForState(t, f.ctrl, controller.StateRecordingCommand)

	f.emitVoiced()
	waitForState(t, f.ctrl, controller.StateListeningWake)

	// The utterance went through transcription, reasoning, synthesis, and
	// playback.
	if calls := f.transcriber.Calls; len(calls) != 1 {
		t.Fatalf("transcriber calls = %d, want 1", len(calls))
	}
	reqs := f.backend.Recorded()
	if len(reqs) != 1 {
		t.Fatalf("backend requests = %d, want 1", len(reqs))
	}
	last := reqs[0].Turns[len(reqs[0].Turns)-1]
	if last.Content != "turn on the lights" {
		t.Errorf("user turn = %q, want the transcript", last.Content)
	}
	if got := f.synth.Synthesized(); len(got) != 1 || got[0] != "lights are on" {
		t.Errorf("synthesized = %v, want the reply", got)
	}
	if len(f.player.Calls()) != 1 {
		t.Errorf("player calls = %d, want 1", len(f.player.Calls()))
	}

	// Observers saw the wake, the transcript, and the reply.
	seen := map[notify.Kind]bool{}
	drain := time.After(time.Second)
	for !seen[notify.KindWake] || !seen[notify.KindTranscript] || !seen[notify.KindReply] {
		select {
		case ev := <-sub.Events():
			seen[ev.Kind] = true
		case <-drain:
			t.Fatalf("missing events, saw %v", seen)
		}
	}
}

func TestController_EmptyCaptureShortCircuits(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	sub := f.hub.Subscribe()
	defer sub.Close()

	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.ctrl.Stop()

	f.recognizer.Emit(asr.Hypothesis{Text: "hey auricle", Final: false})
	waitForState(t, f.ctrl, controller.StateRecordingCommand)

	// Two voiced frames, well under a second of audio, then silence.
	f.sources[0].Emit(frameAt(0.2))
	f.sources[0].Emit(frameAt(0.2))
	for i := 0; i < 3; i++ {
		f.sources[0].Emit(frameAt(0.001))
	}
	waitForState(t, f.ctrl, controller.StateListeningWake)

	if len(f.transcriber.Calls) != 0 {
		t.Errorf("transcriber called %d times for an empty capture", len(f.transcriber.Calls))
	}
	if len(f.backend.Recorded()) != 0 {
		t.Error("backend called for an empty capture")
	}

	// The placeholder transcript is still published.
	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-sub.Events():
			if ev.Kind == notify.KindTranscript {
				if ev.Text != "[silence]" {
					t.Fatalf("transcript = %q, want %q", ev.Text, "[silence]")
				}
				return
			}
		case <-deadline:
			t.Fatal("no transcript event published")
		}
	}
}

func TestController_ReasoningFailureResumesListening(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.backend.Err = errors.New("endpoint timed out")
	sub := f.hub.Subscribe()
	defer sub.Close()

	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.ctrl.Stop()

	f.recognizer.Emit(asr.Hypothesis{Text: "hey auricle", Final: false})
	waitForState(t, f.ctrl, controller.StateRecordingCommand)
	f.emitVoiced()
	waitForState(t, f.ctrl, controller.StateListeningWake)

	if got := f.synth.Synthesized(); len(got) != 0 {
		t.Errorf("synthesized %v despite reasoning failure", got)
	}

	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-sub.Events():
			if ev.Kind == notify.KindError {
				if ev.Stage != "reasoning" {
					t.Fatalf("error stage = %q, want reasoning", ev.Stage)
				}
				return
			}
		case <-deadline:
			t.Fatal("no error event published")
		}
	}
}

func TestController_SynthesisFailureSkipsSpeaking(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.synth.Err = errors.New("voice not found")

	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.ctrl.Stop()

	f.recognizer.Emit(asr.Hypothesis{Text: "hey auricle", Final: false})
	waitForState(t, f.ctrl, controller.StateRecordingCommand)
	f.emitVoiced()
	waitForState(t, f.ctrl, controller.StateListeningWake)

	if len(f.player.Calls()) != 0 {
		t.Error("player called despite synthesis failure")
	}
	// The exchange itself completed; the reply is in history.
	if len(f.backend.Recorded()) != 1 {
		t.Errorf("backend requests = %d, want 1", len(f.backend.Recorded()))
	}
}

func TestController_DeviceFaultAndReset(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.ctrl.Stop()
	waitForState(t, f.ctrl, controller.StateListeningWake)

	f.sources[0].Fail(audio.ErrDeviceUnavailable)
	waitForState(t, f.ctrl, controller.StateError)

	if !f.sources[0].Stopped() {
		t.Error("faulted source was not stopped")
	}
	if err := f.ctrl.Alive(context.Background()); err == nil {
		t.Error("Alive reports healthy in the error state")
	}

	// A wake hypothesis in the error state goes nowhere.
	f.recognizer.Emit(asr.Hypothesis{Text: "hey auricle", Final: true})
	time.Sleep(20 * time.Millisecond)
	if got := f.ctrl.State(); got != controller.StateError {
		t.Fatalf("state = %s after wake in error state, want error", got)
	}

	if err := f.ctrl.Reset(context.Background()); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	waitForState(t, f.ctrl, controller.StateListeningWake)
	if !f.sources[1].Started() {
		t.Error("Reset did not open a fresh source")
	}

	// The pipeline works again end to end.
	f.recognizer.Emit(asr.Hypothesis{Text: "hey auricle", Final: false})
	waitForState(t, f.ctrl, controller.StateRecordingCommand)
}

func TestController_ResetOutsideErrorState(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	if err := f.ctrl.Reset(context.Background()); !errors.Is(err, controller.ErrNotErrored) {
		t.Fatalf("Reset in idle = %v, want ErrNotErrored", err)
	}
}

func TestController_StartTwice(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.ctrl.Stop()

	if err := f.ctrl.Start(context.Background()); !errors.Is(err, controller.ErrAlreadyStarted) {
		t.Fatalf("second Start = %v, want ErrAlreadyStarted", err)
	}
}

func TestController_StopIsIdempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.ctrl.Stop()
	f.ctrl.Stop()

	if got := f.ctrl.State(); got != controller.StateIdle {
		t.Fatalf("state after Stop = %s, want idle", got)
	}
	if !f.sources[0].Stopped() {
		t.Error("source not stopped")
	}
}

func TestController_UpdateSensitivity(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	if err := f.ctrl.UpdateSensitivity(0); !errors.Is(err, controller.ErrBadSensitivity) {
		t.Fatalf("UpdateSensitivity(0) = %v, want ErrBadSensitivity", err)
	}
	if err := f.ctrl.UpdateSensitivity(11); !errors.Is(err, controller.ErrBadSensitivity) {
		t.Fatalf("UpdateSensitivity(11) = %v, want ErrBadSensitivity", err)
	}

	before := f.ctrl.Calibration().Current()
	if err := f.ctrl.UpdateSensitivity(9); err != nil {
		t.Fatalf("UpdateSensitivity(9): %v", err)
	}
	after := f.ctrl.Calibration().Current()
	if after.NoiseFloor != before.NoiseFloor {
		t.Errorf("noise floor changed: %v -> %v", before.NoiseFloor, after.NoiseFloor)
	}
	if after.Multiplier != command.SensitivityMultiplier(9) {
		t.Errorf("multiplier = %v, want %v", after.Multiplier, command.SensitivityMultiplier(9))
	}
	if after.Threshold != after.NoiseFloor*after.Multiplier {
		t.Errorf("threshold %v is not floor*multiplier", after.Threshold)
	}
}

func TestController_CalibrateNoiseFloor(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.ctrl.Stop()
	waitForState(t, f.ctrl, controller.StateListeningWake)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				f.sources[0].Emit(frameAt(0.01))
				time.Sleep(5 * time.Millisecond)
			}
		}
	}()
	// The emitter must be gone before Stop closes the frame channel.
	defer wg.Wait()
	defer close(stop)

	if err := f.ctrl.CalibrateNoiseFloor(context.Background(), 100*time.Millisecond); err != nil {
		t.Fatalf("CalibrateNoiseFloor: %v", err)
	}
	p := f.ctrl.Calibration().Current()
	if p.NoiseFloor < 0.005 || p.NoiseFloor > 0.02 {
		t.Errorf("noise floor = %v, want about 0.01", p.NoiseFloor)
	}
	if p.Threshold != p.NoiseFloor*p.Multiplier {
		t.Errorf("threshold %v is not floor*multiplier", p.Threshold)
	}

	// The wake path still works after calibration restored the consumer.
	f.recognizer.Emit(asr.Hypothesis{Text: "hey auricle", Final: false})
	waitForState(t, f.ctrl, controller.StateRecordingCommand)
}

func TestController_ControlOpsDuringCalibration(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.ctrl.Stop()
	waitForState(t, f.ctrl, controller.StateListeningWake)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				f.sources[0].Emit(frameAt(0.01))
				time.Sleep(5 * time.Millisecond)
			}
		}
	}()
	defer wg.Wait()
	defer close(stop)

	calDone := make(chan error, 1)
	go func() {
		calDone <- f.ctrl.CalibrateNoiseFloor(context.Background(), 400*time.Millisecond)
	}()
	time.Sleep(50 * time.Millisecond) // well inside the window

	// Control operations must not wait for the calibration window.
	opDone := make(chan struct{})
	go func() {
		defer close(opDone)
		_ = f.ctrl.State()
		if err := f.ctrl.UpdateSensitivity(8); err != nil {
			t.Errorf("UpdateSensitivity during calibration: %v", err)
		}
	}()
	select {
	case <-opDone:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("control operations blocked for the calibration window")
	}

	if err := <-calDone; err != nil {
		t.Fatalf("CalibrateNoiseFloor: %v", err)
	}

	// The mid-window sensitivity change survives the installed profile.
	p := f.ctrl.Calibration().Current()
	if p.Multiplier != command.SensitivityMultiplier(8) {
		t.Errorf("multiplier = %v, want %v", p.Multiplier, command.SensitivityMultiplier(8))
	}
	if p.Threshold != p.NoiseFloor*p.Multiplier {
		t.Errorf("threshold %v is not floor*multiplier", p.Threshold)
	}
}

func TestController_CalibrationCountsConsumerSwaps(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.ctrl.Stop()
	waitForState(t, f.ctrl, controller.StateListeningWake)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				f.sources[0].Emit(frameAt(0.01))
				time.Sleep(5 * time.Millisecond)
			}
		}
	}()
	defer wg.Wait()
	defer close(stop)

	before := f.counterValue(t, "auricle.audio.consumer_swaps")
	if err := f.ctrl.CalibrateNoiseFloor(context.Background(), 100*time.Millisecond); err != nil {
		t.Fatalf("CalibrateNoiseFloor: %v", err)
	}
	after := f.counterValue(t, "auricle.audio.consumer_swaps")

	// The sampler was swapped in and back out.
	if after-before != 2 {
		t.Errorf("consumer swaps during calibration = %d, want 2", after-before)
	}
}
