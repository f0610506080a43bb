package piper_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/auricle-ai/auricle/pkg/provider/tts"
	"github.com/auricle-ai/auricle/pkg/provider/tts/piper"
)

// serveWAV returns a handler that records the request and responds with a
// minimal RIFF/WAVE container around pcm.
func serveWAV(t *testing.T, sampleRate, channels int, pcm []byte, gotBody *[]byte, gotHeader *http.Header) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read request body: %v", err)
		}
		if gotBody != nil {
			*gotBody = body
		}
		if gotHeader != nil {
			*gotHeader = r.Header.Clone()
		}

		var buf bytes.Buffer
		buf.WriteString("RIFF")
		binary.Write(&buf, binary.LittleEndian, uint32(0))
		buf.WriteString("WAVE")

		fmtData := make([]byte, 16)
		binary.LittleEndian.PutUint16(fmtData[0:2], 1)
		binary.LittleEndian.PutUint16(fmtData[2:4], uint16(channels))
		binary.LittleEndian.PutUint32(fmtData[4:8], uint32(sampleRate))
		buf.WriteString("fmt ")
		binary.Write(&buf, binary.LittleEndian, uint32(len(fmtData)))
		buf.Write(fmtData)

		buf.WriteString("data")
		binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
		buf.Write(pcm)

		w.Header().Set("Content-Type", "audio/wav")
		w.Write(buf.Bytes())
	}
}

func TestSynthesize_ReturnsMonoPCM(t *testing.T) {
	pcm := []byte{0x10, 0x00, 0x20, 0x00, 0x30, 0x00}
	var body []byte
	var header http.Header
	srv := httptest.NewServer(serveWAV(t, 22050, 1, pcm, &body, &header))
	defer srv.Close()

	e, err := piper.New(srv.URL, piper.WithVoice("en_US-lessac-medium"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()

	clip, err := e.Synthesize(context.Background(), "hello there")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if clip.SampleRate != 22050 {
		t.Errorf("SampleRate = %d, want 22050", clip.SampleRate)
	}
	if !bytes.Equal(clip.PCM, pcm) {
		t.Errorf("PCM = %v, want %v", clip.PCM, pcm)
	}

	var req struct {
		Text  string `json:"text"`
		Voice string `json:"voice"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatalf("unmarshal request body: %v", err)
	}
	if req.Text != "hello there" {
		t.Errorf("request text = %q, want %q", req.Text, "hello there")
	}
	if req.Voice != "en_US-lessac-medium" {
		t.Errorf("request voice = %q, want %q", req.Voice, "en_US-lessac-medium")
	}
	if got := header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", got)
	}
	if got := header.Get("Accept"); got != "audio/wav" {
		t.Errorf("Accept = %q, want audio/wav", got)
	}
}

func TestSynthesize_DownmixesStereo(t *testing.T) {
	// Interleaved L/R pairs (100, 200) and (300, 500) average to 150, 400.
	stereo := make([]byte, 8)
	binary.LittleEndian.PutUint16(stereo[0:], 100)
	binary.LittleEndian.PutUint16(stereo[2:], 200)
	binary.LittleEndian.PutUint16(stereo[4:], 300)
	binary.LittleEndian.PutUint16(stereo[6:], 500)

	srv := httptest.NewServer(serveWAV(t, 22050, 2, stereo, nil, nil))
	defer srv.Close()

	e, err := piper.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	clip, err := e.Synthesize(context.Background(), "stereo voice")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	want := make([]byte, 4)
	binary.LittleEndian.PutUint16(want[0:], 150)
	binary.LittleEndian.PutUint16(want[2:], 400)
	if !bytes.Equal(clip.PCM, want) {
		t.Errorf("PCM = %v, want downmixed %v", clip.PCM, want)
	}
}

func TestSynthesize_ResamplesToOutputRate(t *testing.T) {
	pcm := make([]byte, 4)
	binary.LittleEndian.PutUint16(pcm[0:], 0)
	binary.LittleEndian.PutUint16(pcm[2:], 100)

	srv := httptest.NewServer(serveWAV(t, 22050, 1, pcm, nil, nil))
	defer srv.Close()

	e, err := piper.New(srv.URL, piper.WithOutputSampleRate(44100))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	clip, err := e.Synthesize(context.Background(), "resample me")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if clip.SampleRate != 44100 {
		t.Errorf("SampleRate = %d, want 44100", clip.SampleRate)
	}
	if len(clip.PCM) != 8 {
		t.Errorf("resampled PCM is %d bytes, want 8", len(clip.PCM))
	}
}

func TestSynthesize_EmptyTextSkipsRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	e, err := piper.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, text := range []string{"", "   \n\t"} {
		clip, err := e.Synthesize(context.Background(), text)
		if err != nil {
			t.Errorf("Synthesize(%q): %v", text, err)
		}
		if len(clip.PCM) != 0 {
			t.Errorf("Synthesize(%q) returned %d bytes of PCM", text, len(clip.PCM))
		}
	}
	if called {
		t.Error("empty text should not reach the server")
	}
}

func TestSynthesize_ServerErrorWrapsSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	e, err := piper.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := e.Synthesize(context.Background(), "anything"); !errors.Is(err, tts.ErrSynthesisFailed) {
		t.Errorf("error = %v, want ErrSynthesisFailed", err)
	}
}

func TestSynthesize_UnreachableServerWrapsSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	e, err := piper.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := e.Synthesize(context.Background(), "anything"); !errors.Is(err, tts.ErrSynthesisFailed) {
		t.Errorf("error = %v, want ErrSynthesisFailed", err)
	}
}

func TestSynthesize_GarbageResponseWrapsSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not a wav file"))
	}))
	defer srv.Close()

	e, err := piper.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := e.Synthesize(context.Background(), "anything"); !errors.Is(err, tts.ErrSynthesisFailed) {
		t.Errorf("error = %v, want ErrSynthesisFailed", err)
	}
}

func TestNew_RequiresServerURL(t *testing.T) {
	if _, err := piper.New(""); err == nil {
		t.Error("New accepted an empty server URL")
	}
}
