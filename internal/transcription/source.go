// Package transcription turns recognized speech into a draft transcript.
//
// A Source wraps a recognition Engine. While listening, every recognition
// event is reduced to the concatenation of its finalized segments; interim
// segments are ignored. Each non-empty reduction replaces the current
// transcript and is handed to the OnTranscript callback.
package transcription

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"
)

var (
	ErrUnsupported  = errors.New("speech recognition is not supported")
	ErrNotListening = errors.New("speech recognition is not active")
)

// Segment is one recognition alternative. Final segments will not change.
type Segment struct {
	Text  string
	Final bool
}

// Result is one recognition event. Segments before ResultIndex were already
// reported by an earlier event.
type Result struct {
	ResultIndex int
	Segments    []Segment
	EndOfSpeech bool
}

// Engine recognizes one chunk of captured audio.
type Engine interface {
	Recognize(ctx context.Context, audio []byte, mimeType string) (Result, error)
}

type Source struct {
	engine Engine
	log    *zap.Logger

	mu           sync.Mutex
	listening    bool
	generation   uint64
	transcript   string
	onTranscript func(string)
	onState      func(bool)
}

// NewSource builds a Source. A nil engine yields a permanently inactive
// source whose Supported reports false.
func NewSource(engine Engine, log *zap.Logger) *Source {
	if log == nil {
		log = zap.NewNop()
	}
	return &Source{engine: engine, log: log}
}

func (s *Source) Supported() bool {
	return s.engine != nil
}

// OnTranscript registers the consumer of finalized transcripts.
func (s *Source) OnTranscript(fn func(string)) {
	s.mu.Lock()
	s.onTranscript = fn
	s.mu.Unlock()
}

// OnStateChange registers a callback fired whenever listening flips.
func (s *Source) OnStateChange(fn func(listening bool)) {
	s.mu.Lock()
	s.onState = fn
	s.mu.Unlock()
}

// Start begins a new recognition run with an empty transcript. It is a no-op
// when unsupported or already listening.
func (s *Source) Start() {
	if !s.Supported() {
		return
	}

	s.mu.Lock()
	if s.listening {
		s.mu.Unlock()
		return
	}
	s.listening = true
	s.generation++
	s.transcript = ""
	cb := s.onState
	s.mu.Unlock()

	if cb != nil {
		cb(true)
	}
}

func (s *Source) Stop() {
	s.deactivate()
}

// Reset clears the transcript without touching the listening state.
func (s *Source) Reset() {
	s.mu.Lock()
	s.transcript = ""
	s.mu.Unlock()
}

func (s *Source) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listening
}

func (s *Source) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript
}

// Feed hands one chunk of audio to the engine. Engine errors and
// end-of-speech both end the run. Results that arrive after the run was
// stopped are dropped.
func (s *Source) Feed(ctx context.Context, audio []byte, mimeType string) error {
	if !s.Supported() {
		return ErrUnsupported
	}

	s.mu.Lock()
	if !s.listening {
		s.mu.Unlock()
		return ErrNotListening
	}
	gen := s.generation
	s.mu.Unlock()

	result, err := s.engine.Recognize(ctx, audio, mimeType)
	if err != nil {
		s.log.Warn("speech recognition error", zap.Error(err))
		s.deactivateGeneration(gen)
		return err
	}

	final := finalText(result)

	s.mu.Lock()
	if !s.listening || s.generation != gen {
		s.mu.Unlock()
		return nil
	}
	var cb func(string)
	if final != "" {
		s.transcript = final
		cb = s.onTranscript
	}
	s.mu.Unlock()

	if cb != nil {
		cb(final)
	}

	if result.EndOfSpeech {
		s.deactivateGeneration(gen)
	}
	return nil
}

func (s *Source) deactivate() {
	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()
	s.deactivateGeneration(gen)
}

func (s *Source) deactivateGeneration(gen uint64) {
	s.mu.Lock()
	if !s.listening || s.generation != gen {
		s.mu.Unlock()
		return
	}
	s.listening = false
	cb := s.onState
	s.mu.Unlock()

	if cb != nil {
		cb(false)
	}
}

func finalText(r Result) string {
	start := r.ResultIndex
	if start < 0 {
		start = 0
	}

	var b strings.Builder
	for i := start; i < len(r.Segments); i++ {
		if r.Segments[i].Final {
			b.WriteString(r.Segments[i].Text)
		}
	}
	return b.String()
}
