package music

import (
	"sync"

	"go.uber.org/zap"
)

// LogSink is the headless audio backend: it tracks playback state and logs
// transitions so the connected UI can mirror them. The browser performs the
// actual decoding.
type LogSink struct {
	mu      sync.Mutex
	track   Track
	level   float64
	playing bool
}

func NewLogSink() *LogSink { return &LogSink{} }

func (s *LogSink) Load(track Track) error {
	s.mu.Lock()
	s.track = track
	s.mu.Unlock()
	zap.L().Info("audio_load", zap.String("track", track.Name), zap.String("path", track.Path))
	return nil
}

func (s *LogSink) Start() error {
	s.mu.Lock()
	s.playing = true
	track := s.track
	s.mu.Unlock()
	zap.L().Debug("audio_start", zap.String("track", track.Name))
	return nil
}

func (s *LogSink) Pause() {
	s.mu.Lock()
	s.playing = false
	s.mu.Unlock()
	zap.L().Debug("audio_pause")
}

func (s *LogSink) SetVolume(level float64) {
	s.mu.Lock()
	s.level = level
	s.mu.Unlock()
}

func (s *LogSink) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

func (s *LogSink) Level() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}
