package music

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	mu      sync.Mutex
	loaded  []Track
	starts  int
	pauses  int
	volumes []float64
	playing bool
	loadErr error
}

func (s *fakeSink) Load(track Track) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return s.loadErr
	}
	s.loaded = append(s.loaded, track)
	return nil
}

func (s *fakeSink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts++
	s.playing = true
	return nil
}

func (s *fakeSink) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pauses++
	s.playing = false
}

func (s *fakeSink) SetVolume(level float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volumes = append(s.volumes, level)
}

func (s *fakeSink) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

func (s *fakeSink) setPlaying(playing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = playing
}

func (s *fakeSink) lastVolume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.volumes) == 0 {
		return -1
	}
	return s.volumes[len(s.volumes)-1]
}

func (s *fakeSink) sawVolume(level float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.volumes {
		if v == level {
			return true
		}
	}
	return false
}

func (s *fakeSink) loadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.loaded)
}

func (s *fakeSink) startCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

// All fade steps run on a 100ms cadence. The fake ticker drops ticks when
// the fade goroutine lags, so advance until the fade reports completion
// rather than counting steps.
func drainFade(t *testing.T, clock *clockwork.FakeClock, done <-chan struct{}) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case <-done:
			return
		case <-timeout:
			t.Fatal("fade did not complete")
		case <-time.After(time.Millisecond):
			clock.Advance(100 * time.Millisecond)
		}
	}
}

func startPlaying(t *testing.T, p *Player, clock *clockwork.FakeClock) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		require.NoError(t, p.Play())
	}()
	drainFade(t, clock, done)
}

func TestPlayFadesInToEffectiveVolume(t *testing.T) {
	sink := &fakeSink{}
	clock := clockwork.NewFakeClock()
	p := NewPlayer(sink, clock, DefaultPlaylist())

	startPlaying(t, p, clock)

	assert.True(t, p.Playing())
	assert.Equal(t, 1, sink.loadCount())
	assert.Equal(t, 1, sink.startCount())
	assert.InDelta(t, 0.6, sink.lastVolume(), 0.0001)
	require.NotNil(t, p.CurrentTrack())
	assert.Equal(t, "track1", p.CurrentTrack().ID)
}

func TestPlayIsIdempotent(t *testing.T) {
	sink := &fakeSink{}
	clock := clockwork.NewFakeClock()
	p := NewPlayer(sink, clock, DefaultPlaylist())

	startPlaying(t, p, clock)
	require.NoError(t, p.Play())

	assert.Equal(t, 1, sink.startCount())
}

func TestPlayReportsLoadFailure(t *testing.T) {
	sink := &fakeSink{loadErr: errors.New("missing file")}
	clock := clockwork.NewFakeClock()
	p := NewPlayer(sink, clock, DefaultPlaylist())

	err := p.Play()

	require.Error(t, err)
	assert.False(t, p.Playing())
}

func TestNextCrossfadesIntoFollowingTrack(t *testing.T) {
	sink := &fakeSink{}
	clock := clockwork.NewFakeClock()
	p := NewPlayer(sink, clock, DefaultPlaylist())
	startPlaying(t, p, clock)

	done := make(chan struct{})
	go func() {
		defer close(done)
		require.NoError(t, p.Next())
	}()
	drainFade(t, clock, done)

	require.NotNil(t, p.CurrentTrack())
	assert.Equal(t, "track2", p.CurrentTrack().ID)
	assert.Equal(t, 2, sink.loadCount())
	assert.True(t, sink.sawVolume(0), "volume should reach silence between tracks")
	assert.InDelta(t, 0.6, sink.lastVolume(), 0.0001)
}

func TestPreviousWrapsToLastTrack(t *testing.T) {
	sink := &fakeSink{}
	clock := clockwork.NewFakeClock()
	p := NewPlayer(sink, clock, DefaultPlaylist())
	startPlaying(t, p, clock)

	done := make(chan struct{})
	go func() {
		defer close(done)
		require.NoError(t, p.Previous())
	}()
	drainFade(t, clock, done)

	require.NotNil(t, p.CurrentTrack())
	assert.Equal(t, "track3", p.CurrentTrack().ID)
}

func TestNextIgnoredWhilePaused(t *testing.T) {
	sink := &fakeSink{}
	clock := clockwork.NewFakeClock()
	p := NewPlayer(sink, clock, DefaultPlaylist())

	require.NoError(t, p.Next())

	assert.Equal(t, 0, sink.loadCount())
}

func TestPauseFadesOutThenSilencesSink(t *testing.T) {
	sink := &fakeSink{}
	clock := clockwork.NewFakeClock()
	p := NewPlayer(sink, clock, DefaultPlaylist())
	startPlaying(t, p, clock)

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Pause()
	}()
	drainFade(t, clock, done)

	assert.False(t, p.Playing())
	assert.False(t, sink.Playing())
	assert.Equal(t, float64(0), sink.lastVolume())
}

func TestVolumeChangesReachSink(t *testing.T) {
	sink := &fakeSink{}
	p := NewPlayer(sink, clockwork.NewFakeClock(), DefaultPlaylist())

	p.SetMusicVolume(0.5)
	assert.InDelta(t, 0.5, sink.lastVolume(), 0.0001)

	p.SetMasterVolume(0.5)
	assert.InDelta(t, 0.25, sink.lastVolume(), 0.0001)

	p.SetMasterVolume(2)
	assert.InDelta(t, 0.5, sink.lastVolume(), 0.0001)

	master, musicVol, _ := p.Volumes()
	assert.Equal(t, 1.0, master)
	assert.Equal(t, 0.5, musicVol)
}

func TestWatchdogRestartsStalledPlayback(t *testing.T) {
	sink := &fakeSink{}
	clock := clockwork.NewFakeClock()
	p := NewPlayer(sink, clock, DefaultPlaylist())
	startPlaying(t, p, clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	sink.setPlaying(false)
	clock.BlockUntil(1)
	clock.Advance(watchdogInterval)

	require.Eventually(t, func() bool {
		return sink.startCount() == 2
	}, time.Second, 5*time.Millisecond)
}

func TestRemoveTrackResetsPositionPastEnd(t *testing.T) {
	sink := &fakeSink{}
	p := NewPlayer(sink, clockwork.NewFakeClock(), DefaultPlaylist())
	p.mu.Lock()
	p.index = 2
	p.mu.Unlock()

	p.RemoveTrack("track3")

	assert.Len(t, p.Tracks(), 2)
	p.mu.Lock()
	index := p.index
	p.mu.Unlock()
	assert.Equal(t, 0, index)
}

func TestAddTrackExtendsPlaylist(t *testing.T) {
	sink := &fakeSink{}
	p := NewPlayer(sink, clockwork.NewFakeClock(), DefaultPlaylist())

	p.AddTrack(Track{ID: "track4", Name: "Evening Set", Path: "music/evening.mp3"})

	assert.Len(t, p.Tracks(), 4)
}
