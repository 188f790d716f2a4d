// Package music drives the background soundtrack: a looping playlist with
// crossfades between tracks. Actual audio output goes through the Sink
// interface; the player only schedules what plays and at which volume.
package music

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	fadeOutDuration  = 2 * time.Second
	fadeOutSteps     = 20
	fadeInDuration   = 3 * time.Second
	fadeInSteps      = 30
	pauseFadeSteps   = 10
	pauseFade        = time.Second
	watchdogInterval = 5 * time.Second

	defaultMasterVolume      = 1.0
	defaultMusicVolume       = 0.6
	defaultEnvironmentVolume = 0.4
)

// Track is one playlist entry. Duration is filled in by the sink once the
// track's metadata is known.
type Track struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Path     string        `json:"path"`
	Duration time.Duration `json:"duration"`
}

// Sink is the audio backend. Implementations load one track at a time and
// honor volume changes immediately.
type Sink interface {
	Load(track Track) error
	Start() error
	Pause()
	SetVolume(level float64)
	Playing() bool
}

// DefaultPlaylist is the shipped ambient rotation.
func DefaultPlaylist() []Track {
	return []Track{
		{ID: "track1", Name: "Atelier Ambience 1", Path: "music/ambience_1.mp3"},
		{ID: "track2", Name: "Atelier Ambience 2", Path: "music/ambience_2.mp3"},
		{ID: "track3", Name: "Atelier Ambience 3", Path: "music/ambience_3.mp3"},
	}
}

type Player struct {
	sink  Sink
	clock clockwork.Clock

	mu          sync.Mutex
	tracks      []Track
	index       int
	current     *Track
	playing     bool
	master      float64
	music       float64
	environment float64
}

func NewPlayer(sink Sink, clock clockwork.Clock, tracks []Track) *Player {
	return &Player{
		sink:        sink,
		clock:       clock,
		tracks:      tracks,
		master:      defaultMasterVolume,
		music:       defaultMusicVolume,
		environment: defaultEnvironmentVolume,
	}
}

// Play loads the current track if needed and fades it in. It blocks for the
// duration of the fade and is a no-op while already playing.
func (p *Player) Play() error {
	p.mu.Lock()
	if p.playing || len(p.tracks) == 0 {
		p.mu.Unlock()
		return nil
	}
	p.playing = true
	needLoad := p.current == nil
	index := p.index
	p.mu.Unlock()

	if needLoad {
		if err := p.load(index); err != nil {
			p.mu.Lock()
			p.playing = false
			p.mu.Unlock()
			return err
		}
	}
	if err := p.sink.Start(); err != nil {
		p.mu.Lock()
		p.playing = false
		p.mu.Unlock()
		return err
	}
	p.fadeIn()
	zap.L().Info("music_started", zap.String("track", p.CurrentTrackName()))
	return nil
}

// Pause fades the volume down over a second before pausing the sink.
func (p *Player) Pause() {
	p.mu.Lock()
	if !p.playing {
		p.mu.Unlock()
		return
	}
	p.playing = false
	p.mu.Unlock()

	p.fadeOut(pauseFade, pauseFadeSteps)
	p.sink.Pause()
	zap.L().Info("music_paused")
}

// Stop halts playback immediately, without fading.
func (p *Player) Stop() {
	p.mu.Lock()
	p.playing = false
	p.mu.Unlock()
	p.sink.Pause()
	p.sink.SetVolume(0)
}

// Next crossfades into the following track, wrapping at the end of the
// playlist. Silently ignored while paused.
func (p *Player) Next() error {
	return p.switchTrack(func(index, count int) int {
		return (index + 1) % count
	})
}

// Previous crossfades into the preceding track, wrapping at the start.
func (p *Player) Previous() error {
	return p.switchTrack(func(index, count int) int {
		if index == 0 {
			return count - 1
		}
		return index - 1
	})
}

// TrackFinished advances the playlist when the sink reports the current
// track ended.
func (p *Player) TrackFinished() {
	if err := p.Next(); err != nil {
		zap.L().Warn("music_advance", zap.Error(err))
	}
}

func (p *Player) switchTrack(pick func(index, count int) int) error {
	p.mu.Lock()
	if !p.playing || len(p.tracks) == 0 {
		p.mu.Unlock()
		return nil
	}
	next := pick(p.index, len(p.tracks))
	p.mu.Unlock()

	p.fadeOut(fadeOutDuration, fadeOutSteps)
	if err := p.load(next); err != nil {
		return err
	}

	p.mu.Lock()
	playing := p.playing
	p.mu.Unlock()
	if !playing {
		return nil
	}
	if err := p.sink.Start(); err != nil {
		return err
	}
	p.fadeIn()
	return nil
}

func (p *Player) load(index int) error {
	p.mu.Lock()
	if index < 0 || index >= len(p.tracks) {
		p.mu.Unlock()
		return nil
	}
	track := p.tracks[index]
	p.index = index
	p.current = &track
	p.mu.Unlock()

	if err := p.sink.Load(track); err != nil {
		zap.L().Error("music_load", zap.String("track", track.Name), zap.Error(err))
		return err
	}
	p.sink.SetVolume(p.targetVolume())
	return nil
}

// Run keeps playback alive: every few seconds it restarts the sink if the
// player thinks music should be playing but the sink went quiet.
func (p *Player) Run(ctx context.Context) {
	ticker := p.clock.NewTicker(watchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			p.mu.Lock()
			playing := p.playing
			p.mu.Unlock()
			if playing && !p.sink.Playing() {
				if err := p.sink.Start(); err != nil {
					zap.L().Warn("music_restore", zap.Error(err))
				}
			}
		}
	}
}

func (p *Player) fadeOut(duration time.Duration, steps int) {
	start := p.targetVolume()
	ticker := p.clock.NewTicker(duration / time.Duration(steps))
	defer ticker.Stop()
	for i := 1; i <= steps; i++ {
		<-ticker.Chan()
		p.sink.SetVolume(math.Max(0, start*(1-float64(i)/float64(steps))))
	}
	p.sink.SetVolume(0)
}

// fadeIn ramps toward the effective volume on an easeOutCubic curve, which
// sounds smoother than a linear ramp at low levels.
func (p *Player) fadeIn() {
	target := p.targetVolume()
	p.sink.SetVolume(0.01)
	ticker := p.clock.NewTicker(fadeInDuration / fadeInSteps)
	defer ticker.Stop()
	for i := 1; i <= fadeInSteps; i++ {
		<-ticker.Chan()
		progress := float64(i) / fadeInSteps
		eased := 1 - math.Pow(1-progress, 3)
		p.sink.SetVolume(math.Min(target, target*eased))
	}
	p.sink.SetVolume(target)
}

func (p *Player) targetVolume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.master * p.music
}

// SetMasterVolume scales everything; the sink hears master times music.
func (p *Player) SetMasterVolume(v float64) {
	p.mu.Lock()
	p.master = clampVolume(v)
	level := p.master * p.music
	p.mu.Unlock()
	p.sink.SetVolume(level)
}

func (p *Player) SetMusicVolume(v float64) {
	p.mu.Lock()
	p.music = clampVolume(v)
	level := p.master * p.music
	p.mu.Unlock()
	p.sink.SetVolume(level)
}

// SetEnvironmentVolume is tracked for the settings screen; no ambience
// channel consumes it yet.
func (p *Player) SetEnvironmentVolume(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.environment = clampVolume(v)
}

func clampVolume(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// AddTrack appends to the playlist.
func (p *Player) AddTrack(track Track) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracks = append(p.tracks, track)
}

// RemoveTrack drops a track by id; the playlist position resets when it
// would fall past the end.
func (p *Player) RemoveTrack(trackID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, track := range p.tracks {
		if track.ID == trackID {
			p.tracks = append(p.tracks[:i], p.tracks[i+1:]...)
			break
		}
	}
	if p.index >= len(p.tracks) {
		p.index = 0
	}
}

func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *Player) CurrentTrack() *Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	track := *p.current
	return &track
}

func (p *Player) CurrentTrackName() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return ""
	}
	return p.current.Name
}

func (p *Player) Tracks() []Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Track, len(p.tracks))
	copy(out, p.tracks)
	return out
}

func (p *Player) Volumes() (master, music, environment float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.master, p.music, p.environment
}
