// Package gametime runs the accelerated in-game clock: one real second is
// one game minute, doubled under fast-forward. It derives day phase, season
// and weather, and fires day and month hooks the other stores subscribe to.
package gametime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	stateFileName = "game_time.json"

	hoursPerDay   = 24
	workStartHour = 9
	workEndHour   = 18

	// Days per season; four seasons per game year.
	seasonLength = 30
	monthLength  = 30
)

type Season string

const (
	SeasonSpring Season = "spring"
	SeasonSummer Season = "summer"
	SeasonAutumn Season = "autumn"
	SeasonWinter Season = "winter"
)

var seasonOrder = []Season{SeasonSpring, SeasonSummer, SeasonAutumn, SeasonWinter}

type TimeOfDay string

const (
	Morning   TimeOfDay = "morning"
	Afternoon TimeOfDay = "afternoon"
	Evening   TimeOfDay = "evening"
	Night     TimeOfDay = "night"
)

type Weather string

const (
	WeatherSunny  Weather = "sunny"
	WeatherCloudy Weather = "cloudy"
	WeatherRainy  Weather = "rainy"
	WeatherSnowy  Weather = "snowy"
)

// GameTime is the clock's current reading.
type GameTime struct {
	Day    int  `json:"day"`
	Hour   int  `json:"hour"`
	Minute int  `json:"minute"`
	Paused bool `json:"paused"`
}

func (t GameTime) String() string {
	return fmt.Sprintf("day %d %02d:%02d", t.Day, t.Hour, t.Minute)
}

// IsWorkTime reports whether the atelier is open.
func (t GameTime) IsWorkTime() bool {
	return t.Hour >= workStartHour && t.Hour < workEndHour
}

type persisted struct {
	GameTime     GameTime `json:"game_time"`
	Acceleration int      `json:"acceleration"`
}

// Hooks are fired from the tick loop as the clock crosses boundaries.
// OnDay receives the new day number; OnMonth fires every monthLength days.
type Hooks struct {
	OnTick  func(t GameTime)
	OnDay   func(day int)
	OnMonth func(day int)
}

type Clock struct {
	clock clockwork.Clock
	rng   *rand.Rand
	path  string
	hooks Hooks

	mu           sync.Mutex
	current      GameTime
	acceleration int
	cancel       context.CancelFunc
}

func New(clock clockwork.Clock, rng *rand.Rand, stateDir string, hooks Hooks) *Clock {
	return &Clock{
		clock:        clock,
		rng:          rng,
		path:         filepath.Join(stateDir, stateFileName),
		hooks:        hooks,
		current:      GameTime{Day: 1, Hour: workStartHour},
		acceleration: 1,
	}
}

// Load restores the persisted clock state; missing files keep the defaults.
func (c *Clock) Load() {
	raw, err := os.ReadFile(c.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			zap.L().Warn("gametime_read", zap.String("path", c.path), zap.Error(err))
		}
		return
	}
	var state persisted
	if err := json.Unmarshal(raw, &state); err != nil {
		zap.L().Warn("gametime_corrupt", zap.String("path", c.path), zap.Error(err))
		return
	}
	c.mu.Lock()
	if state.GameTime.Day > 0 {
		c.current = state.GameTime
	}
	if state.Acceleration == 2 {
		c.acceleration = 2
	}
	c.mu.Unlock()
}

// Save persists the current reading and acceleration.
func (c *Clock) Save() error {
	c.mu.Lock()
	state := persisted{GameTime: c.current, Acceleration: c.acceleration}
	c.mu.Unlock()

	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(c.path, raw, 0o644)
}

// Start runs the tick loop until the context ends or Stop is called.
func (c *Clock) Start(ctx context.Context) {
	c.Stop()

	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	go c.loop(ctx)
}

// Stop halts the tick loop; the clock keeps its reading.
func (c *Clock) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *Clock) loop(ctx context.Context) {
	ticker := c.clock.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			c.Tick()
		}
	}
}

// Tick advances the game clock by one real second's worth of game minutes
// and fires any crossed hooks. Exposed for deterministic tests and manual
// stepping.
func (c *Clock) Tick() {
	c.mu.Lock()
	if c.current.Paused {
		c.mu.Unlock()
		return
	}
	prevDay := c.current.Day
	c.advanceLocked(c.acceleration)
	t := c.current
	c.mu.Unlock()

	if c.hooks.OnTick != nil {
		c.hooks.OnTick(t)
	}
	if t.Day != prevDay {
		zap.L().Debug("game_day", zap.Int("day", t.Day))
		if c.hooks.OnDay != nil {
			c.hooks.OnDay(t.Day)
		}
		if t.Day%monthLength == 0 && c.hooks.OnMonth != nil {
			c.hooks.OnMonth(t.Day)
		}
	}
}

func (c *Clock) advanceLocked(minutes int) {
	c.current.Minute += minutes
	for c.current.Minute >= 60 {
		c.current.Minute -= 60
		c.current.Hour++
	}
	for c.current.Hour >= hoursPerDay {
		c.current.Hour -= hoursPerDay
		c.current.Day++
	}
}

// SkipToNextDay jumps to the next morning's opening hour.
func (c *Clock) SkipToNextDay() {
	c.mu.Lock()
	c.current.Day++
	c.current.Hour = workStartHour
	c.current.Minute = 0
	day := c.current.Day
	c.mu.Unlock()

	if c.hooks.OnDay != nil {
		c.hooks.OnDay(day)
	}
	if day%monthLength == 0 && c.hooks.OnMonth != nil {
		c.hooks.OnMonth(day)
	}
}

// ToggleFastForward flips between 1x and 2x speed and reports the new rate.
func (c *Clock) ToggleFastForward() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.acceleration == 1 {
		c.acceleration = 2
	} else {
		c.acceleration = 1
	}
	return c.acceleration
}

// TogglePause flips the paused flag and reports whether the clock is now
// paused.
func (c *Clock) TogglePause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current.Paused = !c.current.Paused
	return c.current.Paused
}

// Now returns the current game time.
func (c *Clock) Now() GameTime {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Clock) Acceleration() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acceleration
}

// DayProgress is how far through the day the clock is, 0..100.
func (c *Clock) DayProgress() float64 {
	t := c.Now()
	return float64(t.Hour*60+t.Minute) / float64(hoursPerDay*60) * 100
}

// TimeOfDay buckets the current hour into a day phase.
func (c *Clock) TimeOfDay() TimeOfDay {
	hour := c.Now().Hour
	switch {
	case hour >= 6 && hour < 12:
		return Morning
	case hour >= 12 && hour < 18:
		return Afternoon
	case hour >= 18 && hour < 22:
		return Evening
	default:
		return Night
	}
}

// CurrentSeason derives the season from the day number, 30 days apiece.
func (c *Clock) CurrentSeason() Season {
	day := c.Now().Day
	return seasonOrder[((day-1)/seasonLength)%len(seasonOrder)]
}

// CurrentWeather rolls weather weighted by season. Winter snows instead of
// raining.
func (c *Clock) CurrentWeather() Weather {
	type chance struct {
		weather Weather
		weight  float64
	}
	var chances []chance
	switch c.CurrentSeason() {
	case SeasonSummer:
		chances = []chance{{WeatherSunny, 0.6}, {WeatherCloudy, 0.2}, {WeatherRainy, 0.2}}
	case SeasonAutumn:
		chances = []chance{{WeatherSunny, 0.3}, {WeatherCloudy, 0.4}, {WeatherRainy, 0.3}}
	case SeasonWinter:
		chances = []chance{{WeatherSunny, 0.2}, {WeatherCloudy, 0.3}, {WeatherSnowy, 0.5}}
	default:
		chances = []chance{{WeatherSunny, 0.4}, {WeatherCloudy, 0.3}, {WeatherRainy, 0.3}}
	}

	c.mu.Lock()
	roll := c.rng.Float64()
	c.mu.Unlock()
	for _, ch := range chances {
		if roll < ch.weight {
			return ch.weather
		}
		roll -= ch.weight
	}
	return WeatherSunny
}

// Reset returns the clock to day one at opening time.
func (c *Clock) Reset() {
	c.mu.Lock()
	c.current = GameTime{Day: 1, Hour: workStartHour}
	c.acceleration = 1
	c.mu.Unlock()
}
