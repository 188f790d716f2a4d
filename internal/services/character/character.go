// Package character holds the playable goose roster and the skill trees.
// Selection and skill progress live in a local state file; the roster itself
// is fixed content.
package character

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

const stateFileName = "characters.json"

var (
	ErrCharacterNotFound = errors.New("character: not found")
	ErrSkillNotFound     = errors.New("character: skill not found")
	ErrSkillMaxed        = errors.New("character: skill at max level")
	ErrNoSkillPoints     = errors.New("character: not enough skill points")
	ErrNoSelection       = errors.New("character: no character selected")
)

type Skill struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Level       int    `json:"level"`
	MaxLevel    int    `json:"max_level"`
	Cost        int    `json:"cost"`
}

type Character struct {
	ID            int     `json:"id"`
	Name          string  `json:"name"`
	Title         string  `json:"title"`
	Image         string  `json:"image"`
	Level         int     `json:"level"`
	LevelProgress int     `json:"level_progress"`
	SkillPoints   int     `json:"skill_points"`
	Description   string  `json:"description"`
	Skills        []Skill `json:"skills"`
}

// persisted is the slice of mutable state written to disk.
type persisted struct {
	SelectedID int         `json:"selected_id"`
	Characters []Character `json:"characters"`
}

type Store struct {
	path string

	mu         sync.Mutex
	characters []Character
	selectedID int
}

// NewStore builds the roster; stateDir is where the selection file lives.
func NewStore(stateDir string) *Store {
	return &Store{
		path:       filepath.Join(stateDir, stateFileName),
		characters: defaultRoster(),
	}
}

func defaultRoster() []Character {
	return []Character{
		{
			ID: 1, Name: "Gosling", Title: "novice designer",
			Image: "/characters/pers-1.svg",
			Level: 1, LevelProgress: 25, SkillPoints: 3,
			Description: "A young goose with big ambitions, starting out on simple designs.",
			Skills: []Skill{
				{ID: 1, Name: "design basics", Description: "improves basic design quality 10% per level", Level: 1, MaxLevel: 5, Cost: 1},
				{ID: 2, Name: "fabric handling", Description: "cuts material usage 5% per level", Level: 0, MaxLevel: 3, Cost: 2},
				{ID: 3, Name: "creativity", Description: "speeds up new designs 15% per level", Level: 0, MaxLevel: 4, Cost: 1},
			},
		},
		{
			ID: 2, Name: "Greta", Title: "seasoned couturier",
			Image: "/characters/pers-2.svg",
			Level: 3, LevelProgress: 60, SkillPoints: 5,
			Description: "An experienced goose who knows the trends and builds stylish collections.",
			Skills: []Skill{
				{ID: 1, Name: "fashion trends", Description: "raises clothing popularity 12% per level", Level: 2, MaxLevel: 5, Cost: 2},
				{ID: 2, Name: "collection management", Description: "raises production efficiency 8% per level", Level: 1, MaxLevel: 4, Cost: 3},
				{ID: 3, Name: "marketing", Description: "cuts advertising costs 7% per level", Level: 0, MaxLevel: 3, Cost: 2},
			},
		},
		{
			ID: 3, Name: "Magnus", Title: "fashion magnate",
			Image: "/characters/pers-3.svg",
			Level: 5, LevelProgress: 80, SkillPoints: 8,
			Description: "A magnificent goose running his own fashion empire of exclusive collections.",
			Skills: []Skill{
				{ID: 1, Name: "exclusive designs", Description: "unique pieces raise profit 15% per level", Level: 3, MaxLevel: 5, Cost: 3},
				{ID: 2, Name: "international contacts", Description: "premium materials 10% cheaper per level", Level: 2, MaxLevel: 4, Cost: 4},
				{ID: 3, Name: "branding", Description: "raises customer loyalty 20% per level", Level: 1, MaxLevel: 3, Cost: 5},
			},
		},
	}
}

// Load restores the saved selection and skill progress. A missing file
// leaves the defaults with the first character selected.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.selectedID = s.characters[0].ID
		return nil
	}
	if err != nil {
		return fmt.Errorf("read character state: %w", err)
	}

	var state persisted
	if err := json.Unmarshal(raw, &state); err != nil {
		zap.L().Warn("character_state_corrupt", zap.String("path", s.path), zap.Error(err))
		s.selectedID = s.characters[0].ID
		return nil
	}
	if len(state.Characters) > 0 {
		s.characters = state.Characters
	}
	s.selectedID = state.SelectedID
	if s.byIDLocked(s.selectedID) == nil {
		s.selectedID = s.characters[0].ID
	}
	return nil
}

// Save writes the selection and skill progress to the state file.
func (s *Store) Save() error {
	s.mu.Lock()
	state := persisted{SelectedID: s.selectedID, Characters: s.characters}
	s.mu.Unlock()

	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.path, raw, 0o644)
}

// Characters returns a copy of the roster.
func (s *Store) Characters() []Character {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Character, len(s.characters))
	for i, c := range s.characters {
		out[i] = c
		out[i].Skills = append([]Skill(nil), c.Skills...)
	}
	return out
}

// Selected returns a copy of the chosen character, or nil.
func (s *Store) Selected() *Character {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.byIDLocked(s.selectedID)
	if c == nil {
		return nil
	}
	copied := *c
	copied.Skills = append([]Skill(nil), c.Skills...)
	return &copied
}

// Select switches the active character.
func (s *Store) Select(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byIDLocked(id) == nil {
		return ErrCharacterNotFound
	}
	s.selectedID = id
	zap.L().Info("character_selected", zap.Int("id", id))
	return nil
}

// UpgradeSkill spends skill points on one level of the skill. Each level
// makes the next more expensive.
func (s *Store) UpgradeSkill(characterID, skillID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.byIDLocked(characterID)
	if c == nil {
		return ErrCharacterNotFound
	}
	var skill *Skill
	for i := range c.Skills {
		if c.Skills[i].ID == skillID {
			skill = &c.Skills[i]
			break
		}
	}
	if skill == nil {
		return ErrSkillNotFound
	}
	if skill.Level >= skill.MaxLevel {
		return ErrSkillMaxed
	}
	if c.SkillPoints < skill.Cost {
		return ErrNoSkillPoints
	}

	c.SkillPoints -= skill.Cost
	skill.Level++
	skill.Cost = int(math.Ceil(float64(skill.Cost) * 1.5))

	zap.L().Info("skill_upgraded",
		zap.Int("character", characterID),
		zap.String("skill", skill.Name),
		zap.Int("level", skill.Level),
	)
	return nil
}

func (s *Store) byIDLocked(id int) *Character {
	for i := range s.characters {
		if s.characters[i].ID == id {
			return &s.characters[i]
		}
	}
	return nil
}
