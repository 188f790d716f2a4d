// Package pantry is the goose's home pantry: a small, slot-capped local
// inventory for materials and finished products, persisted to a per-player
// JSON file.
package pantry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	defaultMaterialSlots = 12
	defaultProductSlots  = 8
)

var ErrPantryFull = errors.New("pantry: no free slot")

type Material struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Icon       string `json:"icon,omitempty"`
	Price      int64  `json:"price,omitempty"`
	Quantity   int64  `json:"quantity"`
	Quality    *int   `json:"quality,omitempty"`
	Durability *int   `json:"durability,omitempty"`
	Comfort    *int   `json:"comfort,omitempty"`
	Style      *int   `json:"style,omitempty"`
}

type Product struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Icon     string         `json:"icon,omitempty"`
	Price    int64          `json:"price,omitempty"`
	Quantity int64          `json:"quantity"`
	Meta     map[string]any `json:"meta,omitempty"`
}

type state struct {
	Materials []Material `json:"materials"`
	Products  []Product  `json:"products"`
}

type Store struct {
	path          string
	materialSlots int
	productSlots  int

	mu        sync.Mutex
	materials []Material
	products  []Product
}

// NewStore builds a pantry persisted under stateDir, keyed by player so two
// profiles on one machine do not share shelves.
func NewStore(stateDir, playerID string) *Store {
	if playerID == "" {
		playerID = "guest"
	}
	return &Store{
		path:          filepath.Join(stateDir, fmt.Sprintf("home_pantry_%s.json", playerID)),
		materialSlots: defaultMaterialSlots,
		productSlots:  defaultProductSlots,
	}
}

// Load reads the pantry file. Missing or corrupt files fall back to an
// empty pantry.
func (s *Store) Load() {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			zap.L().Warn("pantry_read", zap.String("path", s.path), zap.Error(err))
		}
		return
	}
	var st state
	if err := json.Unmarshal(raw, &st); err != nil {
		zap.L().Warn("pantry_corrupt", zap.String("path", s.path), zap.Error(err))
		return
	}
	s.mu.Lock()
	s.materials, s.products = st.Materials, st.Products
	s.mu.Unlock()
}

func (s *Store) save() {
	s.mu.Lock()
	st := state{
		Materials: append([]Material(nil), s.materials...),
		Products:  append([]Product(nil), s.products...),
	}
	s.mu.Unlock()

	raw, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		zap.L().Warn("pantry_encode", zap.Error(err))
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		zap.L().Warn("pantry_write", zap.String("path", s.path), zap.Error(err))
		return
	}
	if err := os.WriteFile(s.path, raw, 0o644); err != nil {
		zap.L().Warn("pantry_write", zap.String("path", s.path), zap.Error(err))
	}
}

// AddMaterial stores a material, merging into an existing stack with the
// same name and quality. A new stack needs a free slot.
func (s *Store) AddMaterial(m Material) error {
	s.mu.Lock()
	merged := false
	for i := range s.materials {
		existing := &s.materials[i]
		if existing.ID == m.ID || (existing.Name == m.Name && equalQuality(existing.Quality, m.Quality)) {
			existing.Quantity += m.Quantity
			merged = true
			break
		}
	}
	if !merged {
		if len(s.materials) >= s.materialSlots {
			s.mu.Unlock()
			return ErrPantryFull
		}
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		s.materials = append(s.materials, m)
	}
	s.mu.Unlock()

	s.save()
	return nil
}

func equalQuality(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// AddProduct stores a finished product, merging stacks by name.
func (s *Store) AddProduct(p Product) error {
	s.mu.Lock()
	merged := false
	for i := range s.products {
		if s.products[i].Name == p.Name {
			s.products[i].Quantity += p.Quantity
			merged = true
			break
		}
	}
	if !merged {
		if len(s.products) >= s.productSlots {
			s.mu.Unlock()
			return ErrPantryFull
		}
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		s.products = append(s.products, p)
	}
	s.mu.Unlock()

	s.save()
	return nil
}

// TakeMaterials removes quantity units across every stack whose name
// contains substr, case-insensitively. It reports whether the full amount
// was available; a partial take still consumes what was there.
func (s *Store) TakeMaterials(substr string, quantity int64) bool {
	needle := strings.ToLower(substr)

	s.mu.Lock()
	need := quantity
	for i := range s.materials {
		if need == 0 {
			break
		}
		m := &s.materials[i]
		if !strings.Contains(strings.ToLower(m.Name), needle) {
			continue
		}
		take := m.Quantity
		if take > need {
			take = need
		}
		m.Quantity -= take
		need -= take
	}
	s.materials = lo.Filter(s.materials, func(m Material, _ int) bool { return m.Quantity > 0 })
	s.mu.Unlock()

	s.save()
	return need == 0
}

// CountMaterials sums the stock across stacks whose name contains substr.
func (s *Store) CountMaterials(substr string) int64 {
	needle := strings.ToLower(substr)
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.SumBy(s.materials, func(m Material) int64 {
		if strings.Contains(strings.ToLower(m.Name), needle) {
			return m.Quantity
		}
		return 0
	})
}

// Materials returns a copy of the material shelves.
func (s *Store) Materials() []Material {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Material(nil), s.materials...)
}

// Products returns a copy of the product shelves.
func (s *Store) Products() []Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Product(nil), s.products...)
}

// FreeMaterialSlots reports how many material stacks still fit.
func (s *Store) FreeMaterialSlots() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.materialSlots - len(s.materials)
}

// FreeProductSlots reports how many product stacks still fit.
func (s *Store) FreeProductSlots() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.productSlots - len(s.products)
}

// Reset empties the pantry and persists the empty state.
func (s *Store) Reset() {
	s.mu.Lock()
	s.materials, s.products = nil, nil
	s.mu.Unlock()
	s.save()
}
