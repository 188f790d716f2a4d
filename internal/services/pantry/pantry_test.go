package pantry

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestAddMaterialMergesByNameAndQuality(t *testing.T) {
	s := NewStore(t.TempDir(), "u1")

	require.NoError(t, s.AddMaterial(Material{Name: "silk", Quality: intPtr(3), Quantity: 5}))
	require.NoError(t, s.AddMaterial(Material{Name: "silk", Quality: intPtr(3), Quantity: 2}))
	require.NoError(t, s.AddMaterial(Material{Name: "silk", Quality: intPtr(5), Quantity: 1}))

	mats := s.Materials()
	require.Len(t, mats, 2, "same name+quality merges, different quality splits")
	assert.Equal(t, int64(7), mats[0].Quantity)
	assert.Equal(t, int64(8), s.CountMaterials("silk"))
}

func TestAddMaterialRespectsSlotCap(t *testing.T) {
	s := NewStore(t.TempDir(), "u1")
	for i := 0; i < defaultMaterialSlots; i++ {
		require.NoError(t, s.AddMaterial(Material{Name: fmt.Sprintf("mat-%d", i), Quantity: 1}))
	}

	err := s.AddMaterial(Material{Name: "one-too-many", Quantity: 1})
	assert.ErrorIs(t, err, ErrPantryFull)

	// Merging into an existing stack still works at capacity.
	require.NoError(t, s.AddMaterial(Material{Name: "mat-0", Quantity: 3}))
	assert.Equal(t, int64(4), s.CountMaterials("mat-0"))
}

func TestTakeMaterialsSpansStacks(t *testing.T) {
	s := NewStore(t.TempDir(), "u1")
	require.NoError(t, s.AddMaterial(Material{Name: "red silk", Quantity: 3}))
	require.NoError(t, s.AddMaterial(Material{Name: "blue silk", Quantity: 4}))
	require.NoError(t, s.AddMaterial(Material{Name: "wool", Quantity: 10}))

	assert.Equal(t, int64(7), s.CountMaterials("SILK"), "matching is case-insensitive")

	assert.True(t, s.TakeMaterials("silk", 5))
	assert.Equal(t, int64(2), s.CountMaterials("silk"))
	assert.Len(t, s.Materials(), 2, "emptied stacks free their slot")

	assert.False(t, s.TakeMaterials("silk", 5), "partial take reports failure")
	assert.Zero(t, s.CountMaterials("silk"), "but still consumes what was there")
	assert.Equal(t, int64(10), s.CountMaterials("wool"))
}

func TestAddProductMergesByName(t *testing.T) {
	s := NewStore(t.TempDir(), "u1")
	require.NoError(t, s.AddProduct(Product{Name: "summer dress", Quantity: 1, Price: 1200}))
	require.NoError(t, s.AddProduct(Product{Name: "summer dress", Quantity: 2}))

	products := s.Products()
	require.Len(t, products, 1)
	assert.Equal(t, int64(3), products[0].Quantity)
	assert.Equal(t, defaultProductSlots-1, s.FreeProductSlots())
}

func TestPantrySurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	s := NewStore(dir, "u1")
	require.NoError(t, s.AddMaterial(Material{Name: "silk", Quantity: 5}))
	require.NoError(t, s.AddProduct(Product{Name: "coat", Quantity: 1}))

	restarted := NewStore(dir, "u1")
	restarted.Load()
	assert.Equal(t, int64(5), restarted.CountMaterials("silk"))
	assert.Len(t, restarted.Products(), 1)

	// Another player's pantry is a different file.
	other := NewStore(dir, "u2")
	other.Load()
	assert.Empty(t, other.Materials())
}
