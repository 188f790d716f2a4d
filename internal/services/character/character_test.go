package character

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsToFirstCharacter(t *testing.T) {
	s := NewStore(t.TempDir())
	require.NoError(t, s.Load())

	sel := s.Selected()
	require.NotNil(t, sel)
	assert.Equal(t, 1, sel.ID)
	assert.Len(t, s.Characters(), 3)
}

func TestSelectionSurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	s := NewStore(dir)
	require.NoError(t, s.Load())
	require.NoError(t, s.Select(3))
	require.NoError(t, s.Save())

	restarted := NewStore(dir)
	require.NoError(t, restarted.Load())
	sel := restarted.Selected()
	require.NotNil(t, sel)
	assert.Equal(t, 3, sel.ID)
}

func TestSelectUnknownCharacter(t *testing.T) {
	s := NewStore(t.TempDir())
	require.NoError(t, s.Load())
	assert.ErrorIs(t, s.Select(99), ErrCharacterNotFound)
}

func TestUpgradeSkillSpendsPointsAndRaisesCost(t *testing.T) {
	s := NewStore(t.TempDir())
	require.NoError(t, s.Load())

	// Gosling starts with 3 points; creativity costs 1.
	require.NoError(t, s.UpgradeSkill(1, 3))

	c := s.Characters()[0]
	assert.Equal(t, 2, c.SkillPoints)
	assert.Equal(t, 1, c.Skills[2].Level)
	assert.Equal(t, 2, c.Skills[2].Cost, "cost rises by half, rounded up")

	// Next level costs 2, then 3.
	require.NoError(t, s.UpgradeSkill(1, 3))
	c = s.Characters()[0]
	assert.Equal(t, 0, c.SkillPoints)
	assert.Equal(t, 3, c.Skills[2].Cost)

	assert.ErrorIs(t, s.UpgradeSkill(1, 3), ErrNoSkillPoints)
	assert.ErrorIs(t, s.UpgradeSkill(1, 99), ErrSkillNotFound)
	assert.ErrorIs(t, s.UpgradeSkill(42, 1), ErrCharacterNotFound)
}

func TestUpgradeSkillStopsAtMaxLevel(t *testing.T) {
	s := NewStore(t.TempDir())
	require.NoError(t, s.Load())

	// Magnus: branding is level 1 of 3 with 8 points; cost 5.
	require.NoError(t, s.UpgradeSkill(3, 3))
	c := s.Characters()[2]
	assert.Equal(t, 2, c.Skills[2].Level)
	assert.Equal(t, 3, c.SkillPoints)
	assert.Equal(t, 8, c.Skills[2].Cost)

	assert.ErrorIs(t, s.UpgradeSkill(3, 3), ErrNoSkillPoints)

	// Force the points to verify the level cap itself.
	s.characters[2].SkillPoints = 100
	require.NoError(t, s.UpgradeSkill(3, 3))
	assert.ErrorIs(t, s.UpgradeSkill(3, 3), ErrSkillMaxed)
}

func TestSkillProgressSurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	s := NewStore(dir)
	require.NoError(t, s.Load())
	require.NoError(t, s.UpgradeSkill(1, 1))
	require.NoError(t, s.Save())

	restarted := NewStore(dir)
	require.NoError(t, restarted.Load())
	c := restarted.Characters()[0]
	assert.Equal(t, 2, c.Skills[0].Level)
	assert.Equal(t, 2, c.SkillPoints)
}
