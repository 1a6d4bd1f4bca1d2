package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitializeThenLatest(t *testing.T) {
	s := New[float64]()
	assert.Nil(t, s.Initialize(100, 5))

	value, version, err := s.Latest(100)
	assert.Nil(t, err)
	assert.Equal(t, float64(5), value)
	assert.Equal(t, uint64(0), version)
}

func TestInitializeTwiceFails(t *testing.T) {
	s := New[float64]()
	assert.Nil(t, s.Initialize(100, 5))
	assert.Equal(t, ErrAlreadyInitialized, s.Initialize(100, 6))
}

func TestReadAtMissingKey(t *testing.T) {
	s := New[float64]()
	_, _, err := s.ReadAt(1, 100)
	assert.Equal(t, ErrNotFound, err)
}

func TestHistoricalRead(t *testing.T) {
	s := New[float64]()
	assert.Nil(t, s.Initialize(1, 0))
	s.Append(1, 1, 1)
	s.Append(1, 2, 2)
	s.Append(1, 3, 3)

	value, version, err := s.ReadAt(1, 2)
	assert.Nil(t, err)
	assert.Equal(t, float64(2), value)
	assert.Equal(t, uint64(2), version)

	value, version, err = s.ReadAt(1, 0)
	assert.Nil(t, err)
	assert.Equal(t, float64(0), value)
	assert.Equal(t, uint64(0), version)
}

func TestAppendNonIncreasingTsPanics(t *testing.T) {
	s := New[float64]()
	assert.Nil(t, s.Initialize(1, 0))
	s.Append(1, 5, 1)

	assert.Panics(t, func() {
		s.Append(1, 5, 2)
	})
	assert.Panics(t, func() {
		s.Append(1, 4, 2)
	})
}

func TestSnapshotIsolatedFromLaterCommits(t *testing.T) {
	s := New[float64]()
	assert.Nil(t, s.Initialize(1, 0))

	snap := s.Snapshot()
	s.Append(1, 1, 9)

	value, _, err := snap.ReadAt(1, 100)
	assert.Nil(t, err)
	assert.Equal(t, float64(0), value, "snapshot must not observe commits made after it was taken")

	value, _, err = s.ReadAt(1, 100)
	assert.Nil(t, err)
	assert.Equal(t, float64(9), value)
}

func TestExists(t *testing.T) {
	s := New[float64]()
	assert.False(t, s.Exists(1))
	assert.Nil(t, s.Initialize(1, 0))
	assert.True(t, s.Exists(1))
}
