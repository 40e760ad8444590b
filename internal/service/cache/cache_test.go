package cache

import (
	"testing"
	"time"

	"face-identification/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStats(t *testing.T) {
	s := NewMemoryService()
	defer s.Close()
	assert.Equal(t, "memory", s.Backend())

	got, err := s.GetStats()
	require.NoError(t, err)
	assert.Nil(t, got, "пустой кэш возвращает nil без ошибки")

	require.NoError(t, s.SetStats(&models.Stats{TotalUsers: 2, TotalImages: 5}))
	got, err = s.GetStats()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.TotalUsers)
	assert.Equal(t, 5, got.TotalImages)

	require.NoError(t, s.InvalidateStats())
	got, err = s.GetStats()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryUsers(t *testing.T) {
	s := NewMemoryService()
	now := time.Now().UTC().Truncate(time.Second)

	users, err := s.GetUsers()
	require.NoError(t, err)
	assert.Nil(t, users)

	require.NoError(t, s.SetUsers([]models.User{{ID: 1, UserID: "alice", CreatedAt: now, UpdatedAt: now}}))
	users, err = s.GetUsers()
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "alice", users[0].UserID)
	assert.True(t, now.Equal(users[0].CreatedAt))
}

func TestInvalidateUserDropsDependentKeys(t *testing.T) {
	s := NewMemoryService()

	require.NoError(t, s.SetStats(&models.Stats{TotalUsers: 1}))
	require.NoError(t, s.SetUsers([]models.User{{UserID: "alice"}}))
	require.NoError(t, s.SetUserStats(&models.UserStats{UserID: "alice", ImageCount: 3}))
	require.NoError(t, s.SetUserStats(&models.UserStats{UserID: "bob", ImageCount: 1}))

	cached, err := s.GetUserStats("alice")
	require.NoError(t, err)
	assert.Equal(t, 3, cached.ImageCount)

	require.NoError(t, s.InvalidateUser("alice"))

	cached, err = s.GetUserStats("alice")
	require.NoError(t, err)
	assert.Nil(t, cached)

	stats, _ := s.GetStats()
	assert.Nil(t, stats)
	users, _ := s.GetUsers()
	assert.Nil(t, users)

	bob, err := s.GetUserStats("bob")
	require.NoError(t, err)
	assert.Equal(t, 1, bob.ImageCount)
}

func TestFallbackToMemory(t *testing.T) {
	// Порт 1 закрыт - подключение к Redis не удается
	s := NewServiceWithFallback("127.0.0.1:1", "", 0)
	defer s.Close()
	assert.Equal(t, "memory", s.Backend())
}
