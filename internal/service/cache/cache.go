package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"face-identification/internal/models"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	keyStats = "stats"
	keyUsers = "users"

	statsTTL = 5 * time.Minute
	usersTTL = 10 * time.Minute
	userTTL  = 1 * time.Hour
)

// backend - хранилище сериализованных значений
type backend interface {
	get(ctx context.Context, key string) ([]byte, bool, error)
	set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	del(ctx context.Context, keys ...string) error
	close() error
	name() string
}

// Service управляет кэшированием через Redis или память процесса
type Service struct {
	backend backend
	ctx     context.Context
}

// NewService создает новый cache service поверх Redis
func NewService(addr, password string, db int) (*Service, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()

	// Проверяем подключение
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("не удалось подключиться к Redis: %w", err)
	}

	return &Service{
		backend: &redisBackend{client: client},
		ctx:     ctx,
	}, nil
}

// NewMemoryService создает кэш в памяти процесса
func NewMemoryService() *Service {
	return &Service{
		backend: &memoryBackend{store: gocache.New(5*time.Minute, 10*time.Minute)},
		ctx:     context.Background(),
	}
}

// NewServiceWithFallback подключается к Redis, а при неудаче использует память
func NewServiceWithFallback(addr, password string, db int) *Service {
	s, err := NewService(addr, password, db)
	if err != nil {
		log.Printf("⚠️  Redis недоступен (%v), используем кэш в памяти", err)
		return NewMemoryService()
	}
	return s
}

// Backend - имя используемого хранилища (redis или memory)
func (s *Service) Backend() string {
	return s.backend.name()
}

// Close закрывает соединение
func (s *Service) Close() error {
	return s.backend.close()
}

// ============ STATS CACHE ============

// GetStats получает статистику из кэша
func (s *Service) GetStats() (*models.Stats, error) {
	var stats models.Stats
	ok, err := s.getJSON(keyStats, &stats)
	if !ok || err != nil {
		return nil, err
	}
	return &stats, nil
}

// SetStats сохраняет статистику в кэш на 5 минут
func (s *Service) SetStats(stats *models.Stats) error {
	return s.setJSON(keyStats, stats, statsTTL)
}

// InvalidateStats очищает кэш статистики
func (s *Service) InvalidateStats() error {
	return s.backend.del(s.ctx, keyStats)
}

// ============ USERS CACHE ============

// GetUsers получает список пользователей из кэша
func (s *Service) GetUsers() ([]models.User, error) {
	var users []models.User
	ok, err := s.getJSON(keyUsers, &users)
	if !ok || err != nil {
		return nil, err
	}
	return users, nil
}

// SetUsers сохраняет список пользователей
func (s *Service) SetUsers(users []models.User) error {
	return s.setJSON(keyUsers, users, usersTTL)
}

// GetUserStats получает статистику пользователя из кэша
func (s *Service) GetUserStats(userID string) (*models.UserStats, error) {
	var stats models.UserStats
	ok, err := s.getJSON(userKey(userID), &stats)
	if !ok || err != nil {
		return nil, err
	}
	return &stats, nil
}

// SetUserStats сохраняет статистику пользователя на 1 час
func (s *Service) SetUserStats(stats *models.UserStats) error {
	return s.setJSON(userKey(stats.UserID), stats, userTTL)
}

// InvalidateUser сбрасывает все, что зависит от пользователя
func (s *Service) InvalidateUser(userID string) error {
	return s.backend.del(s.ctx, userKey(userID), keyUsers, keyStats)
}

func userKey(userID string) string {
	return fmt.Sprintf("user:%s", userID)
}

// ============ UTILITY ============

// getJSON возвращает false без ошибки, если ключа нет
func (s *Service) getJSON(key string, dst interface{}) (bool, error) {
	data, ok, err := s.backend.get(s.ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) setJSON(key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.backend.set(s.ctx, key, data, ttl)
}

// ============ BACKENDS ============

type redisBackend struct {
	client *redis.Client
}

func (b *redisBackend) get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := b.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil // Не найдено в кэше
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (b *redisBackend) set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return b.client.Set(ctx, key, data, ttl).Err()
}

func (b *redisBackend) del(ctx context.Context, keys ...string) error {
	return b.client.Del(ctx, keys...).Err()
}

func (b *redisBackend) close() error { return b.client.Close() }

func (b *redisBackend) name() string { return "redis" }

type memoryBackend struct {
	store *gocache.Cache
}

func (b *memoryBackend) get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := b.store.Get(key)
	if !ok {
		return nil, false, nil
	}
	return v.([]byte), true, nil
}

func (b *memoryBackend) set(_ context.Context, key string, data []byte, ttl time.Duration) error {
	b.store.Set(key, data, ttl)
	return nil
}

func (b *memoryBackend) del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		b.store.Delete(k)
	}
	return nil
}

func (b *memoryBackend) close() error {
	b.store.Flush()
	return nil
}

func (b *memoryBackend) name() string { return "memory" }
