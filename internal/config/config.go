package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Бэкенды детекции лиц
const (
	DetectorOpenCV = "opencv"
	DetectorRemote = "remote"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Storage     StorageConfig
	Recognition RecognitionConfig
	Redis       RedisConfig
	Log         LogConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port    string
	Host    string
	GinMode string
}

// DatabaseConfig - настройки базы данных
type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	DBName       string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// StorageConfig - настройки хранилища файлов
type StorageConfig struct {
	KnowledgeDir string
	TempDir      string
}

// RecognitionConfig - настройки распознавания
type RecognitionConfig struct {
	MatchThreshold float64
	FaceSize       int
	Detector       string
	CascadePath    string // пусто - искать в стандартных путях
	DetectorURL    string
	LBPHRadius     int
	LBPHNeighbors  int
	LBPHThreshold  float64
	RebuildOnStart bool
}

// RedisConfig - настройки Redis
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LogConfig - настройки логирования
type LogConfig struct {
	Level  string
	Format string
}

// Load загружает конфигурацию из переменных окружения
// с fallback на значения по умолчанию. Файл .env подхватывается, если есть.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:    getEnv("SERVER_PORT", "3000"),
			Host:    getEnv("SERVER_HOST", "0.0.0.0"),
			GinMode: getEnv("GIN_MODE", "debug"),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "faceuser"),
			Password:     getEnv("DB_PASSWORD", "facepass"),
			DBName:       getEnv("DB_NAME", "facedb"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),
		},
		Storage: StorageConfig{
			KnowledgeDir: getEnv("KNOWLEDGE_DIR", "knowledge"),
			TempDir:      getEnv("TEMP_DIR", "temp"),
		},
		Recognition: RecognitionConfig{
			MatchThreshold: getEnvFloat("MATCH_THRESHOLD", 80.0),
			FaceSize:       getEnvInt("FACE_SIZE", 200),
			Detector:       getEnv("DETECTOR_BACKEND", DetectorOpenCV),
			CascadePath:    getEnv("CASCADE_PATH", ""),
			DetectorURL:    getEnv("DETECTOR_URL", "http://localhost:5000"),
			LBPHRadius:     getEnvInt("LBPH_RADIUS", 1),
			LBPHNeighbors:  getEnvInt("LBPH_NEIGHBORS", 8),
			LBPHThreshold:  getEnvFloat("LBPH_THRESHOLD", 123.0),
			RebuildOnStart: getEnvBool("REBUILD_ON_START", true),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}
}

// Validate проверяет значения, без которых сервис не запустится
func (c *Config) Validate() error {
	var errs []error

	r := c.Recognition
	if r.MatchThreshold <= 0 {
		errs = append(errs, fmt.Errorf("MATCH_THRESHOLD должен быть положительным, получено %v", r.MatchThreshold))
	}
	if r.FaceSize <= 0 {
		errs = append(errs, fmt.Errorf("FACE_SIZE должен быть положительным, получено %d", r.FaceSize))
	}
	switch r.Detector {
	case DetectorOpenCV:
	case DetectorRemote:
		if r.DetectorURL == "" {
			errs = append(errs, errors.New("DETECTOR_URL обязателен для DETECTOR_BACKEND=remote"))
		}
	default:
		errs = append(errs, fmt.Errorf("неизвестный DETECTOR_BACKEND %q", r.Detector))
	}

	if c.Storage.KnowledgeDir == "" || c.Storage.TempDir == "" {
		errs = append(errs, errors.New("KNOWLEDGE_DIR и TEMP_DIR не могут быть пустыми"))
	}

	return errors.Join(errs...)
}

// GetDSN возвращает строку подключения к PostgreSQL
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// Address - адрес, который слушает HTTP сервер
func (c *ServerConfig) Address() string {
	return c.Host + ":" + c.Port
}

// getEnv получает переменную окружения или возвращает значение по умолчанию
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt получает целочисленную переменную окружения
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat получает дробную переменную окружения
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvBool получает булеву переменную окружения (1/0, true/false)
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
