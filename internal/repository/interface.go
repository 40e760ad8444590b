package repository

import "face-identification/internal/models"

// RepositoryInterface определяет контракт для работы с данными
// Это позволяет легко мокать репозиторий в тестах
type RepositoryInterface interface {
	// Users
	UpsertUser(userID string) error
	GetAllUsers() ([]models.User, error)
	GetUserStats(userID string) (*models.UserStats, error)

	// Face images
	InsertFaceImage(userID, imagePath string) (int, error)
	GetUserImages(userID string) ([]string, error)

	// Detections
	LogDetection(userID *string, confidence *float64, imagePath *string) (int, error)
	GetRecentDetections(limit int) ([]models.DetectionLog, error)

	// Stats
	GetStats() (*models.Stats, error)
}

// Проверяем что Repository реализует RepositoryInterface
var _ RepositoryInterface = (*Repository)(nil)
