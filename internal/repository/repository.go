package repository

import (
	"database/sql"
	"fmt"

	"face-identification/internal/models"

	"github.com/jmoiron/sqlx"
)

// Repository инкапсулирует всю работу с базой данных
type Repository struct {
	db *sqlx.DB
}

// NewRepository создает новый репозиторий
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// ============ SCHEMA ============

// schema выполняется по порядку при старте
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id SERIAL PRIMARY KEY,
		user_id TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS face_images (
		id SERIAL PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
		image_path TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS detection_logs (
		id SERIAL PRIMARY KEY,
		detected_user_id TEXT,
		confidence DOUBLE PRECISION,
		image_path TEXT,
		detected_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_face_images_user_id ON face_images(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_detection_logs_user_id ON detection_logs(detected_user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_detection_logs_detected_at ON detection_logs(detected_at)`,
}

// InitSchema создает таблицы и индексы, если их еще нет
func (r *Repository) InitSchema() error {
	for _, stmt := range schema {
		if _, err := r.db.Exec(stmt); err != nil {
			return fmt.Errorf("ошибка инициализации схемы: %w", err)
		}
	}
	return nil
}

// ============ USERS ============

// UpsertUser создает пользователя или обновляет updated_at
func (r *Repository) UpsertUser(userID string) error {
	_, err := r.db.Exec(`
		INSERT INTO users (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO UPDATE SET updated_at = NOW()
	`, userID)
	return err
}

// GetAllUsers возвращает всех пользователей, новые первыми
func (r *Repository) GetAllUsers() ([]models.User, error) {
	users := []models.User{}
	err := r.db.Select(&users, `
		SELECT id, user_id, created_at, updated_at
		FROM users
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	return users, nil
}

// GetUserStats возвращает фотографии и число опознаний пользователя.
// Неизвестный пользователь - sql.ErrNoRows.
func (r *Repository) GetUserStats(userID string) (*models.UserStats, error) {
	var exists string
	if err := r.db.Get(&exists, "SELECT user_id FROM users WHERE user_id = $1", userID); err != nil {
		return nil, err
	}

	images, err := r.GetUserImages(userID)
	if err != nil {
		return nil, err
	}

	stats := &models.UserStats{
		UserID:     userID,
		Images:     images,
		ImageCount: len(images),
	}

	err = r.db.Get(&stats.DetectionCount, "SELECT COUNT(*) FROM detection_logs WHERE detected_user_id = $1", userID)
	if err != nil {
		return nil, err
	}

	return stats, nil
}

// ============ FACE IMAGES ============

// InsertFaceImage записывает фотографию пользователя
func (r *Repository) InsertFaceImage(userID, imagePath string) (int, error) {
	var id int
	err := r.db.QueryRow(`
		INSERT INTO face_images (user_id, image_path)
		VALUES ($1, $2)
		RETURNING id
	`, userID, imagePath).Scan(&id)
	return id, err
}

// GetUserImages возвращает пути фотографий пользователя, новые первыми
func (r *Repository) GetUserImages(userID string) ([]string, error) {
	images := []string{}
	err := r.db.Select(&images, `
		SELECT image_path FROM face_images
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	return images, nil
}

// ============ DETECTIONS ============

// LogDetection записывает результат идентификации.
// userID == nil - лицо не опознано.
func (r *Repository) LogDetection(userID *string, confidence *float64, imagePath *string) (int, error) {
	var id int
	err := r.db.QueryRow(`
		INSERT INTO detection_logs (detected_user_id, confidence, image_path)
		VALUES ($1, $2, $3)
		RETURNING id
	`, userID, confidence, imagePath).Scan(&id)
	return id, err
}

// GetRecentDetections возвращает последние limit записей журнала
func (r *Repository) GetRecentDetections(limit int) ([]models.DetectionLog, error) {
	logs := []models.DetectionLog{}
	err := r.db.Select(&logs, `
		SELECT id, detected_user_id, confidence, image_path, detected_at
		FROM detection_logs
		ORDER BY detected_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// ============ STATS ============

// GetStats возвращает общую статистику
func (r *Repository) GetStats() (*models.Stats, error) {
	var stats models.Stats

	err := r.db.Get(&stats, `
		SELECT
			(SELECT COUNT(*) FROM users) AS total_users,
			(SELECT COUNT(*) FROM face_images) AS total_images,
			(SELECT COUNT(*) FROM detection_logs) AS total_detections,
			(SELECT COUNT(*) FROM detection_logs WHERE detected_user_id IS NOT NULL) AS recognized
	`)
	if err != nil {
		return nil, err
	}

	return &stats, nil
}
