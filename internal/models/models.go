package models

import (
	"database/sql"
	"time"
)

// User представляет зарегистрированного пользователя
type User struct {
	ID        int       `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// FaceImage представляет фотографию пользователя в корпусе
type FaceImage struct {
	ID        int       `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	ImagePath string    `db:"image_path" json:"image_path"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// DetectionLog - запись журнала идентификаций
type DetectionLog struct {
	ID             int             `db:"id" json:"id"`
	DetectedUserID sql.NullString  `db:"detected_user_id" json:"-"`
	Confidence     sql.NullFloat64 `db:"confidence" json:"-"`
	ImagePath      sql.NullString  `db:"image_path" json:"-"`
	DetectedAt     time.Time       `db:"detected_at" json:"detected_at"`
}

// DetectionLogView - запись журнала для API (без sql.Null* типов)
type DetectionLogView struct {
	ID             int       `json:"id"`
	DetectedUserID *string   `json:"detected_user_id"`
	Confidence     *float64  `json:"confidence"`
	ImagePath      *string   `json:"image_path,omitempty"`
	DetectedAt     time.Time `json:"detected_at"`
}

// View конвертирует запись журнала в ответ API
func (d DetectionLog) View() DetectionLogView {
	v := DetectionLogView{ID: d.ID, DetectedAt: d.DetectedAt}
	if d.DetectedUserID.Valid {
		v.DetectedUserID = &d.DetectedUserID.String
	}
	if d.Confidence.Valid {
		v.Confidence = &d.Confidence.Float64
	}
	if d.ImagePath.Valid {
		v.ImagePath = &d.ImagePath.String
	}
	return v
}

// UserStats - пользователь с его фотографиями и числом опознаний
type UserStats struct {
	UserID         string   `json:"user_id"`
	Images         []string `json:"images"`
	ImageCount     int      `json:"image_count"`
	DetectionCount int      `json:"detection_count"`
}

// Stats - общая статистика системы
type Stats struct {
	TotalUsers      int `db:"total_users" json:"total_users"`
	TotalImages     int `db:"total_images" json:"total_images"`
	TotalDetections int `db:"total_detections" json:"total_detections"`
	Recognized      int `db:"recognized" json:"recognized"`
}

// ApiResponse - стандартная обертка ответа
type ApiResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// AddFaceResponse - ответ на добавление фотографий
type AddFaceResponse struct {
	UserID      string `json:"user_id"`
	ImagesSaved int    `json:"images_saved"`
}

// DetectFaceResponse - ответ на идентификацию
type DetectFaceResponse struct {
	UserID   *string  `json:"user_id"`
	Detected bool     `json:"detected"`
	Distance *float64 `json:"distance,omitempty"`
}

// ErrorResponse - стандартный ответ с ошибкой
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// DetectorResponse - ответ внешнего сервера детекции
type DetectorResponse struct {
	Success bool    `json:"success"`
	Faces   [][]int `json:"faces"` // [x1, y1, x2, y2]
	Error   string  `json:"error,omitempty"`
}
