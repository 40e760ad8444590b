package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"face-identification/internal/api/websocket"
	"face-identification/internal/models"
	"face-identification/internal/recognition"
	"face-identification/internal/repository"
	"face-identification/internal/service/cache"
	"face-identification/internal/service/storage"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const (
	defaultDetectionsLimit = 50
	maxDetectionsLimit     = 500
)

// RecognitionService - операции ядра распознавания, нужные HTTP слою
type RecognitionService interface {
	Enroll(identity string, photos []string) (recognition.EnrollResult, error)
	Identify(path string) (recognition.Result, error)
	Rebuild() (recognition.RebuildStats, error)
	Status() recognition.ModelStatus
}

// Handler содержит все зависимости для обработки HTTP запросов
type Handler struct {
	repo       repository.RepositoryInterface
	storage    *storage.Service
	recognizer RecognitionService
	cache      *cache.Service
	wsManager  *websocket.Manager
}

// NewHandler создает новый handler с зависимостями
func NewHandler(
	repo repository.RepositoryInterface,
	storage *storage.Service,
	recognizer RecognitionService,
	cache *cache.Service,
	wsManager *websocket.Manager,
) *Handler {
	return &Handler{
		repo:       repo,
		storage:    storage,
		recognizer: recognizer,
		cache:      cache,
		wsManager:  wsManager,
	}
}

func errorJSON(c *gin.Context, status int, message string) {
	c.JSON(status, models.ErrorResponse{Success: false, Error: message})
}

// ============ ENROLL ============

// HandleAddFace принимает фотографии пользователя (поля id и photos)
// и переобучает модель
func (h *Handler) HandleAddFace(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		errorJSON(c, http.StatusBadRequest, "Ошибка чтения формы")
		return
	}

	var userID string
	if ids := form.Value["id"]; len(ids) > 0 {
		userID = strings.TrimSpace(ids[0])
	}
	if userID == "" {
		errorJSON(c, http.StatusBadRequest, "Поле id обязательно")
		return
	}
	if err := recognition.ValidateIdentity(userID); err != nil {
		errorJSON(c, http.StatusBadRequest, fmt.Sprintf("Недопустимый id: %q", userID))
		return
	}

	files := form.File["photos"]
	if len(files) == 0 {
		errorJSON(c, http.StatusBadRequest, "Фотографии не загружены")
		return
	}

	staged, err := h.stageUploads(files)
	defer h.storage.DeleteStaged(staged)
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, fmt.Sprintf("Ошибка сохранения файлов: %v", err))
		return
	}

	result, enrollErr := h.recognizer.Enroll(userID, staged)
	if enrollErr != nil && len(result.Saved) == 0 {
		switch {
		case errors.Is(enrollErr, recognition.ErrInvalidIdentity), errors.Is(enrollErr, recognition.ErrNoPhotos):
			errorJSON(c, http.StatusBadRequest, enrollErr.Error())
		case errors.Is(enrollErr, recognition.ErrCorpusIO):
			// Импорт откатан, обучение не запускалось
			errorJSON(c, http.StatusInternalServerError, fmt.Sprintf("Ошибка сохранения фотографий: %v", enrollErr))
		default:
			errorJSON(c, http.StatusInternalServerError, enrollErr.Error())
		}
		return
	}

	// Фото уже в корпусе - фиксируем их в БД даже если обучение не удалось
	if err := h.recordEnrollment(userID, result.Saved); err != nil {
		errorJSON(c, http.StatusInternalServerError, fmt.Sprintf("Ошибка базы данных: %v", err))
		return
	}

	if h.cache != nil {
		h.cache.InvalidateUser(userID)
	}

	h.broadcastEnrollment(userID, result, enrollErr)

	if enrollErr != nil {
		errorJSON(c, http.StatusInternalServerError, fmt.Sprintf("Ошибка обучения модели: %v", enrollErr))
		return
	}

	log.Printf("💾 Пользователь %s: сохранено %d фото", userID, result.Count())

	c.JSON(http.StatusOK, models.ApiResponse{
		Success: true,
		Message: "Фотографии добавлены, модель переобучена",
		Data: models.AddFaceResponse{
			UserID:      userID,
			ImagesSaved: result.Count(),
		},
	})
}

// stageUploads сохраняет загруженные файлы во временный каталог.
// Возвращает уже сохраненные пути даже при ошибке, чтобы их можно было удалить.
func (h *Handler) stageUploads(files []*multipart.FileHeader) ([]string, error) {
	staged := make([]string, 0, len(files))
	for _, fh := range files {
		path, err := h.storage.StageUpload(fh)
		if err != nil {
			return staged, err
		}
		staged = append(staged, path)
	}
	return staged, nil
}

func (h *Handler) recordEnrollment(userID string, saved []string) error {
	if err := h.repo.UpsertUser(userID); err != nil {
		return err
	}
	for _, path := range saved {
		if _, err := h.repo.InsertFaceImage(userID, path); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) broadcastEnrollment(userID string, result recognition.EnrollResult, err error) {
	if h.wsManager == nil {
		return
	}
	h.wsManager.BroadcastUserEnrolled(userID, result.Count())
	if err != nil {
		h.wsManager.BroadcastRebuildFailed(err.Error())
		return
	}
	if result.Rebuild.Replaced {
		h.wsManager.BroadcastModelRebuilt(result.Rebuild)
	}
}

// ============ IDENTIFY ============

// HandleDetectFace определяет пользователя по фото (поле photo или image)
func (h *Handler) HandleDetectFace(c *gin.Context) {
	fileHeader, err := c.FormFile("photo")
	if err != nil {
		fileHeader, err = c.FormFile("image")
	}
	if err != nil {
		errorJSON(c, http.StatusBadRequest, "Изображение не загружено. Используйте поле 'photo' или 'image'")
		return
	}

	probe, err := h.storage.StageProbe(fileHeader)
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, fmt.Sprintf("Ошибка сохранения файла: %v", err))
		return
	}
	defer h.storage.DeleteStaged([]string{probe})

	result, err := h.recognizer.Identify(probe)
	switch {
	case err == nil:
	case errors.Is(err, recognition.ErrNoFaceDetected):
		h.logDetection(nil, nil, probe)
		c.JSON(http.StatusOK, models.ApiResponse{
			Success: true,
			Message: "Лицо на фото не найдено",
			Data:    models.DetectFaceResponse{Detected: false},
		})
		return
	case errors.Is(err, recognition.ErrModelNotTrained):
		errorJSON(c, http.StatusServiceUnavailable, "Модель еще не обучена: добавьте фотографии через /api/add-face")
		return
	case errors.Is(err, recognition.ErrImageLoad):
		errorJSON(c, http.StatusBadRequest, "Не удалось прочитать изображение")
		return
	default:
		errorJSON(c, http.StatusInternalServerError, fmt.Sprintf("Ошибка распознавания: %v", err))
		return
	}

	response := models.DetectFaceResponse{Detected: result.Accepted, Distance: &result.Distance}
	message := "Пользователь не опознан"
	if result.Accepted {
		response.UserID = &result.UserID
		message = "Пользователь опознан"
	}

	h.logDetection(response.UserID, &result.Distance, probe)

	if h.wsManager != nil {
		h.wsManager.BroadcastIdentification(result.UserID, result.Accepted, result.Distance)
	}

	c.JSON(http.StatusOK, models.ApiResponse{
		Success: true,
		Message: message,
		Data:    response,
	})
}

// logDetection пишет журнал; ошибка БД не влияет на ответ
func (h *Handler) logDetection(userID *string, distance *float64, probe string) {
	if _, err := h.repo.LogDetection(userID, distance, &probe); err != nil {
		log.Warnf("⚠️  Не удалось записать журнал детекции: %v", err)
		return
	}

	if h.cache != nil {
		h.cache.InvalidateStats()
		if userID != nil {
			h.cache.InvalidateUser(*userID)
		}
	}
}

// ============ USERS ============

// HandleGetUsers возвращает всех пользователей (с кэшем)
func (h *Handler) HandleGetUsers(c *gin.Context) {
	if h.cache != nil {
		if users, err := h.cache.GetUsers(); err == nil && users != nil {
			c.JSON(http.StatusOK, users)
			return
		}
	}

	users, err := h.repo.GetAllUsers()
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}

	if users == nil {
		users = []models.User{}
	}

	if h.cache != nil {
		h.cache.SetUsers(users)
	}

	c.JSON(http.StatusOK, users)
}

// HandleGetUser возвращает фото и число опознаний пользователя (с кэшем)
func (h *Handler) HandleGetUser(c *gin.Context) {
	userID := c.Param("id")

	if h.cache != nil {
		if stats, err := h.cache.GetUserStats(userID); err == nil && stats != nil {
			c.JSON(http.StatusOK, stats)
			return
		}
	}

	stats, err := h.repo.GetUserStats(userID)
	if err == sql.ErrNoRows {
		errorJSON(c, http.StatusNotFound, "Пользователь не найден")
		return
	}

	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}

	if h.cache != nil {
		h.cache.SetUserStats(stats)
	}

	c.JSON(http.StatusOK, stats)
}

// ============ DETECTIONS ============

// HandleGetDetections возвращает последние записи журнала (?limit=N)
func (h *Handler) HandleGetDetections(c *gin.Context) {
	limit := defaultDetectionsLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			errorJSON(c, http.StatusBadRequest, "Неверный limit")
			return
		}
		limit = n
	}
	if limit > maxDetectionsLimit {
		limit = maxDetectionsLimit
	}

	logs, err := h.repo.GetRecentDetections(limit)
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}

	views := make([]models.DetectionLogView, 0, len(logs))
	for _, l := range logs {
		views = append(views, l.View())
	}

	c.JSON(http.StatusOK, views)
}

// ============ STATS ============

// HandleGetStats возвращает общую статистику (с кэшем)
func (h *Handler) HandleGetStats(c *gin.Context) {
	// Пробуем из кэша
	if h.cache != nil {
		if stats, err := h.cache.GetStats(); err == nil && stats != nil {
			c.JSON(http.StatusOK, stats)
			return
		}
	}

	// Из БД
	stats, err := h.repo.GetStats()
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}

	// Сохраняем в кэш
	if h.cache != nil {
		h.cache.SetStats(stats)
	}

	c.JSON(http.StatusOK, stats)
}

// ============ MODEL ============

// HandleModelStatus возвращает состояние живой модели
func (h *Handler) HandleModelStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.recognizer.Status())
}

// HandleModelRebuild пересобирает модель по текущему корпусу
func (h *Handler) HandleModelRebuild(c *gin.Context) {
	stats, err := h.recognizer.Rebuild()
	if err != nil {
		if h.wsManager != nil {
			h.wsManager.BroadcastRebuildFailed(err.Error())
		}
		errorJSON(c, http.StatusInternalServerError, fmt.Sprintf("Ошибка обучения модели: %v", err))
		return
	}

	if stats.Replaced && h.wsManager != nil {
		h.wsManager.BroadcastModelRebuilt(stats)
	}

	message := "Модель переобучена"
	if !stats.Replaced {
		message = "В корпусе нет лиц, модель не изменилась"
	}

	c.JSON(http.StatusOK, models.ApiResponse{
		Success: true,
		Message: message,
		Data:    stats,
	})
}

// ============ HEALTH ============

// HandleHealth - проверка живости сервиса
func (h *Handler) HandleHealth(c *gin.Context) {
	status := h.recognizer.Status()
	response := gin.H{
		"status":        "ok",
		"model_trained": status.Trained,
	}
	if h.cache != nil {
		response["cache"] = h.cache.Backend()
	}
	c.JSON(http.StatusOK, response)
}
