package handlers

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"face-identification/internal/api/websocket"
	"face-identification/internal/models"
	"face-identification/internal/recognition"
	"face-identification/internal/service/cache"
	"face-identification/internal/service/storage"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockRepository - мок репозитория для тестов
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) GetStats() (*models.Stats, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Stats), args.Error(1)
}

func (m *MockRepository) UpsertUser(userID string) error {
	args := m.Called(userID)
	return args.Error(0)
}

func (m *MockRepository) GetAllUsers() ([]models.User, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.User), args.Error(1)
}

func (m *MockRepository) GetUserStats(userID string) (*models.UserStats, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserStats), args.Error(1)
}

func (m *MockRepository) InsertFaceImage(userID, imagePath string) (int, error) {
	args := m.Called(userID, imagePath)
	return args.Int(0), args.Error(1)
}

func (m *MockRepository) GetUserImages(userID string) ([]string, error) {
	args := m.Called(userID)
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockRepository) LogDetection(userID *string, confidence *float64, imagePath *string) (int, error) {
	args := m.Called(userID, confidence, imagePath)
	return args.Int(0), args.Error(1)
}

func (m *MockRepository) GetRecentDetections(limit int) ([]models.DetectionLog, error) {
	args := m.Called(limit)
	return args.Get(0).([]models.DetectionLog), args.Error(1)
}

// MockRecognizer - мок ядра распознавания
type MockRecognizer struct {
	mock.Mock
}

func (m *MockRecognizer) Enroll(identity string, photos []string) (recognition.EnrollResult, error) {
	args := m.Called(identity, photos)
	return args.Get(0).(recognition.EnrollResult), args.Error(1)
}

func (m *MockRecognizer) Identify(path string) (recognition.Result, error) {
	args := m.Called(path)
	return args.Get(0).(recognition.Result), args.Error(1)
}

func (m *MockRecognizer) Rebuild() (recognition.RebuildStats, error) {
	args := m.Called()
	return args.Get(0).(recognition.RebuildStats), args.Error(1)
}

func (m *MockRecognizer) Status() recognition.ModelStatus {
	args := m.Called()
	return args.Get(0).(recognition.ModelStatus)
}

// setupTestRouter создает тестовый роутер
func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

type testEnv struct {
	handler *Handler
	repo    *MockRepository
	rec     *MockRecognizer
	storage *storage.Service
	tempDir string
	router  *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	base := t.TempDir()
	tempDir := filepath.Join(base, "temp")
	store, err := storage.NewService(filepath.Join(base, "knowledge"), tempDir)
	require.NoError(t, err)

	repo := new(MockRepository)
	rec := new(MockRecognizer)
	h := NewHandler(repo, store, rec, cache.NewMemoryService(), websocket.NewManager())

	router := setupTestRouter()
	router.POST("/add-face", h.HandleAddFace)
	router.POST("/detect-face", h.HandleDetectFace)
	router.GET("/users", h.HandleGetUsers)
	router.GET("/users/:id", h.HandleGetUser)
	router.GET("/detections", h.HandleGetDetections)
	router.GET("/stats", h.HandleGetStats)
	router.GET("/model", h.HandleModelStatus)
	router.POST("/model/rebuild", h.HandleModelRebuild)

	return &testEnv{handler: h, repo: repo, rec: rec, storage: store, tempDir: tempDir, router: router}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// tempEntries - сколько файлов и папок осталось во временном каталоге
func (e *testEnv) tempEntries(t *testing.T) int {
	entries, err := os.ReadDir(e.tempDir)
	require.NoError(t, err)
	return len(entries)
}

type formFile struct {
	field, name string
	data        []byte
}

func multipartRequest(t *testing.T, url string, fields map[string]string, files []formFile) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	for _, f := range files {
		part, err := writer.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		part.Write(f.data)
	}
	require.NoError(t, writer.Close())

	req, _ := http.NewRequest("POST", url, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

// minimal PNG signature - достаточно для определения типа
var pngHead = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 13, 'I', 'H', 'D', 'R'}

func decodeAPI(t *testing.T, w *httptest.ResponseRecorder) (models.ApiResponse, map[string]interface{}) {
	t.Helper()
	var resp models.ApiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data, _ := resp.Data.(map[string]interface{})
	return resp, data
}

// ============ ADD FACE ============

func TestHandleAddFace(t *testing.T) {
	env := newTestEnv(t)

	env.rec.On("Enroll", "alice", mock.AnythingOfType("[]string")).
		Run(func(args mock.Arguments) {
			photos := args.Get(1).([]string)
			require.Len(t, photos, 2)
			for _, p := range photos {
				assert.True(t, env.storage.FileExists(p), "фото должны быть сохранены до Enroll")
			}
		}).
		Return(recognition.EnrollResult{
			UserID:  "alice",
			Saved:   []string{"knowledge/alice/1.png", "knowledge/alice/2.png"},
			Rebuild: recognition.RebuildStats{Replaced: true, Samples: 2, Identities: 1},
		}, nil)
	env.repo.On("UpsertUser", "alice").Return(nil)
	env.repo.On("InsertFaceImage", "alice", "knowledge/alice/1.png").Return(1, nil)
	env.repo.On("InsertFaceImage", "alice", "knowledge/alice/2.png").Return(2, nil)

	req := multipartRequest(t, "/add-face", map[string]string{"id": "alice"}, []formFile{
		{"photos", "1.png", pngHead},
		{"photos", "2.png", pngHead},
	})
	w := env.do(req)

	assert.Equal(t, http.StatusOK, w.Code)
	resp, data := decodeAPI(t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, "alice", data["user_id"])
	assert.Equal(t, float64(2), data["images_saved"])

	// Временные файлы удалены
	assert.Equal(t, 0, env.tempEntries(t))

	env.rec.AssertExpectations(t)
	env.repo.AssertExpectations(t)
}

func TestHandleAddFaceValidation(t *testing.T) {
	testCases := []struct {
		name   string
		fields map[string]string
		files  []formFile
	}{
		{"missing id", nil, []formFile{{"photos", "1.png", pngHead}}},
		{"blank id", map[string]string{"id": "   "}, []formFile{{"photos", "1.png", pngHead}}},
		{"path traversal", map[string]string{"id": "../etc"}, []formFile{{"photos", "1.png", pngHead}}},
		{"no photos", map[string]string{"id": "alice"}, nil},
		{"wrong field", map[string]string{"id": "alice"}, []formFile{{"image", "1.png", pngHead}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)

			w := env.do(multipartRequest(t, "/add-face", tc.fields, tc.files))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			env.rec.AssertNotCalled(t, "Enroll", mock.Anything, mock.Anything)
		})
	}
}

func TestHandleAddFaceTrainingFailure(t *testing.T) {
	env := newTestEnv(t)

	env.rec.On("Enroll", "bob", mock.Anything).Return(recognition.EnrollResult{
		UserID: "bob",
		Saved:  []string{"knowledge/bob/1.png"},
	}, fmt.Errorf("opencv: %w", recognition.ErrTraining))
	env.repo.On("UpsertUser", "bob").Return(nil)
	env.repo.On("InsertFaceImage", "bob", "knowledge/bob/1.png").Return(1, nil)

	w := env.do(multipartRequest(t, "/add-face", map[string]string{"id": "bob"}, []formFile{{"photos", "1.png", pngHead}}))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	// Сохраненное фото все равно записано в БД
	env.repo.AssertExpectations(t)
}

func TestHandleAddFaceImportFailure(t *testing.T) {
	env := newTestEnv(t)

	env.rec.On("Enroll", "bob", mock.Anything).Return(recognition.EnrollResult{UserID: "bob"},
		fmt.Errorf("импорт 2.png: disk full: %w", recognition.ErrCorpusIO))

	w := env.do(multipartRequest(t, "/add-face", map[string]string{"id": "bob"}, []formFile{
		{"photos", "1.png", pngHead},
		{"photos", "2.png", pngHead},
	}))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "Ошибка сохранения фотографий")
	assert.NotContains(t, resp.Error, "обучения")

	env.repo.AssertNotCalled(t, "UpsertUser", mock.Anything)
	env.repo.AssertNotCalled(t, "InsertFaceImage", mock.Anything, mock.Anything)
	assert.Equal(t, 0, env.tempEntries(t), "временные файлы удалены")
}

func TestHandleAddFaceDatabaseError(t *testing.T) {
	env := newTestEnv(t)

	env.rec.On("Enroll", "bob", mock.Anything).Return(recognition.EnrollResult{
		UserID: "bob",
		Saved:  []string{"knowledge/bob/1.png"},
	}, nil)
	env.repo.On("UpsertUser", "bob").Return(errors.New("connection refused"))

	w := env.do(multipartRequest(t, "/add-face", map[string]string{"id": "bob"}, []formFile{{"photos", "1.png", pngHead}}))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	env.repo.AssertNotCalled(t, "InsertFaceImage", mock.Anything, mock.Anything)
}

// ============ DETECT FACE ============

func TestHandleDetectFaceMatch(t *testing.T) {
	env := newTestEnv(t)

	var probe string
	env.rec.On("Identify", mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) {
			probe = args.String(0)
			assert.True(t, env.storage.FileExists(probe))
		}).
		Return(recognition.Result{UserID: "alice", Accepted: true, Distance: 42.5}, nil)
	env.repo.On("LogDetection",
		mock.MatchedBy(func(id *string) bool { return id != nil && *id == "alice" }),
		mock.MatchedBy(func(d *float64) bool { return d != nil && *d == 42.5 }),
		mock.Anything,
	).Return(1, nil)

	w := env.do(multipartRequest(t, "/detect-face", nil, []formFile{{"photo", "probe.png", pngHead}}))

	assert.Equal(t, http.StatusOK, w.Code)
	_, data := decodeAPI(t, w)
	assert.Equal(t, "alice", data["user_id"])
	assert.Equal(t, true, data["detected"])
	assert.Equal(t, 42.5, data["distance"])

	assert.Equal(t, filepath.Clean(env.tempDir), filepath.Dir(probe))
	assert.False(t, env.storage.FileExists(probe), "временный файл удален")
	env.repo.AssertExpectations(t)
}

func TestHandleDetectFaceImageField(t *testing.T) {
	env := newTestEnv(t)

	env.rec.On("Identify", mock.Anything).Return(recognition.Result{Distance: 120}, nil)
	env.repo.On("LogDetection", (*string)(nil), mock.Anything, mock.Anything).Return(1, nil)

	w := env.do(multipartRequest(t, "/detect-face", nil, []formFile{{"image", "probe.png", pngHead}}))

	assert.Equal(t, http.StatusOK, w.Code)
	_, data := decodeAPI(t, w)
	assert.Nil(t, data["user_id"])
	assert.Equal(t, false, data["detected"])
	env.repo.AssertExpectations(t)
}

func TestHandleDetectFaceErrors(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		status   int
		logsSink bool
	}{
		{"no face", fmt.Errorf("probe: %w", recognition.ErrNoFaceDetected), http.StatusOK, true},
		{"not trained", recognition.ErrModelNotTrained, http.StatusServiceUnavailable, false},
		{"bad image", fmt.Errorf("probe: %w", recognition.ErrImageLoad), http.StatusBadRequest, false},
		{"engine", errors.New("opencv crashed"), http.StatusInternalServerError, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.rec.On("Identify", mock.Anything).Return(recognition.Result{}, tc.err)
			if tc.logsSink {
				env.repo.On("LogDetection", (*string)(nil), (*float64)(nil), mock.Anything).Return(1, nil)
			}

			w := env.do(multipartRequest(t, "/detect-face", nil, []formFile{{"photo", "probe.png", pngHead}}))

			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, 0, env.tempEntries(t))
			if !tc.logsSink {
				env.repo.AssertNotCalled(t, "LogDetection", mock.Anything, mock.Anything, mock.Anything)
			}
			env.repo.AssertExpectations(t)
		})
	}
}

func TestHandleDetectFaceNoFile(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(multipartRequest(t, "/detect-face", map[string]string{"id": "x"}, nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	env.rec.AssertNotCalled(t, "Identify", mock.Anything)
}

func TestHandleDetectFaceLogFailureIgnored(t *testing.T) {
	env := newTestEnv(t)

	env.rec.On("Identify", mock.Anything).Return(recognition.Result{UserID: "alice", Accepted: true, Distance: 10}, nil)
	env.repo.On("LogDetection", mock.Anything, mock.Anything, mock.Anything).Return(0, errors.New("db down"))

	w := env.do(multipartRequest(t, "/detect-face", nil, []formFile{{"photo", "probe.png", pngHead}}))

	assert.Equal(t, http.StatusOK, w.Code)
}

// ============ USERS / STATS ============

func TestHandleGetStats(t *testing.T) {
	mockRepo := new(MockRepository)
	handler := &Handler{repo: mockRepo}

	expectedStats := &models.Stats{
		TotalUsers:      10,
		TotalImages:     50,
		TotalDetections: 5,
	}

	mockRepo.On("GetStats").Return(expectedStats, nil)

	router := setupTestRouter()
	router.GET("/stats", handler.HandleGetStats)

	req, _ := http.NewRequest("GET", "/stats", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var stats models.Stats
	err := json.Unmarshal(w.Body.Bytes(), &stats)
	assert.NoError(t, err)
	assert.Equal(t, 10, stats.TotalUsers)
	assert.Equal(t, 50, stats.TotalImages)
	assert.Equal(t, 5, stats.TotalDetections)

	mockRepo.AssertExpectations(t)
}

func TestHandleGetStatsCached(t *testing.T) {
	env := newTestEnv(t)
	env.repo.On("GetStats").Return(&models.Stats{TotalUsers: 3}, nil).Once()

	for i := 0; i < 2; i++ {
		w := env.do(httptest.NewRequest("GET", "/stats", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}

	env.repo.AssertNumberOfCalls(t, "GetStats", 1)
}

func TestHandleGetUsers(t *testing.T) {
	mockRepo := new(MockRepository)
	handler := &Handler{repo: mockRepo}

	mockRepo.On("GetAllUsers").Return([]models.User{
		{ID: 2, UserID: "bob"},
		{ID: 1, UserID: "alice"},
	}, nil)

	router := setupTestRouter()
	router.GET("/users", handler.HandleGetUsers)

	req, _ := http.NewRequest("GET", "/users", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var users []models.User
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &users))
	assert.Len(t, users, 2)
	assert.Equal(t, "bob", users[0].UserID)

	mockRepo.AssertExpectations(t)
}

func TestHandleGetUser(t *testing.T) {
	env := newTestEnv(t)
	env.repo.On("GetUserStats", "alice").Return(&models.UserStats{
		UserID: "alice", Images: []string{"knowledge/alice/1.png"}, ImageCount: 1, DetectionCount: 4,
	}, nil)
	env.repo.On("GetUserStats", "ghost").Return(nil, sql.ErrNoRows)

	w := env.do(httptest.NewRequest("GET", "/users/alice", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var stats models.UserStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 4, stats.DetectionCount)

	w = env.do(httptest.NewRequest("GET", "/users/ghost", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleGetDetections(t *testing.T) {
	testCases := []struct {
		query string
		limit int
	}{
		{"", 50},
		{"?limit=10", 10},
		{"?limit=10000", 500},
	}

	for _, tc := range testCases {
		t.Run(tc.query, func(t *testing.T) {
			env := newTestEnv(t)
			env.repo.On("GetRecentDetections", tc.limit).Return([]models.DetectionLog{
				{ID: 1, DetectedUserID: sql.NullString{String: "alice", Valid: true}},
			}, nil)

			w := env.do(httptest.NewRequest("GET", "/detections"+tc.query, nil))
			assert.Equal(t, http.StatusOK, w.Code)

			var logs []models.DetectionLogView
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &logs))
			require.Len(t, logs, 1)
			assert.Equal(t, "alice", *logs[0].DetectedUserID)
			env.repo.AssertExpectations(t)
		})
	}

	env := newTestEnv(t)
	w := env.do(httptest.NewRequest("GET", "/detections?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ============ MODEL ============

func TestHandleModelStatus(t *testing.T) {
	env := newTestEnv(t)
	env.rec.On("Status").Return(recognition.ModelStatus{
		Trained: true, Identities: []string{"alice"}, Samples: 3, Generation: 2, Threshold: 80,
	})

	w := env.do(httptest.NewRequest("GET", "/model", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var status recognition.ModelStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.True(t, status.Trained)
	assert.Equal(t, []string{"alice"}, status.Identities)
	assert.Equal(t, uint64(2), status.Generation)
}

func TestHandleModelRebuild(t *testing.T) {
	env := newTestEnv(t)
	env.rec.On("Rebuild").Return(recognition.RebuildStats{Replaced: true, Samples: 4, Identities: 2}, nil).Once()
	env.rec.On("Rebuild").Return(recognition.RebuildStats{}, recognition.ErrCorpusIO).Once()

	w := env.do(httptest.NewRequest("POST", "/model/rebuild", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	_, data := decodeAPI(t, w)
	assert.Equal(t, float64(4), data["samples"])

	w = env.do(httptest.NewRequest("POST", "/model/rebuild", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
