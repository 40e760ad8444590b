package detector_client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"face-identification/internal/models"
	"face-identification/internal/recognition"
)

// Client для взаимодействия с внешним сервером детекции лиц.
// Реализует recognition.Detector: классификатор остается локальным.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создает новый клиент
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// DetectFaces отправляет полутоновое изображение на детекцию
func (c *Client) DetectFaces(img *image.Gray, params recognition.DetectParams) ([]image.Rectangle, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("image", "probe.png")
	if err != nil {
		return nil, fmt.Errorf("ошибка создания form file: %w", err)
	}
	if err := png.Encode(part, img); err != nil {
		return nil, fmt.Errorf("ошибка кодирования PNG: %w", err)
	}

	// Добавляем параметры
	writer.WriteField("scale_factor", fmt.Sprintf("%.2f", params.ScaleFactor))
	writer.WriteField("min_neighbors", fmt.Sprintf("%d", params.MinNeighbors))
	writer.WriteField("min_size", fmt.Sprintf("%d", params.MinSize.X))

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("ошибка закрытия writer: %w", err)
	}

	resp, err := c.httpClient.Post(
		c.baseURL+"/detect",
		writer.FormDataContentType(),
		body,
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка HTTP запроса: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("детектор вернул ошибку %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var result models.DetectorResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ошибка парсинга ответа: %w", err)
	}

	if !result.Success {
		return nil, fmt.Errorf("детекция не удалась: %s", result.Error)
	}

	// Координаты приходят относительно присланного PNG
	offset := img.Bounds().Min
	faces := make([]image.Rectangle, 0, len(result.Faces))
	for _, box := range result.Faces {
		if len(box) != 4 {
			return nil, fmt.Errorf("некорректный bbox %v", box)
		}
		r := image.Rect(box[0], box[1], box[2], box[3]).Add(offset)
		if r.Empty() {
			continue
		}
		faces = append(faces, r)
	}

	return faces, nil
}

// HealthCheck проверяет доступность сервера детекции
func (c *Client) HealthCheck() error {
	resp, err := c.httpClient.Get(c.baseURL + "/health")
	if err != nil {
		return fmt.Errorf("сервер детекции недоступен: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("сервер детекции вернул статус %d", resp.StatusCode)
	}

	return nil
}
