// Package opencv - реализация детектора и классификатора лиц на gocv
package opencv

import (
	"fmt"
	"image"
	"sync"

	"face-identification/internal/recognition"
	"face-identification/pkg/opencv/haarcascade"

	"gocv.io/x/gocv"
)

// CascadeDetector - детектор лиц на каскаде Хаара
type CascadeDetector struct {
	mu         sync.Mutex
	classifier gocv.CascadeClassifier
	path       string
}

// NewCascadeDetector загружает каскад из path или из стандартных путей
func NewCascadeDetector(path string) (*CascadeDetector, error) {
	found, err := haarcascade.Find(path, haarcascade.SearchPaths)
	if err != nil {
		return nil, err
	}

	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(found) {
		classifier.Close()
		return nil, fmt.Errorf("не удалось загрузить каскад %s", found)
	}

	return &CascadeDetector{classifier: classifier, path: found}, nil
}

// Path - путь загруженного каскада
func (d *CascadeDetector) Path() string {
	return d.path
}

// DetectFaces реализует recognition.Detector
func (d *CascadeDetector) DetectFaces(img *image.Gray, params recognition.DetectParams) (faces []image.Rectangle, err error) {
	defer func() {
		if r := recover(); r != nil {
			faces, err = nil, fmt.Errorf("opencv: паника при детекции: %v", r)
		}
	}()

	mat, err := gocv.ImageGrayToMatGray(img)
	if err != nil {
		return nil, fmt.Errorf("конвертация в Mat: %w", err)
	}
	defer mat.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	faces = d.classifier.DetectMultiScaleWithParams(mat, params.ScaleFactor, params.MinNeighbors, 0,
		params.MinSize, params.MaxSize)

	// Координаты Mat начинаются с нуля, у изображения могут быть смещены
	offset := img.Bounds().Min
	for i := range faces {
		faces[i] = faces[i].Add(offset)
	}
	return faces, nil
}

// Close освобождает каскад
func (d *CascadeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.classifier.Close()
}
