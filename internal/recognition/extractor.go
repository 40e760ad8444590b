package recognition

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

// DefaultFaceSize - сторона нормализованного лица в пикселях
const DefaultFaceSize = 200

// Extractor превращает фотографию в нормализованное лицо:
// загрузка в оттенках серого, детекция, обрезка по первой области, resize.
type Extractor struct {
	detector Detector
	params   DetectParams
	size     int
}

// NewExtractor создает экстрактор с параметрами детекции по умолчанию
func NewExtractor(detector Detector, size int) *Extractor {
	if size <= 0 {
		size = DefaultFaceSize
	}
	return &Extractor{
		detector: detector,
		params:   DefaultDetectParams,
		size:     size,
	}
}

// Size возвращает сторону нормализованного лица
func (e *Extractor) Size() int {
	return e.size
}

// Extract загружает изображение и возвращает лицо size x size.
// Кэширования нет: результат зависит только от содержимого файла.
func (e *Extractor) Extract(path string) (*image.Gray, error) {
	gray, err := loadGray(path)
	if err != nil {
		return nil, err
	}

	faces, err := e.detector.DetectFaces(gray, e.params)
	if err != nil {
		return nil, fmt.Errorf("детекция %s: %w", path, err)
	}
	if len(faces) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoFaceDetected)
	}

	// Берем первую найденную область, без ранжирования по размеру
	region := faces[0].Intersect(gray.Bounds())
	if region.Empty() {
		return nil, fmt.Errorf("%s: область %v вне изображения: %w", path, faces[0], ErrNoFaceDetected)
	}

	face := image.NewGray(image.Rect(0, 0, e.size, e.size))
	draw.BiLinear.Scale(face, face.Bounds(), gray, region, draw.Src, nil)

	return face, nil
}

// loadGray читает файл и переводит его в оттенки серого
func loadGray(path string) (*image.Gray, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", path, err, ErrImageLoad)
	}

	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("%s: пустое изображение: %w", path, ErrImageLoad)
	}

	if gray, ok := img.(*image.Gray); ok {
		return gray, nil
	}

	gray := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(gray, gray.Bounds(), img, bounds.Min, draw.Src)
	return gray, nil
}
