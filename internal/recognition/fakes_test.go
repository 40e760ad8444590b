package recognition

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// Тестовые "лица" - квадрат 40x40 яркости value на черном фоне 100x100.
// value == 0 означает фото без лица.
func writeFace(t *testing.T, dir, name string, value uint8) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))

	img := image.NewGray(image.Rect(0, 0, 100, 100))
	for y := 30; y < 70; y++ {
		for x := 30; x < 70; x++ {
			img.SetGray(x, y, color.Gray{Y: value})
		}
	}

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func writeCorrupt(t *testing.T, dir, name string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("definitely not a jpeg"), 0644))
	return path
}

// brightDetector возвращает ограничивающий прямоугольник пикселей ярче 50
type brightDetector struct{}

func (brightDetector) DetectFaces(img *image.Gray, _ DetectParams) ([]image.Rectangle, error) {
	b := img.Bounds()
	found := image.Rectangle{}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.GrayAt(x, y).Y > 50 {
				found = found.Union(image.Rect(x, y, x+1, y+1))
			}
		}
	}
	if found.Empty() {
		return nil, nil
	}
	return []image.Rectangle{found}, nil
}

// stubDetector всегда возвращает заданные области
type stubDetector struct {
	rects []image.Rectangle
	err   error
}

func (d stubDetector) DetectFaces(*image.Gray, DetectParams) ([]image.Rectangle, error) {
	return d.rects, d.err
}

func meanOf(img *image.Gray) float64 {
	var sum float64
	for _, p := range img.Pix {
		sum += float64(p)
	}
	return sum / float64(len(img.Pix))
}

// meanClassifier - ближайший сосед по средней яркости лица
type meanClassifier struct {
	means  []float64
	labels []int
}

func (c *meanClassifier) Train(samples []*image.Gray, labels []int) error {
	if len(samples) != len(labels) {
		return errors.New("samples/labels mismatch")
	}
	for i, s := range samples {
		c.means = append(c.means, meanOf(s))
		c.labels = append(c.labels, labels[i])
	}
	return nil
}

func (c *meanClassifier) Predict(sample *image.Gray) (int, float64, error) {
	m := meanOf(sample)
	best, bestDist := -1, math.MaxFloat64
	for i, mean := range c.means {
		if d := math.Abs(mean - m); d < bestDist {
			best, bestDist = c.labels[i], d
		}
	}
	return best, bestDist, nil
}

// countingFactory считает созданные классификаторы и может
// отказывать в обучении начиная с failFrom-го экземпляра
type countingFactory struct {
	created  atomic.Int32
	failFrom int32
}

func (f *countingFactory) New() (Classifier, error) {
	n := f.created.Add(1)
	if f.failFrom > 0 && n >= f.failFrom {
		return failingClassifier{}, nil
	}
	return &meanClassifier{}, nil
}

type failingClassifier struct{}

func (failingClassifier) Train([]*image.Gray, []int) error {
	return errors.New("opencv: bad argument")
}

func (failingClassifier) Predict(*image.Gray) (int, float64, error) {
	return 0, 0, errors.New("not trained")
}

// closingClassifier считает освобождения нативных ресурсов
type closingClassifier struct {
	Classifier
	closed *atomic.Int32
}

func (c closingClassifier) Close() error {
	c.closed.Add(1)
	return nil
}

// stubClassifier возвращает фиксированный ответ
type stubClassifier struct {
	label    int
	distance float64
}

func (stubClassifier) Train([]*image.Gray, []int) error { return nil }

func (c stubClassifier) Predict(*image.Gray) (int, float64, error) {
	return c.label, c.distance, nil
}

func newMeanModel() *Model {
	return NewModel(func() (Classifier, error) { return &meanClassifier{}, nil }, DefaultThreshold)
}

func faceOf(value uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, DefaultFaceSize, DefaultFaceSize))
	for i := range img.Pix {
		img.Pix[i] = value
	}
	return img
}
