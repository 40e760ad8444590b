package opencv

import (
	"errors"
	"fmt"
	"image"

	"face-identification/internal/recognition"

	"gocv.io/x/gocv"
	"gocv.io/x/gocv/contrib"
)

// LBPHParams - параметры LBPH-распознавателя
type LBPHParams struct {
	Radius    int
	Neighbors int
	// Threshold - внутренний порог OpenCV, выше него метка -1
	Threshold float64
}

// DefaultLBPHParams - радиус 1, 8 соседей, сетка 8x8 (по умолчанию в OpenCV)
var DefaultLBPHParams = LBPHParams{Radius: 1, Neighbors: 8, Threshold: 123.0}

// LBPHClassifier реализует recognition.Classifier поверх contrib.LBPHFaceRecognizer
type LBPHClassifier struct {
	recognizer *contrib.LBPHFaceRecognizer
	trained    bool
}

// NewLBPHFactory возвращает фабрику свежих классификаторов для пересборок
func NewLBPHFactory(params LBPHParams) recognition.ClassifierFactory {
	return func() (recognition.Classifier, error) {
		return NewLBPHClassifier(params), nil
	}
}

// NewLBPHClassifier создает необученный классификатор
func NewLBPHClassifier(params LBPHParams) *LBPHClassifier {
	r := contrib.NewLBPHFaceRecognizer()
	if params.Radius > 0 {
		r.SetRadius(params.Radius)
	}
	if params.Neighbors > 0 {
		r.SetNeighbors(params.Neighbors)
	}
	if params.Threshold > 0 {
		r.SetThreshold(float32(params.Threshold))
	}
	return &LBPHClassifier{recognizer: r}
}

// Train обучает классификатор на нормализованных лицах
func (c *LBPHClassifier) Train(samples []*image.Gray, labels []int) (err error) {
	if len(samples) == 0 || len(samples) != len(labels) {
		return fmt.Errorf("некорректная выборка: %d лиц, %d меток", len(samples), len(labels))
	}

	if c.recognizer == nil {
		return errors.New("lbph: классификатор закрыт")
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("opencv: паника при обучении: %v", r)
		}
	}()

	mats := make([]gocv.Mat, 0, len(samples))
	defer func() {
		for _, m := range mats {
			m.Close()
		}
	}()

	for _, s := range samples {
		m, err := gocv.ImageGrayToMatGray(s)
		if err != nil {
			return fmt.Errorf("конвертация в Mat: %w", err)
		}
		mats = append(mats, m)
	}

	c.recognizer.Train(mats, labels)
	c.trained = true
	return nil
}

// Predict возвращает ближайшую метку и расстояние.
// Метка -1 означает, что OpenCV отбросил лицо своим порогом.
func (c *LBPHClassifier) Predict(sample *image.Gray) (label int, distance float64, err error) {
	if !c.trained || c.recognizer == nil {
		return 0, 0, errors.New("lbph: классификатор не обучен")
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("opencv: паника при предсказании: %v", r)
		}
	}()

	m, err := gocv.ImageGrayToMatGray(sample)
	if err != nil {
		return 0, 0, fmt.Errorf("конвертация в Mat: %w", err)
	}
	defer m.Close()

	resp := c.recognizer.PredictExtendedResponse(m)
	return int(resp.Label), float64(resp.Confidence), nil
}

// Close освобождает нативную модель LBPH. Повторный вызов безопасен.
func (c *LBPHClassifier) Close() error {
	if c.recognizer == nil {
		return nil
	}
	err := c.recognizer.Close()
	c.recognizer = nil
	c.trained = false
	return err
}
