package recognition

import (
	"fmt"
	"image"
	"io"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultThreshold - порог расстояния LBPH. Совпадение принимается
// только если distance < порога.
const DefaultThreshold = 80.0

// TrainingSet - обучающая выборка одной пересборки вместе с ее реестром меток
type TrainingSet struct {
	registry *LabelRegistry
	faces    []*image.Gray
	labels   []int
}

// NewTrainingSet создает пустую выборку
func NewTrainingSet() *TrainingSet {
	return &TrainingSet{registry: NewLabelRegistry()}
}

// Add добавляет лицо. Метка выдается identity при первом добавленном лице,
// поэтому identity без лиц в реестр не попадает.
func (s *TrainingSet) Add(identity string, face *image.Gray) int {
	label := s.registry.Register(identity)
	s.faces = append(s.faces, face)
	s.labels = append(s.labels, label)
	return label
}

// Len - количество лиц в выборке
func (s *TrainingSet) Len() int {
	return len(s.faces)
}

// Registry возвращает реестр меток выборки
func (s *TrainingSet) Registry() *LabelRegistry {
	return s.registry
}

// ModelStatus - снимок состояния живой модели
type ModelStatus struct {
	Trained    bool      `json:"trained"`
	Identities []string  `json:"identities"`
	Samples    int       `json:"samples"`
	Generation uint64    `json:"generation"`
	TrainedAt  time.Time `json:"trained_at,omitempty"`
	Threshold  float64   `json:"threshold"`
}

// Model владеет классификатором и его реестром меток.
// Не потокобезопасна: доступ сериализует Recognizer.
type Model struct {
	factory   ClassifierFactory
	threshold float64

	classifier Classifier
	registry   *LabelRegistry
	samples    int
	trained    bool
	trainedAt  time.Time
	generation uint64
}

// NewModel создает необученную модель
func NewModel(factory ClassifierFactory, threshold float64) *Model {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Model{
		factory:   factory,
		threshold: threshold,
	}
}

// Train обучает новый экземпляр классификатора на выборке и при успехе
// заменяет им текущий вместе с реестром.
// Пустая выборка - no-op: предыдущая модель остается как есть, ошибки нет.
// Возвращает true если модель была заменена.
func (m *Model) Train(set *TrainingSet) (bool, error) {
	if set == nil || set.Len() == 0 {
		return false, nil
	}

	classifier, err := m.factory()
	if err != nil {
		return false, fmt.Errorf("создание классификатора: %v: %w", err, ErrTraining)
	}

	if err := classifier.Train(set.faces, set.labels); err != nil {
		release(classifier)
		return false, fmt.Errorf("%v: %w", err, ErrTraining)
	}

	// Классификатор и реестр меняются вместе
	previous := m.classifier
	m.classifier = classifier
	m.registry = set.registry
	m.samples = set.Len()
	m.trained = true
	m.trainedAt = time.Now()
	m.generation++

	release(previous)
	return true, nil
}

// Close освобождает живой классификатор. Модель становится необученной.
func (m *Model) Close() {
	release(m.classifier)
	m.classifier = nil
	m.registry = nil
	m.samples = 0
	m.trained = false
}

// release освобождает нативные ресурсы классификатора, если они есть
func release(c Classifier) {
	closer, ok := c.(io.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		log.Warnf("⚠️  Не удалось освободить классификатор: %v", err)
	}
}

// Predict возвращает ближайшую метку и расстояние до нее
func (m *Model) Predict(sample *image.Gray) (int, float64, error) {
	if !m.trained {
		return 0, 0, ErrModelNotTrained
	}
	return m.classifier.Predict(sample)
}

// Accept - политика принятия решения: строго меньше порога
func (m *Model) Accept(distance float64) bool {
	return distance < m.threshold
}

// Resolve переводит метку текущей модели в identity
func (m *Model) Resolve(label int) (string, bool) {
	return m.registry.Resolve(label)
}

// Trained - обучена ли модель
func (m *Model) Trained() bool {
	return m.trained
}

// Threshold возвращает порог принятия
func (m *Model) Threshold() float64 {
	return m.threshold
}

// Status возвращает снимок состояния
func (m *Model) Status() ModelStatus {
	identities := m.registry.Identities()
	if identities == nil {
		identities = []string{}
	}
	return ModelStatus{
		Trained:    m.trained,
		Identities: identities,
		Samples:    m.samples,
		Generation: m.generation,
		TrainedAt:  m.trainedAt,
		Threshold:  m.threshold,
	}
}
