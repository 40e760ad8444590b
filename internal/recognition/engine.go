// Package recognition - ядро идентификации лиц: извлечение лица из фото,
// реестр меток, обертка над классификатором, пересборка модели из корпуса
// и идентификация под единым мьютексом.
//
// Сами алгоритмы детекции и классификации сюда не входят, ядро работает
// с ними через интерфейсы Detector и Classifier.
package recognition

import "image"

// Detector находит области лиц на изображении в оттенках серого.
// Порядок областей в ответе важен: ядро всегда берет первую.
type Detector interface {
	DetectFaces(img *image.Gray, params DetectParams) ([]image.Rectangle, error)
}

// DetectParams - параметры детекции (аналог detectMultiScale)
type DetectParams struct {
	ScaleFactor  float64
	MinNeighbors int
	MinSize      image.Point
	MaxSize      image.Point // нулевой размер - без ограничения
}

// DefaultDetectParams - шаг 1.1, 3 соседа, минимум 30x30, без максимума
var DefaultDetectParams = DetectParams{
	ScaleFactor:  1.1,
	MinNeighbors: 3,
	MinSize:      image.Pt(30, 30),
}

// Classifier - обучаемый классификатор ближайшего соседа.
// Экземпляр обучается один раз, повторное обучение делается на новом экземпляре.
type Classifier interface {
	Train(samples []*image.Gray, labels []int) error
	// Predict возвращает метку и расстояние (меньше - ближе)
	Predict(sample *image.Gray) (label int, distance float64, err error)
}

// ClassifierFactory создает новый необученный классификатор
type ClassifierFactory func() (Classifier, error)
