package recognition

import (
	"errors"
	"strings"
)

// Ошибки ядра распознавания. Вызывающий код сравнивает их через errors.Is.
var (
	// ErrImageLoad - файл не читается, пустой или не декодируется
	ErrImageLoad = errors.New("не удалось загрузить изображение")
	// ErrNoFaceDetected - детектор не нашел ни одного лица
	ErrNoFaceDetected = errors.New("лицо на изображении не найдено")
	// ErrModelNotTrained - predict до первого успешного обучения
	ErrModelNotTrained = errors.New("модель еще не обучена")
	// ErrTraining - классификатор отверг обучающую выборку
	ErrTraining = errors.New("ошибка обучения модели")
	// ErrCorpusIO - ошибка чтения каталога с фотографиями
	ErrCorpusIO = errors.New("ошибка доступа к корпусу")
	// ErrInvalidIdentity - ID пользователя нельзя использовать как имя каталога
	ErrInvalidIdentity = errors.New("недопустимый ID пользователя")
	// ErrNoPhotos - enroll вызван без фотографий
	ErrNoPhotos = errors.New("не передано ни одной фотографии")
)

// ValidateIdentity проверяет что ID можно использовать как имя раздела корпуса
func ValidateIdentity(identity string) error {
	switch {
	case strings.TrimSpace(identity) == "":
		return ErrInvalidIdentity
	case identity == "." || identity == "..":
		return ErrInvalidIdentity
	case strings.ContainsAny(identity, `/\`+"\x00"):
		return ErrInvalidIdentity
	}
	return nil
}
