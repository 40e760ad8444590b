// Package haarcascade ищет файл каскада Хаара на диске.
// Пакет не зависит от OpenCV, поэтому проверяется без cgo.
package haarcascade

import (
	"errors"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
)

// File - имя файла каскада Хаара для фронтальных лиц
const File = "haarcascade_frontalface_default.xml"

// SearchPaths - где искать каскад, если путь не задан явно
var SearchPaths = []string{
	"/usr/local/share/opencv4/haarcascades/" + File,
	"/opt/homebrew/share/opencv4/haarcascades/" + File,
	"/usr/share/opencv4/haarcascades/" + File,
	"./" + File,
}

// ErrNotFound - ни один из путей не содержит каскад
var ErrNotFound = errors.New("файл каскада не найден")

// Find возвращает explicit, если он задан, иначе первый существующий файл из candidates.
// Явно заданный путь не подменяется списком: его отсутствие - ошибка.
func Find(explicit string, candidates []string) (string, error) {
	if explicit != "" {
		info, err := os.Stat(explicit)
		if err != nil {
			return "", fmt.Errorf("%s: %v: %w", explicit, err, ErrNotFound)
		}
		if info.IsDir() {
			return "", fmt.Errorf("%s - каталог: %w", explicit, ErrNotFound)
		}
		return explicit, nil
	}

	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
		log.Debugf("Каскад не найден: %s", path)
	}

	return "", fmt.Errorf("%w (скачайте %s с https://github.com/opencv/opencv/tree/master/data/haarcascades)",
		ErrNotFound, File)
}
