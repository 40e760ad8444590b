package storage

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/h2non/filetype"
)

// Service управляет файловым хранилищем:
// корпус knowledge/<user_id>/<file> и временные файлы загрузок
type Service struct {
	knowledgeDir string
	tempDir      string
}

// NewService создает файловый сервис
func NewService(knowledgeDir, tempDir string) (*Service, error) {
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return nil, fmt.Errorf("не удалось создать temp: %w", err)
	}

	return &Service{
		knowledgeDir: knowledgeDir,
		tempDir:      tempDir,
	}, nil
}

// Root возвращает путь к корпусу
func (s *Service) Root() string {
	return s.knowledgeDir
}

// ============ CORPUS ============

// EnsureRoot создает каталог корпуса если его нет.
// Возвращает true если каталог был создан только что.
func (s *Service) EnsureRoot() (bool, error) {
	info, err := os.Stat(s.knowledgeDir)
	if err == nil {
		if !info.IsDir() {
			return false, fmt.Errorf("%s не является каталогом", s.knowledgeDir)
		}
		return false, nil
	}
	if !os.IsNotExist(err) {
		return false, err
	}

	if err := os.MkdirAll(s.knowledgeDir, 0755); err != nil {
		return false, fmt.Errorf("не удалось создать %s: %w", s.knowledgeDir, err)
	}
	return true, nil
}

// Identities возвращает имена подкаталогов корпуса (отсортированы по имени)
func (s *Service) Identities() ([]string, error) {
	entries, err := os.ReadDir(s.knowledgeDir)
	if err != nil {
		return nil, err
	}

	var identities []string
	for _, entry := range entries {
		if entry.IsDir() && entry.Name() != "" {
			identities = append(identities, entry.Name())
		}
	}
	return identities, nil
}

// Images возвращает файлы пользователя с нужными расширениями
func (s *Service) Images(identity string, exts []string) ([]string, error) {
	dir := filepath.Join(s.knowledgeDir, identity)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if hasExtension(entry.Name(), exts) {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// Import копирует фотографию в knowledge/<identity>/.
// Если файл с таким именем уже есть, к имени добавляется суффикс.
func (s *Service) Import(identity, src string) (string, error) {
	userDir := filepath.Join(s.knowledgeDir, identity)
	if err := os.MkdirAll(userDir, 0755); err != nil {
		return "", fmt.Errorf("не удалось создать папку пользователя: %w", err)
	}

	name := filepath.Base(src)
	dst := filepath.Join(userDir, name)
	if s.FileExists(dst) {
		ext := filepath.Ext(name)
		dst = filepath.Join(userDir, fmt.Sprintf("%s-%s%s", strings.TrimSuffix(name, ext), uuid.New().String()[:8], ext))
	}

	if err := copyFile(src, dst); err != nil {
		os.Remove(dst)
		return "", err
	}
	return dst, nil
}

// Remove удаляет файл корпуса. Пути вне knowledge/ не трогаются.
func (s *Service) Remove(path string) error {
	rel, err := filepath.Rel(s.knowledgeDir, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("%s вне каталога корпуса", path)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("не удалось удалить %s: %w", path, err)
	}
	return nil
}

// ============ UPLOADS ============

// StageUpload сохраняет загруженный файл во временную папку temp/<uuid>/.
// Имя файла очищается, расширение берется по сигнатуре содержимого.
func (s *Service) StageUpload(fileHeader *multipart.FileHeader) (string, error) {
	dir := filepath.Join(s.tempDir, uuid.New().String())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("не удалось создать временную папку: %w", err)
	}

	return s.saveMultipart(fileHeader, dir, SanitizeFilename(fileHeader.Filename))
}

// StageProbe сохраняет фото для идентификации как temp/<uuid>.<ext>
func (s *Service) StageProbe(fileHeader *multipart.FileHeader) (string, error) {
	return s.saveMultipart(fileHeader, s.tempDir, uuid.New().String()+".jpg")
}

func (s *Service) saveMultipart(fileHeader *multipart.FileHeader, dir, name string) (string, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("не удалось открыть файл %s: %w", fileHeader.Filename, err)
	}
	defer file.Close()

	head := make([]byte, 261)
	n, err := io.ReadFull(file, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", fmt.Errorf("ошибка чтения файла %s: %w", fileHeader.Filename, err)
	}
	head = head[:n]

	destPath := filepath.Join(dir, withDetectedExtension(name, head))

	destFile, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("не удалось создать файл %s: %w", destPath, err)
	}
	defer destFile.Close()

	if _, err := destFile.Write(head); err != nil {
		return "", fmt.Errorf("ошибка записи файла %s: %w", destPath, err)
	}
	if _, err := io.Copy(destFile, file); err != nil {
		return "", fmt.Errorf("ошибка записи файла %s: %w", destPath, err)
	}

	return destPath, nil
}

// ============ CLEANUP ============

// DeleteStaged удаляет временные файлы вместе с их папками temp/<uuid>/
func (s *Service) DeleteStaged(paths []string) error {
	for _, path := range paths {
		dir := filepath.Dir(path)
		if filepath.Clean(dir) == filepath.Clean(s.tempDir) {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("не удалось удалить %s: %w", path, err)
			}
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("не удалось удалить %s: %w", dir, err)
		}
	}
	return nil
}

// FileExists проверяет существование файла
func (s *Service) FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ============ HELPERS ============

// SanitizeFilename оставляет от имени загруженного файла безопасную основу
func SanitizeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	ext := strings.ToLower(filepath.Ext(base))
	stem := slug.Make(strings.TrimSuffix(base, filepath.Ext(base)))
	if stem == "" {
		stem = uuid.New().String()
	}
	return stem + ext
}

// withDetectedExtension подменяет расширение по сигнатуре файла.
// Нераспознанные файлы сохраняются как есть.
func withDetectedExtension(name string, head []byte) string {
	kind, err := filetype.Match(head)
	if err != nil || kind == filetype.Unknown {
		return name
	}

	ext := strings.ToLower(filepath.Ext(name))
	switch kind.Extension {
	case "jpg":
		if ext == ".jpg" || ext == ".jpeg" {
			return name
		}
	case "png":
		if ext == ".png" {
			return name
		}
	default:
		return name
	}
	return strings.TrimSuffix(name, filepath.Ext(name)) + "." + kind.Extension
}

func hasExtension(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("не удалось открыть %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("не удалось создать %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("ошибка копирования в %s: %w", dst, err)
	}
	return out.Close()
}
