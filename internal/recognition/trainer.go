package recognition

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// ImageExtensions - расширения файлов корпуса (без учета регистра)
var ImageExtensions = []string{".jpg", ".jpeg", ".png"}

// Corpus - хранилище фотографий вида root/<identity>/<file>
type Corpus interface {
	// EnsureRoot создает корневой каталог, true - если его не было
	EnsureRoot() (bool, error)
	// Identities перечисляет непосредственные подкаталоги корня
	Identities() ([]string, error)
	// Images перечисляет файлы identity с указанными расширениями
	Images(identity string, exts []string) ([]string, error)
	// Import копирует фотографию в раздел identity и возвращает новый путь
	Import(identity, src string) (string, error)
	// Remove удаляет импортированный файл из корпуса
	Remove(path string) error
}

// RebuildStats - итоги одной пересборки
type RebuildStats struct {
	Identities int           `json:"identities"`
	Samples    int           `json:"samples"`
	Files      int           `json:"files"`
	Skipped    int           `json:"skipped"`
	Replaced   bool          `json:"replaced"`
	Generation uint64        `json:"generation"`
	Duration   time.Duration `json:"duration"`
}

// ProgressFunc вызывается после обработки каждого файла корпуса
type ProgressFunc func(done, total int)

// Trainer собирает обучающую выборку из корпуса
type Trainer struct {
	corpus    Corpus
	extractor *Extractor
	progress  ProgressFunc
}

// NewTrainer создает оркестратор обучения
func NewTrainer(corpus Corpus, extractor *Extractor) *Trainer {
	return &Trainer{corpus: corpus, extractor: extractor}
}

// SetProgress задает callback прогресса (например для CLI)
func (t *Trainer) SetProgress(fn ProgressFunc) {
	t.progress = fn
}

type corpusEntry struct {
	identity string
	files    []string
}

// Collect обходит корпус и извлекает лицо из каждого файла.
// Ошибки отдельных файлов логируются и пропускаются.
func (t *Trainer) Collect() (*TrainingSet, RebuildStats, error) {
	set := NewTrainingSet()
	var stats RebuildStats

	created, err := t.corpus.EnsureRoot()
	if err != nil {
		return nil, stats, fmt.Errorf("%v: %w", err, ErrCorpusIO)
	}
	if created {
		log.Println("📁 Каталог корпуса создан, обучать пока не на чем")
		return set, stats, nil
	}

	entries, err := t.scan()
	if err != nil {
		return nil, stats, err
	}

	for _, e := range entries {
		stats.Files += len(e.files)
	}

	done := 0
	for _, e := range entries {
		for _, path := range e.files {
			face, err := t.extractor.Extract(path)
			if err != nil {
				log.Warnf("⚠️  Пропускаем %s: %v", path, err)
				stats.Skipped++
			} else {
				set.Add(e.identity, face)
			}

			done++
			if t.progress != nil {
				t.progress(done, stats.Files)
			}
		}
	}

	stats.Samples = set.Len()
	stats.Identities = set.Registry().Len()
	return set, stats, nil
}

// scan перечисляет identity и их файлы до начала извлечения
func (t *Trainer) scan() ([]corpusEntry, error) {
	identities, err := t.corpus.Identities()
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrCorpusIO)
	}

	var entries []corpusEntry
	for _, identity := range identities {
		if err := ValidateIdentity(identity); err != nil {
			log.Warnf("⚠️  Пропускаем каталог %q: %v", identity, err)
			continue
		}

		files, err := t.corpus.Images(identity, ImageExtensions)
		if err != nil {
			return nil, fmt.Errorf("%s: %v: %w", identity, err, ErrCorpusIO)
		}
		entries = append(entries, corpusEntry{identity: identity, files: files})
	}

	return entries, nil
}

// Rebuild собирает выборку и обучает на ней модель.
// При любой ошибке предыдущая модель остается живой.
func (t *Trainer) Rebuild(model *Model) (RebuildStats, error) {
	start := time.Now()

	set, stats, err := t.Collect()
	if err != nil {
		stats.Duration = time.Since(start)
		return stats, err
	}

	replaced, err := model.Train(set)
	stats.Duration = time.Since(start)
	if err != nil {
		return stats, err
	}

	stats.Replaced = replaced
	stats.Generation = model.Status().Generation
	return stats, nil
}
