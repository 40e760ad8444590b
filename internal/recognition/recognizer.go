package recognition

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Result - итог одной идентификации. Сырые метки наружу не отдаются.
type Result struct {
	UserID   string  `json:"user_id,omitempty"`
	Accepted bool    `json:"accepted"`
	Distance float64 `json:"distance"`
}

// EnrollResult - итог добавления фотографий пользователя
type EnrollResult struct {
	UserID  string       `json:"user_id"`
	Saved   []string     `json:"saved"`
	Rebuild RebuildStats `json:"rebuild"`
}

// Count - сколько фотографий сохранено в корпус
func (r EnrollResult) Count() int {
	return len(r.Saved)
}

// Observer получает события ядра (метрики, логи)
type Observer interface {
	ObserveRebuild(stats RebuildStats, err error)
	ObserveIdentify(result Result, err error, elapsed time.Duration)
}

// Recognizer - единственный владелец живой модели.
// Все обучения и предсказания выполняются под одним мьютексом:
// пересборка никогда не видна наполовину.
type Recognizer struct {
	mu        sync.Mutex
	model     *Model
	trainer   *Trainer
	extractor *Extractor
	corpus    Corpus
	observer  Observer
}

// New создает Recognizer с необученной моделью
func New(corpus Corpus, extractor *Extractor, factory ClassifierFactory, threshold float64) *Recognizer {
	return &Recognizer{
		model:     NewModel(factory, threshold),
		trainer:   NewTrainer(corpus, extractor),
		extractor: extractor,
		corpus:    corpus,
	}
}

// SetObserver подключает наблюдателя. Вызывать до начала работы.
func (r *Recognizer) SetObserver(o Observer) {
	r.observer = o
}

// SetProgress передает callback прогресса в оркестратор обучения
func (r *Recognizer) SetProgress(fn ProgressFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trainer.SetProgress(fn)
}

// Rebuild полностью переобучает модель по текущему корпусу
func (r *Recognizer) Rebuild() (RebuildStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.rebuildLocked()
}

func (r *Recognizer) rebuildLocked() (RebuildStats, error) {
	stats, err := r.trainer.Rebuild(r.model)
	if r.observer != nil {
		r.observer.ObserveRebuild(stats, err)
	}
	if err != nil {
		log.Errorf("❌ Пересборка модели не удалась: %v", err)
		return stats, err
	}

	if stats.Replaced {
		log.Printf("🧠 Модель обучена: %d фото, %d пользователей (поколение %d, %s)",
			stats.Samples, stats.Identities, stats.Generation, stats.Duration.Round(time.Millisecond))
	} else {
		log.Println("💤 Нет ни одного лица для обучения, модель не изменилась")
	}
	return stats, nil
}

// Identify находит пользователя на фотографии.
// Accepted=false означает "не опознан": расстояние не ниже порога
// или метка отсутствует в текущем реестре.
func (r *Recognizer) Identify(path string) (Result, error) {
	start := time.Now()

	r.mu.Lock()
	result, err := r.identifyLocked(path)
	r.mu.Unlock()

	if r.observer != nil {
		r.observer.ObserveIdentify(result, err, time.Since(start))
	}
	return result, err
}

func (r *Recognizer) identifyLocked(path string) (Result, error) {
	var result Result

	face, err := r.extractor.Extract(path)
	if err != nil {
		return result, err
	}

	label, distance, err := r.model.Predict(face)
	if err != nil {
		return result, err
	}
	result.Distance = distance

	log.Debugf("Предсказана метка %d, расстояние %.2f", label, distance)

	if !r.model.Accept(distance) {
		return result, nil
	}

	userID, ok := r.model.Resolve(label)
	if !ok {
		return result, nil
	}

	result.UserID = userID
	result.Accepted = true
	return result, nil
}

// Enroll импортирует фотографии в раздел identity и пересобирает модель.
// Файлы пишутся в корпус до захвата мьютекса, пересборка видит их целиком.
func (r *Recognizer) Enroll(identity string, photos []string) (EnrollResult, error) {
	result := EnrollResult{UserID: identity}

	if err := ValidateIdentity(identity); err != nil {
		return result, fmt.Errorf("%q: %w", identity, err)
	}
	if len(photos) == 0 {
		return result, ErrNoPhotos
	}

	// Импорт всех фото или ни одного: частично добавленный набор не обучается
	for _, src := range photos {
		dst, err := r.corpus.Import(identity, src)
		if err != nil {
			r.rollback(result.Saved)
			return EnrollResult{UserID: identity}, fmt.Errorf("импорт %s: %v: %w", src, err, ErrCorpusIO)
		}
		result.Saved = append(result.Saved, dst)
		log.Debugf("Сохранено фото: %s", dst)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stats, err := r.rebuildLocked()
	result.Rebuild = stats
	return result, err
}

// rollback убирает из корпуса фото неудавшегося импорта
func (r *Recognizer) rollback(saved []string) {
	for _, path := range saved {
		if err := r.corpus.Remove(path); err != nil {
			log.Warnf("⚠️  Не удалось откатить импорт %s: %v", path, err)
		}
	}
}

// Close освобождает живую модель. После Close Identify возвращает ErrModelNotTrained.
func (r *Recognizer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.model.Close()
}

// Status возвращает состояние живой модели
func (r *Recognizer) Status() ModelStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.model.Status()
}
