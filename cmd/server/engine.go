package main

import (
	"fmt"

	"face-identification/internal/config"
	"face-identification/internal/recognition"
	"face-identification/internal/service/storage"
	"face-identification/pkg/detector_client"
	"face-identification/pkg/opencv"

	log "github.com/sirupsen/logrus"
)

// buildRecognizer собирает ядро распознавания из конфигурации.
// cleanup освобождает нативные ресурсы модели и детектора.
func buildRecognizer(cfg *config.Config, corpus *storage.Service) (*recognition.Recognizer, func(), error) {
	var detector recognition.Detector
	cleanup := func() {}

	switch cfg.Recognition.Detector {
	case config.DetectorRemote:
		client := detector_client.NewClient(cfg.Recognition.DetectorURL)
		if err := client.HealthCheck(); err != nil {
			log.Printf("⚠️  Предупреждение: сервер детекции недоступен: %v", err)
		} else {
			log.Println("✅ Сервер детекции доступен")
		}
		detector = client

	default:
		cascade, err := opencv.NewCascadeDetector(cfg.Recognition.CascadePath)
		if err != nil {
			return nil, nil, fmt.Errorf("детектор лиц: %w", err)
		}
		log.Printf("✅ Каскад Хаара загружен: %s", cascade.Path())
		detector = cascade
		cleanup = func() { cascade.Close() }
	}

	extractor := recognition.NewExtractor(detector, cfg.Recognition.FaceSize)
	factory := opencv.NewLBPHFactory(opencv.LBPHParams{
		Radius:    cfg.Recognition.LBPHRadius,
		Neighbors: cfg.Recognition.LBPHNeighbors,
		Threshold: cfg.Recognition.LBPHThreshold,
	})

	rec := recognition.New(corpus, extractor, factory, cfg.Recognition.MatchThreshold)
	log.Printf("✅ Распознавание: детектор %s, лицо %dx%d, порог %.1f",
		cfg.Recognition.Detector, extractor.Size(), extractor.Size(), cfg.Recognition.MatchThreshold)

	closeDetector := cleanup
	return rec, func() {
		rec.Close()
		closeDetector()
	}, nil
}
