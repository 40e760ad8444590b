package main

import (
	"errors"
	"fmt"
	"time"

	"face-identification/internal/recognition"
	"face-identification/internal/service/storage"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Обучить модель по корпусу и вывести сводку",
	Long: `Обходит каталог knowledge/<user_id>/, извлекает лица из всех фотографий
и обучает классификатор. Полезно, чтобы проверить корпус без запуска сервера.`,
	Args: cobra.NoArgs,
	RunE: runRebuild,
}

var identifyCmd = &cobra.Command{
	Use:   "identify <photo>",
	Short: "Определить пользователя по фотографии",
	Args:  cobra.ExactArgs(1),
	RunE:  runIdentify,
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
	rootCmd.AddCommand(identifyCmd)
}

// offlineRecognizer собирает ядро без БД и HTTP
func offlineRecognizer() (*recognition.Recognizer, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	corpus, err := storage.NewService(cfg.Storage.KnowledgeDir, cfg.Storage.TempDir)
	if err != nil {
		return nil, nil, err
	}

	return buildRecognizer(cfg, corpus)
}

func runRebuild(cmd *cobra.Command, args []string) error {
	rec, cleanup, err := offlineRecognizer()
	if err != nil {
		return err
	}
	defer cleanup()

	var bar *progressbar.ProgressBar
	rec.SetProgress(func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("Извлечение лиц"),
				progressbar.OptionShowCount(),
				progressbar.OptionShowIts(),
				progressbar.OptionSetItsString("фото"),
				progressbar.OptionShowElapsedTimeOnFinish(),
				progressbar.OptionFullWidth(),
			)
		}
		bar.Set(done)
	})

	stats, err := rec.Rebuild()
	if bar != nil {
		bar.Finish()
		fmt.Println()
	}
	if err != nil {
		return err
	}

	fmt.Printf("Пользователей:     %d\n", stats.Identities)
	fmt.Printf("Обучающих лиц:     %d\n", stats.Samples)
	fmt.Printf("Файлов просмотрено: %d (пропущено %d)\n", stats.Files, stats.Skipped)
	fmt.Printf("Время:             %s\n", stats.Duration.Round(time.Millisecond))
	if !stats.Replaced {
		fmt.Println("Модель не обучена: в корпусе нет ни одного лица")
		return nil
	}

	for _, id := range rec.Status().Identities {
		fmt.Printf("  - %s\n", id)
	}
	return nil
}

func runIdentify(cmd *cobra.Command, args []string) error {
	rec, cleanup, err := offlineRecognizer()
	if err != nil {
		return err
	}
	defer cleanup()

	if _, err := rec.Rebuild(); err != nil {
		return err
	}

	result, err := rec.Identify(args[0])
	switch {
	case errors.Is(err, recognition.ErrNoFaceDetected):
		fmt.Println("Лицо на фото не найдено")
		return nil
	case err != nil:
		return err
	}

	if result.Accepted {
		fmt.Printf("Пользователь: %s (расстояние %.2f)\n", result.UserID, result.Distance)
	} else {
		fmt.Printf("Пользователь не опознан (расстояние %.2f, порог %.1f)\n", result.Distance, rec.Status().Threshold)
	}
	return nil
}
