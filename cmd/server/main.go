package main

import (
	"fmt"
	"os"
	"strings"

	"face-identification/internal/config"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "face-identification",
	Short: "Сервис идентификации людей по фотографии",
	Long: `Сервис хранит фотографии пользователей в каталоге knowledge/<user_id>/,
обучает LBPH-классификатор на всем корпусе и определяет пользователя по новой фотографии.
Без подкоманды запускается HTTP сервер.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig загружает и проверяет конфигурацию, настраивает логирование
func loadConfig() (*config.Config, error) {
	cfg := config.Load()
	setupLogging(cfg.Log)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("некорректная конфигурация: %w", err)
	}
	return cfg, nil
}

// setupLogging настраивает стандартный logrus логгер
func setupLogging(cfg config.LogConfig) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

// printBanner печатает красивый баннер при старте
func printBanner() {
	banner := `
╔═══════════════════════════════════════════════════════╗
║                                                       ║
║   🎭  FACE IDENTIFICATION SERVICE                     ║
║                                                       ║
║   Идентификация пользователей по фотографии          ║
║   Haar cascade + LBPH                                ║
║                                                       ║
╚═══════════════════════════════════════════════════════╝
`
	fmt.Println(banner)
	log.Println("🚀 Инициализация сервисов...")
}
