// Package sl содержит вспомогательные функции для работы с логгером slog:
// сборку логгера по окружению и единообразные поля записей.
package sl

import (
	"io"
	"log/slog"
)

// Окружения из конфига.
const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// New собирает логгер процесса. local пишет текст с уровнем Debug,
// dev JSON с Debug, prod JSON с Info. Неизвестное окружение считается local.
func New(env string, w io.Writer) *slog.Logger {
	switch env {
	case EnvProd:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
	case EnvDev:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	default:
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}

// Err возвращает атрибут "error" с текстом ошибки.
//
//	log.Error("failed to do something", sl.Err(err))
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.String("error", err.Error())
}

// Step помечает записи логгера шагом обработки запроса (атрибут "step").
func Step(log *slog.Logger, step string) *slog.Logger {
	return log.With(slog.String("step", step))
}
