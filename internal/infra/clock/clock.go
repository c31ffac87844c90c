// Package clock — централизованные функции текущего времени. Конвейер решений
// считает в UTC (NowUTC); отображение для человека (веб-панель, CLI) использует
// глобальную таймзону приложения (Now).
package clock

import (
	"time"

	"notify-triage/internal/infra/config"
)

// Now возвращает текущее время в глобальной таймзоне приложения.
func Now() time.Time {
	return time.Now().In(config.AppLocation)
}

// NowUTC возвращает текущее время в UTC. Все внутренние операции конвейера
// (окна истории, дедупликация, планирование) используют именно его.
func NowUTC() time.Time {
	return time.Now().UTC()
}
