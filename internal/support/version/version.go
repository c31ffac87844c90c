// Package version хранит имя и версию сборки сервиса триажа.
// Значения показываются командой version в CLI и на веб-панели.
package version

const (
	Name    = "notify-triage"
	Version = "1.2.0"
)
