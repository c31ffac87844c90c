package events

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// NormalizeText приводит текст к канонической форме для сравнения на near-duplicate:
// нижний регистр → разложение Unicode NFKD → удаление всего, кроме букв, цифр,
// подчёркивания и пробелов → схлопывание пробельных серий → обрезка краёв.
// Диакритика отделяется разложением и отбрасывается вместе с прочей пунктуацией.
func NormalizeText(text string) string {
	text = strings.ToLower(text)
	text = norm.NFKD.String(text)

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == '_' || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// NormalizedText возвращает нормализованную сцепку заголовка и сообщения события.
// Именно эта строка хранится в истории и участвует в проверке похожести.
func (e Event) NormalizedText() string {
	return NormalizeText(strings.TrimSpace(e.CombinedText()))
}
