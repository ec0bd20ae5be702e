package calendar

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Parsing of colloquial Mexican-Spanish date and time-of-day expressions as
// they come out of the transcript: "de hoy en ocho", "el martes de la semana
// que viene", "por la tarde".

var spanishMonthNums = map[string]int{
	"enero": 1, "febrero": 2, "marzo": 3, "abril": 4, "mayo": 5, "junio": 6,
	"julio": 7, "agosto": 8, "septiembre": 9, "octubre": 10,
	"noviembre": 11, "diciembre": 12,
}

var spanishWeekdayNums = map[string]int{
	"lunes": 0, "martes": 1, "miércoles": 2, "miercoles": 2, "jueves": 3,
	"viernes": 4, "sábado": 5, "sabado": 5, "domingo": 6,
}

var (
	todaySynonyms = []string{"hoy", "ahorita", "hoy mismo", "en el transcurso del día", "hoy mero"}
	weekSynonyms  = []string{
		"esta semana", "en esta semana", "esta misma semana",
		"en esta misma semana", "para esta semana", "para esta misma semana",
	}
	tomorrowSynonyms = []string{"mañana", "mañana mismo", "para mañana"}
	urgencyKeywords  = []string{
		"lo antes posible", "en cuanto se pueda",
		"lo más pronto posible", "lo mas pronto posible",
	}
	nextWeekPhrases = []string{
		"próxima semana", "la semana que viene", "la semana que entra",
		"para la otra semana", "la siguiente semana",
	}
	middayKeywords = []string{"mediodia", "medio día", "mediodía", "hora de la comida"}
)

var numberWords = func() map[string]int {
	words := []string{
		"uno", "dos", "tres", "cuatro", "cinco", "seis", "siete", "ocho",
		"nueve", "diez", "once", "doce", "trece", "catorce", "quince",
		"dieciséis", "diecisiete", "dieciocho", "diecinueve", "veinte",
		"veintiuno", "veintidós", "veintitrés", "veinticuatro", "veinticinco",
		"veintiséis", "veintisiete", "veintiocho", "veintinueve", "treinta",
	}
	m := make(map[string]int, len(words)+4)
	for i, w := range words {
		m[w] = i + 1
	}
	m["dieciseis"] = 16
	m["veintidos"] = 22
	m["veintitres"] = 23
	m["veintiseis"] = 26
	return m
}()

var (
	morningPattern  = regexp.MustCompile(`\b(por|en|a)\s+la\s+mañana\b`)
	eveningPattern  = regexp.MustCompile(`\b(por|en|a)\s+la\s+tarde\b`)
	nightPattern    = regexp.MustCompile(`\bnoche\b|\bmadrugada\b`)
	inDaysPattern   = regexp.MustCompile(`\ben\s+(\d+|\p{L}+)\s+d[ií]as?\b`)
	inWeeksPattern  = regexp.MustCompile(`\ben\s+(\d+|\p{L}+)\s+semanas?\b`)
	inMonthsPattern = regexp.MustCompile(`\ben\s+(\d+|\p{L}+)\s+mes(?:es)?\b`)
	fromDayPattern  = regexp.MustCompile(`\b(hoy|mañana)\s+en\s+(\d+|\p{L}+)`)
)

func wordToInt(token string) int {
	token = strings.ToLower(token)
	if n, err := strconv.Atoi(token); err == nil {
		return n
	}
	return numberWords[token]
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func equalsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if s == p {
			return true
		}
	}
	return false
}

// parseTimeOfDay extracts a franja keyword from the query: "mañana",
// "tarde", "mediodia", or "fuera_horario" for night-time requests. Empty
// string when no preference is expressed.
func parseTimeOfDay(query string) string {
	q := strings.ToLower(query)
	if morningPattern.MatchString(q) || strings.Contains(q, "tempranito") || strings.Contains(q, "mañanita") {
		return "mañana"
	}
	if eveningPattern.MatchString(q) || strings.Contains(q, "tardecita") {
		return "tarde"
	}
	if containsAny(q, middayKeywords) {
		return "mediodia"
	}
	if nightPattern.MatchString(q) {
		return "fuera_horario"
	}
	return ""
}

// parseRelativeDate resolves relative expressions against today. The zero
// time means the phrase was not recognised. "esta semana" resolves to today
// itself; the caller detects the week intent separately.
func parseRelativeDate(query string, today time.Time) time.Time {
	q := strings.ToLower(strings.TrimSpace(query))

	if equalsAny(q, todaySynonyms) {
		return today
	}
	if equalsAny(q, tomorrowSynonyms) {
		return today.AddDate(0, 0, 1)
	}
	if strings.Contains(q, "pasado mañana") {
		return today.AddDate(0, 0, 2)
	}
	if containsAny(q, weekSynonyms) {
		return today
	}

	// "de hoy en ocho" style: customarily a week, not eight days.
	if m := fromDayPattern.FindStringSubmatch(q); m != nil {
		base := 0
		if m[1] == "mañana" {
			base = 1
		}
		if n := wordToInt(m[2]); n > 0 {
			if n == 8 {
				return today.AddDate(0, 0, base+7)
			}
			return today.AddDate(0, 0, base+n)
		}
	}

	if m := inDaysPattern.FindStringSubmatch(q); m != nil {
		if n := wordToInt(m[1]); n > 0 {
			return today.AddDate(0, 0, n)
		}
	}
	if m := inWeeksPattern.FindStringSubmatch(q); m != nil {
		if n := wordToInt(m[1]); n > 0 {
			return today.AddDate(0, 0, n*7)
		}
	}
	if m := inMonthsPattern.FindStringSubmatch(q); m != nil {
		if n := wordToInt(m[1]); n > 0 {
			return today.AddDate(0, n, 0)
		}
	}

	if containsAny(q, nextWeekPhrases) {
		return today.AddDate(0, 0, daysUntilNext(today, time.Monday))
	}
	if strings.Contains(q, "fin de semana") {
		return today.AddDate(0, 0, daysUntilNext(today, time.Saturday))
	}

	return time.Time{}
}

// daysUntilNext returns the days until the next occurrence of wd, never zero.
func daysUntilNext(today time.Time, wd time.Weekday) int {
	d := (int(wd) - int(today.Weekday()) + 7) % 7
	if d == 0 {
		d = 7
	}
	return d
}

// mondayBasedWeekday maps Go's Sunday-based weekday to the Monday-based
// numbering the Spanish weekday table uses.
func mondayBasedWeekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}
