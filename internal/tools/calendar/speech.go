package calendar

import (
	"fmt"
	"strconv"
	"strings"
)

// Spoken-Spanish rendering of slot times. The TTS voice reads these aloud,
// so "09:30" must come out as words, not digits.

var hourWords = map[int]string{
	1: "una", 2: "dos", 3: "tres", 4: "cuatro", 5: "cinco", 6: "seis",
	7: "siete", 8: "ocho", 9: "nueve", 10: "diez", 11: "once", 12: "doce",
}

var minuteWords = map[int]string{
	15: "quince", 30: "y media", 45: "cuarenta y cinco",
}

// HourToWords converts "HH:MM" into natural spoken Spanish, including the
// day-part suffix: "09:30" becomes "las nueve y media de la mañana" and
// "14:00" becomes "las dos en punto de la tarde".
func HourToWords(hhmm string) string {
	h, m, err := splitHHMM(hhmm)
	if err != nil {
		return hhmm
	}

	suffix := "de la mañana"
	display := h
	switch {
	case h == 0:
		display = 12
		suffix = "de la madrugada"
	case h == 12:
		suffix = "del mediodía"
	case h >= 13 && h <= 17:
		display = h - 12
		suffix = "de la tarde"
	case h >= 18:
		display = h - 12
		suffix = "de la noche"
	}

	hourWord, ok := hourWords[display]
	if !ok {
		hourWord = strconv.Itoa(display)
	}

	var minuteWord string
	switch {
	case m == 0:
		minuteWord = "en punto"
	case m == 30 && display == 12:
		// "doce y media" reads oddly next to "del mediodía".
		minuteWord = "treinta"
	default:
		if w, ok := minuteWords[m]; ok {
			minuteWord = w
		} else {
			minuteWord = strconv.Itoa(m)
		}
	}

	return fmt.Sprintf("las %s %s %s", hourWord, minuteWord, suffix)
}

// TextTime converts "HH:MM" to the compact written form used in chat
// transcripts: "09:30" becomes "9:30am", "14:00" becomes "2:00pm".
func TextTime(hhmm string) string {
	h, m, err := splitHHMM(hhmm)
	if err != nil {
		return hhmm
	}
	suffix := "am"
	display := h
	if h >= 12 {
		suffix = "pm"
		if h > 12 {
			display = h - 12
		}
	}
	if display == 0 {
		display = 12
	}
	return fmt.Sprintf("%d:%02d%s", display, m, suffix)
}

func splitHHMM(hhmm string) (h, m int, err error) {
	parts := strings.SplitN(hhmm, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("calendar: malformed time %q", hhmm)
	}
	h, err = strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("calendar: malformed hour %q", hhmm)
	}
	m, err = strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("calendar: malformed minute %q", hhmm)
	}
	return h, m, nil
}
