package calendar

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/atelic-ai/voceria/pkg/types"
)

// searchHorizonDays bounds how far the slot search walks past the target
// date before giving up.
const searchHorizonDays = 120

// Query carries the parsed parameters of a process_appointment_request call.
// Text is always present; the explicit fields are only set when the model
// extracted them.
type Query struct {
	// Text is the caller's own words for the desired date and time.
	Text string

	// Day, Month and Year pin an explicit date. Month accepts a Spanish
	// month name or a number.
	Day   int
	Month string
	Year  int

	// FixedWeekday names a weekday in Spanish ("martes").
	FixedWeekday string

	// TimePreference is a franja keyword: mañana, tarde or mediodia.
	TimePreference string

	Urgent    bool
	MoreLate  bool
	MoreEarly bool
}

// Process resolves the query against the free-slot grid and returns the
// structured availability result the model (or a synthetic response) speaks
// from. Statuses: SLOT_LIST, SLOT_FOUND_LATER, NO_SLOT, NO_MORE_LATE,
// NO_MORE_EARLY, NEED_EXACT_DATE, OUT_OF_RANGE.
func (c *SlotCache) Process(ctx context.Context, q Query) types.ToolResult {
	c.ensureFresh(ctx)

	now := c.localNow()
	today := midnight(now)
	queryLower := strings.ToLower(q.Text)

	weekday := strings.ToLower(strings.TrimSpace(q.FixedWeekday))
	if _, ok := spanishWeekdayNums[weekday]; !ok {
		weekday = ""
	}
	preference := strings.ToLower(strings.TrimSpace(q.TimePreference))
	if preference != "mañana" && preference != "tarde" && preference != "mediodia" {
		preference = ""
	}

	urgent := q.Urgent || containsAny(queryLower, urgencyKeywords)

	targetDate := c.resolveTargetDate(q, weekday, queryLower, today)
	if targetDate.IsZero() && urgent {
		targetDate = today
	}
	if targetDate.IsZero() {
		return types.ToolResult{"status": "NEED_EXACT_DATE", "message": "fecha_ambigua"}
	}

	timeKeyword := preference
	if timeKeyword == "" {
		timeKeyword = parseTimeOfDay(queryLower)
	}
	if timeKeyword == "fuera_horario" {
		return types.ToolResult{"status": "OUT_OF_RANGE", "message": "horario_fuera_de_rango"}
	}

	requestedISO := targetDate.Format("2006-01-02")

	isThisWeek := containsAny(queryLower, weekSynonyms)
	daysUntilSaturday := (int(time.Saturday) - mondayBasedWeekday(today) + 7) % 7
	isTodayRequest := targetDate.Equal(today) && strings.Contains(queryLower, "hoy")
	isTomorrowRequest := targetDate.Equal(today.AddDate(0, 0, 1)) && containsAny(queryLower, tomorrowSynonyms)
	isSundayRequest := targetDate.Weekday() == time.Sunday

	for offset := 0; offset < searchHorizonDays; offset++ {
		day := targetDate.AddDate(0, 0, offset)
		if day.Weekday() == time.Sunday {
			continue
		}

		daySlots := c.freeSlots(day)
		franja := preference

		var available []string
		if franja != "" {
			available = c.applySameDayRule(day, today, now, slotsForFranja(daySlots, franja))
			if len(available) > 0 && (q.MoreLate || q.MoreEarly) {
				available = trimDirection(available, q.MoreLate)
				if len(available) == 0 {
					if offset == 0 {
						status := "NO_MORE_EARLY"
						if q.MoreLate {
							status = "NO_MORE_LATE"
						}
						return types.ToolResult{
							"status":   status,
							"date_iso": requestedISO,
						}
					}
					continue
				}
			}
		} else {
			available = c.applySameDayRule(day, today, now, daySlots)
		}

		// No luck in the preferred franja: try the other franjas of the
		// same day before moving on.
		if len(available) == 0 && preference != "" {
			for _, alt := range []string{"mañana", "mediodia", "tarde"} {
				if alt == preference {
					continue
				}
				candidates := c.applySameDayRule(day, today, now, slotsForFranja(daySlots, alt))
				if len(candidates) > 0 {
					available = candidates
					franja = alt
					break
				}
			}
		}
		if len(available) == 0 {
			continue
		}

		available = capSlots(available)
		result := types.ToolResult{
			"available_slots":       available,
			"available_pretty":      prettySlots(available),
			"available_text_format": textSlots(available),
			"requested_time_kw":     franja,
		}

		movedPastWeek := isThisWeek && offset > daysUntilSaturday
		movedFromFixedDay := (isTodayRequest || isTomorrowRequest || isSundayRequest) && offset > 0
		if movedPastWeek || movedFromFixedDay {
			result["status"] = "SLOT_FOUND_LATER"
			result["requested_date_iso"] = requestedISO
			result["suggested_date_iso"] = day.Format("2006-01-02")
			return result
		}

		result["status"] = "SLOT_LIST"
		result["date_iso"] = day.Format("2006-01-02")
		return result
	}

	return types.ToolResult{
		"status":             "NO_SLOT",
		"message":            "sin_disponibilidad",
		"requested_date_iso": requestedISO,
		"requested_time_kw":  timeKeyword,
		"is_urgent":          urgent,
	}
}

// resolveTargetDate combines the explicit day/month/year parameters, a fixed
// weekday, and the free-text query into a concrete date. Zero when ambiguous.
func (c *SlotCache) resolveTargetDate(q Query, weekday, queryLower string, today time.Time) time.Time {
	day := q.Day
	month := 0
	if m := strings.ToLower(strings.TrimSpace(q.Month)); m != "" {
		if n, ok := spanishMonthNums[m]; ok {
			month = n
		} else if n, err := strconv.Atoi(m); err == nil {
			month = n
		}
	}

	// "el 19" without a month means the nearest upcoming 19th.
	if day > 0 && month == 0 && q.Year == 0 {
		month = int(today.Month())
		if day < today.Day() {
			month = month%12 + 1
		}
	}

	switch {
	case day > 0 && month >= 1 && month <= 12:
		year := q.Year
		if year == 0 {
			year = today.Year()
			if month < int(today.Month()) {
				year++
			}
		}
		t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, c.loc)
		if t.Day() != day {
			// Impossible dates like the 31st of a 30-day month.
			return time.Time{}
		}
		return t
	case weekday != "":
		wd := spanishWeekdayNums[weekday]
		offsetDays := (wd - mondayBasedWeekday(today) + 7) % 7
		if offsetDays == 0 {
			offsetDays = 7
		}
		if containsAny(queryLower, nextWeekPhrases) && offsetDays < 7 {
			offsetDays += 7
		}
		return today.AddDate(0, 0, offsetDays)
	}
	return parseRelativeDate(queryLower, today)
}

// applySameDayRule filters out same-day slots that start inside the minimum
// advance-booking window, and empties the list entirely once the business
// day is effectively over.
func (c *SlotCache) applySameDayRule(day, today, now time.Time, slots []string) []string {
	if !day.Equal(today) {
		return slots
	}
	earliest := now.Add(minAdvanceBooking)
	if !midnight(earliest).Equal(today) || clockOf(now) >= dayCloseTime {
		return nil
	}
	limit := clockOf(earliest)
	kept := slots[:0]
	for _, s := range slots {
		if clockDuration(s) >= limit {
			kept = append(kept, s)
		}
	}
	return kept
}

// trimDirection narrows the day's slots to the next four (moreLate) or the
// previous four (moreEarly) relative to what was already offered.
func trimDirection(slots []string, moreLate bool) []string {
	if moreLate {
		if len(slots) <= 1 {
			return nil
		}
		return slots[1:min(5, len(slots))]
	}
	if len(slots) <= 1 {
		return nil
	}
	return slots[max(0, len(slots)-5) : len(slots)-1]
}

func slotsForFranja(slots []string, franja string) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		d := clockDuration(s)
		switch franja {
		case "mañana":
			if d <= mustClock("11:45") {
				out = append(out, s)
			}
		case "tarde":
			if d >= mustClock("12:30") {
				out = append(out, s)
			}
		case "mediodia":
			if d >= mustClock("11:00") && d <= mustClock("13:15") {
				out = append(out, s)
			}
		default:
			out = append(out, s)
		}
	}
	return out
}

// capSlots bounds an offer to four options.
func capSlots(slots []string) []string {
	if len(slots) > 4 {
		return slots[:4]
	}
	return slots
}

func prettySlots(slots []string) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = HourToWords(s)
	}
	return out
}

func textSlots(slots []string) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = TextTime(s)
	}
	return out
}

func clockDuration(hhmm string) time.Duration {
	h, m, err := splitHHMM(hhmm)
	if err != nil {
		return 0
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
}

func clockOf(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
