package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	// cacheDaysAhead is how far into the future free slots are precomputed.
	cacheDaysAhead = 90

	// cacheTTL is how long a loaded cache is served before a reload.
	cacheTTL = 15 * time.Minute

	// minAdvanceBooking is the lead time required for same-day appointments.
	minAdvanceBooking = 6 * time.Hour
)

// slotTable is the fixed consultation grid: 45-minute slots from 09:30 to
// 14:45, Monday through Saturday.
var slotTable = []struct{ start, end string }{
	{"09:30", "10:15"},
	{"10:15", "11:00"},
	{"11:00", "11:45"},
	{"11:45", "12:30"},
	{"12:30", "13:15"},
	{"13:15", "14:00"},
	{"14:00", "14:45"},
}

// dayCloseTime is the last bookable start time of a day.
var dayCloseTime = mustClock("14:00")

// Interval is a busy span on the business calendar.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// BusyFetcher supplies the busy intervals the free-slot grid is derived
// from. The production implementation is the webhook [Client].
type BusyFetcher interface {
	BusyIntervals(ctx context.Context, from, to time.Time) ([]Interval, error)
}

// SlotCache precomputes the free consultation slots for the next
// [cacheDaysAhead] days and answers availability lookups from memory.
// Safe for concurrent use.
type SlotCache struct {
	fetcher BusyFetcher
	loc     *time.Location
	now     func() time.Time
	log     *slog.Logger

	mu       sync.RWMutex
	free     map[string][]string
	lastLoad time.Time
}

// NewSlotCache creates an empty cache. Call [SlotCache.Reload] (or let
// ensureFresh trigger it) before serving lookups.
func NewSlotCache(fetcher BusyFetcher, loc *time.Location, log *slog.Logger) *SlotCache {
	return &SlotCache{
		fetcher: fetcher,
		loc:     loc,
		now:     time.Now,
		log:     log,
		free:    make(map[string][]string),
	}
}

// Reload rebuilds the whole free-slot grid from the busy feed.
func (c *SlotCache) Reload(ctx context.Context) error {
	now := c.localNow()
	busy, err := c.fetcher.BusyIntervals(ctx, now, now.AddDate(0, 0, cacheDaysAhead))
	if err != nil {
		return fmt.Errorf("calendar: reload slots: %w", err)
	}

	busyByDay := make(map[string][]Interval)
	for _, b := range busy {
		start := b.Start.In(c.loc)
		key := start.Format("2006-01-02")
		busyByDay[key] = append(busyByDay[key], Interval{Start: start, End: b.End.In(c.loc)})
	}

	free := make(map[string][]string, cacheDaysAhead+1)
	for offset := 0; offset <= cacheDaysAhead; offset++ {
		day := now.AddDate(0, 0, offset)
		key := day.Format("2006-01-02")
		if day.Weekday() == time.Sunday {
			free[key] = []string{}
			continue
		}
		free[key] = c.freeSlotsForDay(day, busyByDay[key])
	}

	c.mu.Lock()
	c.free = free
	c.lastLoad = now
	c.mu.Unlock()

	c.log.Info("slot cache reloaded", "days", cacheDaysAhead)
	return nil
}

// ensureFresh reloads the cache when it is older than [cacheTTL]. A failed
// reload keeps serving the stale grid.
func (c *SlotCache) ensureFresh(ctx context.Context) {
	c.mu.RLock()
	stale := c.lastLoad.IsZero() || c.localNow().Sub(c.lastLoad) > cacheTTL
	c.mu.RUnlock()
	if !stale {
		return
	}
	if err := c.Reload(ctx); err != nil {
		c.log.Warn("slot cache reload failed, serving stale data", "err", err)
	}
}

// freeSlots returns a copy of the cached free slot starts for the given day.
func (c *SlotCache) freeSlots(day time.Time) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	slots := c.free[day.Format("2006-01-02")]
	out := make([]string, len(slots))
	copy(out, slots)
	return out
}

// freeSlotsForDay derives the free starts for one day from its busy spans.
func (c *SlotCache) freeSlotsForDay(day time.Time, busy []Interval) []string {
	free := make([]string, 0, len(slotTable))
	for _, slot := range slotTable {
		s := c.clockOn(day, slot.start)
		e := c.clockOn(day, slot.end)
		if !overlapsAny(s, e, busy) {
			free = append(free, slot.start)
		}
	}
	return free
}

// overlapsAny reports whether [s, e) intersects any busy interval. A one
// second tolerance absorbs back-to-back events whose end equals a slot start.
func overlapsAny(s, e time.Time, busy []Interval) bool {
	for _, b := range busy {
		if s.Before(b.End.Add(-time.Second)) && e.After(b.Start) {
			return true
		}
	}
	return false
}

// clockOn anchors an "HH:MM" wall-clock string on the given day.
func (c *SlotCache) clockOn(day time.Time, hhmm string) time.Time {
	h, m, _ := splitHHMM(hhmm)
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, c.loc)
}

func (c *SlotCache) localNow() time.Time {
	return c.now().In(c.loc)
}

func mustClock(hhmm string) time.Duration {
	h, m, err := splitHHMM(hhmm)
	if err != nil {
		panic(err)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
}
