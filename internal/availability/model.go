package availability

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// AvailabilityWindow is a recurring bookable window: a weekday plus a clock
// range, cut into fixed-length slots.
type AvailabilityWindow struct {
	Weekday     time.Weekday
	StartMinute int // minutes from midnight, inclusive
	EndMinute   int // minutes from midnight, exclusive
	SlotMinutes int
}

type Provider struct {
	ID        uuid.UUID
	Name      string
	Specialty string
	Windows   []AvailabilityWindow
	CreatedAt time.Time
	UpdatedAt time.Time
}

type AppointmentSlot struct {
	ProviderID      uuid.UUID
	StartTime       time.Time
	DurationMinutes int
}

func (s AppointmentSlot) EndTime() time.Time {
	return s.StartTime.Add(time.Duration(s.DurationMinutes) * time.Minute)
}

// Key is the stable identity of a slot: the same (provider, start) always
// yields the same key, across processes and restarts.
func (s AppointmentSlot) Key() string {
	return SlotKey(s.ProviderID, s.StartTime)
}

func SlotKey(providerID uuid.UUID, start time.Time) string {
	return fmt.Sprintf("%s|%s", providerID, start.UTC().Format(time.RFC3339))
}

// ParseClock parses a "15:04" clock string into minutes from midnight.
func ParseClock(v string) (int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", v, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Covers reports whether the slot falls inside one of the provider's windows,
// aligned to that window's slot grid.
func (p *Provider) Covers(slot AppointmentSlot) bool {
	start := slot.StartTime.UTC()
	minute := start.Hour()*60 + start.Minute()

	for _, w := range p.Windows {
		if w.Weekday != start.Weekday() {
			continue
		}
		if slot.DurationMinutes != w.SlotMinutes {
			continue
		}
		if minute < w.StartMinute || minute+slot.DurationMinutes > w.EndMinute {
			continue
		}
		if (minute-w.StartMinute)%w.SlotMinutes != 0 {
			continue
		}
		return true
	}
	return false
}

// ExpandSlots materializes every slot the provider's windows produce in
// [from, to), ordered by start time. Both stores use this, so the sequence is
// deterministic and restartable: expanding the same range twice yields the
// same slots.
func ExpandSlots(p *Provider, from, to time.Time) []AppointmentSlot {
	from = from.UTC()
	to = to.UTC()

	var slots []AppointmentSlot

	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	for ; day.Before(to); day = day.AddDate(0, 0, 1) {
		for _, w := range p.Windows {
			if w.Weekday != day.Weekday() {
				continue
			}
			for m := w.StartMinute; m+w.SlotMinutes <= w.EndMinute; m += w.SlotMinutes {
				start := day.Add(time.Duration(m) * time.Minute)
				if start.Before(from) || !start.Before(to) {
					continue
				}
				slots = append(slots, AppointmentSlot{
					ProviderID:      p.ID,
					StartTime:       start,
					DurationMinutes: w.SlotMinutes,
				})
			}
		}
	}

	sortSlots(slots)
	return slots
}

func sortSlots(slots []AppointmentSlot) {
	sort.Slice(slots, func(i, j int) bool {
		return slots[i].StartTime.Before(slots[j].StartTime)
	})
}
