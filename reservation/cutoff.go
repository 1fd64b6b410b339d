package reservation

import "time"

// Default same-day cutoff: reservations for today close at 08:30.
const (
	DefaultCutoffHour   = 8
	DefaultCutoffMinute = 30
)

// Cutoff is the wall-clock time after which same-day reservations can no
// longer be created, changed, cancelled or reactivated.
type Cutoff struct {
	Hour   int
	Minute int
}

// DefaultCutoff returns 08:30.
func DefaultCutoff() Cutoff {
	return Cutoff{Hour: DefaultCutoffHour, Minute: DefaultCutoffMinute}
}

// Permits applies CanMutate with this cutoff.
func (c Cutoff) Permits(now, target time.Time) bool {
	return CanMutate(now, target, c.Hour, c.Minute)
}

func (c Cutoff) String() string {
	return time.Date(0, 1, 1, c.Hour, c.Minute, 0, 0, time.UTC).Format("15:04")
}

// CanMutate decides whether a reservation for target may still be mutated at
// now. Past dates never, future dates always; for today only while the
// time of day is strictly before cutoffHour:cutoffMinute.
func CanMutate(now, target time.Time, cutoffHour, cutoffMinute int) bool {
	switch CompareDates(target, now) {
	case -1:
		return false
	case 1:
		return true
	}
	h, m := now.Hour(), now.Minute()
	return h < cutoffHour || (h == cutoffHour && m < cutoffMinute)
}
