package clock

// Shift is an operating shift bucket.
type Shift string

// Shifts by effective start hour.
const (
	ShiftMorning   Shift = "MORNING"   // 06:00 - 13:59
	ShiftAfternoon Shift = "AFTERNOON" // 14:00 - 21:59
	ShiftNight     Shift = "NIGHT"     // 22:00 - 05:59
	ShiftUnknown   Shift = "UNK"
)

// Shifts lists the known shifts in display order.
var Shifts = []Shift{ShiftMorning, ShiftAfternoon, ShiftNight}

// ShiftOf classifies t by its hour.
func ShiftOf(t TimeOfDay) Shift {
	if !t.IsValid() {
		return ShiftUnknown
	}
	switch h := t.Hour(); {
	case h >= 6 && h < 14:
		return ShiftMorning
	case h >= 14 && h < 22:
		return ShiftAfternoon
	default:
		return ShiftNight
	}
}
