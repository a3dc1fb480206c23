package hardware

const (
	IndicatorArmed    = "armed"
	IndicatorInFlight = "inflight"
	IndicatorFault    = "fault"

	// Default evdev node for the panel's abort switch.
	AbortSwitchInput = "/dev/input/by-path/platform-gpio-keys-event"

	Consumer = "kerbx-avionics"
)

// Line is a GPIO chip/offset pair.
type Line struct {
	Chip int
	Line int
}

var IndicatorMappings = map[string]Line{
	IndicatorArmed:    {2, 10},
	IndicatorInFlight: {2, 9},
	IndicatorFault:    {2, 11},
}
