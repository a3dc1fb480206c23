package hardware

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"

	"kerbx/internal/logger"
	"kerbx/internal/types"
)

// IndicatorLevels returns the level of every indicator line for a state.
func IndicatorLevels(state types.AvionicsState) map[string]bool {
	levels := map[string]bool{
		IndicatorArmed:    false,
		IndicatorInFlight: false,
		IndicatorFault:    false,
	}
	switch state {
	case types.StateReady, types.StateCountdown:
		levels[IndicatorArmed] = true
	case types.StateInFlight:
		levels[IndicatorArmed] = true
		levels[IndicatorInFlight] = true
	case types.StateError:
		levels[IndicatorFault] = true
	}
	return levels
}

// GPIOIndicators drives the panel status lines through the GPIO character
// device.
type GPIOIndicators struct {
	logger   *logger.Logger
	mappings map[string]Line
	chips    map[int]*gpiocdev.Chip
	lines    map[string]*gpiocdev.Line
	mu       sync.RWMutex
}

func NewGPIOIndicators(l *logger.Logger, mappings map[string]Line) *GPIOIndicators {
	if mappings == nil {
		mappings = IndicatorMappings
	}
	return &GPIOIndicators{
		logger:   l,
		mappings: mappings,
		chips:    make(map[int]*gpiocdev.Chip),
		lines:    make(map[string]*gpiocdev.Line),
	}
}

// Initialize requests every indicator line as an output, initially low.
func (g *GPIOIndicators) Initialize() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for name, mapping := range g.mappings {
		chip, ok := g.chips[mapping.Chip]
		if !ok {
			var err error
			chip, err = gpiocdev.NewChip(fmt.Sprintf("gpiochip%d", mapping.Chip))
			if err != nil {
				return fmt.Errorf("failed to open GPIO chip %d: %w", mapping.Chip, err)
			}
			g.chips[mapping.Chip] = chip
		}

		line, err := chip.RequestLine(mapping.Line,
			gpiocdev.AsOutput(0),
			gpiocdev.WithConsumer(Consumer))
		if err != nil {
			return fmt.Errorf("failed to request GPIO line %d: %w", mapping.Line, err)
		}

		g.lines[name] = line
		g.logger.Debugf("Configured indicator %s: chip=%d, line=%d", name, mapping.Chip, mapping.Line)
	}
	return nil
}

// Show sets the indicator lines for state. Every line is attempted; the first
// failure is returned.
func (g *GPIOIndicators) Show(state types.AvionicsState) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var firstErr error
	for name, on := range IndicatorLevels(state) {
		line, ok := g.lines[name]
		if !ok {
			continue
		}
		val := 0
		if on {
			val = 1
		}
		if err := line.SetValue(val); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to set indicator %s=%v: %w", name, on, err)
		}
	}
	return firstErr
}

func (g *GPIOIndicators) Cleanup() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for name, line := range g.lines {
		line.Close()
		g.logger.Debugf("Closed GPIO line for %s", name)
	}
	for id, chip := range g.chips {
		chip.Close()
		g.logger.Debugf("Closed GPIO chip %d", id)
	}
	g.lines = make(map[string]*gpiocdev.Line)
	g.chips = make(map[int]*gpiocdev.Chip)
}
