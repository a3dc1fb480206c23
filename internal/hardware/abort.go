package hardware

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"kerbx/internal/logger"
)

const (
	EV_SYN = 0x00
	EV_KEY = 0x01

	KEY_A = 30 // abort switch

	inputEventSize = 24
)

// InputEvent is a struct input_event as read from an evdev node on a 64-bit
// kernel.
type InputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

func ParseInputEvent(b []byte) (InputEvent, error) {
	if len(b) < inputEventSize {
		return InputEvent{}, fmt.Errorf("short input event: %d bytes", len(b))
	}
	return InputEvent{
		Sec:   int64(binary.LittleEndian.Uint64(b[0:8])),
		Usec:  int64(binary.LittleEndian.Uint64(b[8:16])),
		Type:  binary.LittleEndian.Uint16(b[16:18]),
		Code:  binary.LittleEndian.Uint16(b[18:20]),
		Value: int32(binary.LittleEndian.Uint32(b[20:24])),
	}, nil
}

// IsPress reports a key-down on code. Releases and autorepeat are ignored.
func (e InputEvent) IsPress(code uint16) bool {
	return e.Type == EV_KEY && e.Code == code && e.Value == 1
}

// AbortSwitch watches an evdev node for presses of the abort key.
type AbortSwitch struct {
	logger *logger.Logger
	path   string
	code   uint16
}

func NewAbortSwitch(l *logger.Logger, path string) *AbortSwitch {
	if path == "" {
		path = AbortSwitchInput
	}
	return &AbortSwitch{logger: l, path: path, code: KEY_A}
}

// Monitor calls onPress for every press until ctx is done or the device goes
// away.
func (a *AbortSwitch) Monitor(ctx context.Context, onPress func()) error {
	f, err := os.OpenFile(a.path, os.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("failed to open input device %s: %w", a.path, err)
	}
	go func() {
		<-ctx.Done()
		f.Close()
	}()

	a.logger.Infof("Watching abort switch on %s", a.path)
	return a.watch(ctx, f, onPress)
}

func (a *AbortSwitch) watch(ctx context.Context, r io.Reader, onPress func()) error {
	buf := make([]byte, inputEventSize)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			if errors.Is(err, os.ErrClosed) {
				return nil
			}
			a.logger.Warnf("Error reading input: %v", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		ev, err := ParseInputEvent(buf)
		if err != nil {
			continue
		}
		if ev.IsPress(a.code) {
			a.logger.Warnf("Abort switch pressed")
			onPress()
		}
	}
}
