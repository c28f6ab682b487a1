// Package pinmap holds the static table of peripheral functions each
// board pin can be routed to.
package pinmap

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	// PinBits is the number of low bits an encoded pin uses for the pin
	// number within its port.
	PinBits = 5
	pinMask = 1<<PinBits - 1

	// IgnorePin selects every pin in table order.
	IgnorePin = -1
)

// Encode combines a port and a pin number into one integer.
func Encode(port, pin int) int {
	return port<<PinBits | pin
}

// Port extracts the port from an encoded pin.
func Port(encoded int) int {
	return encoded >> PinBits
}

// Pin extracts the pin number from an encoded pin.
func Pin(encoded int) int {
	return encoded & pinMask
}

type Peripheral int

const (
	None Peripheral = iota
	UART
	SPI
	I2C
	PWM
	ADC
	CAN
	Timer
)

var peripheralNames = []string{"", "UART", "SPI", "I2C", "PWM", "ADC", "CAN", "TMR"}

func (p Peripheral) String() string {
	if p <= None || int(p) >= len(peripheralNames) {
		return fmt.Sprintf("Peripheral(%d)", int(p))
	}
	return peripheralNames[p]
}

var (
	uartPinNames = []string{"RX", "TX", "CTS", "RTS"}
	spiPinNames  = []string{"SCK", "MOSI", "MISO", "SS"}
)

// Function is one peripheral role a pin can take.
type Function struct {
	Peripheral Peripheral
	// ID is the peripheral instance, e.g. 1 for UART1.
	ID int
	// PinID is the role within the peripheral; only UART and SPI name it.
	PinID int
}

// RoleName returns the name of the pin role for peripherals that have
// named roles, or "" otherwise.
func (f Function) RoleName() string {
	switch f.Peripheral {
	case UART:
		if f.PinID >= 0 && f.PinID < len(uartPinNames) {
			return uartPinNames[f.PinID]
		}
	case SPI:
		if f.PinID >= 0 && f.PinID < len(spiPinNames) {
			return spiPinNames[f.PinID]
		}
	}
	return ""
}

func (f Function) String() string {
	s := fmt.Sprintf("%s%d", f.Peripheral, f.ID)
	if role := f.RoleName(); role != "" {
		s += "." + role
	}
	return s
}

// ParseFunction parses the form produced by String, e.g. "UART0.RX",
// "SPI1.MOSI" or "PWM3".
func ParseFunction(s string) (Function, error) {
	name, role, hasRole := strings.Cut(strings.TrimSpace(s), ".")

	i := len(name)
	for i > 0 && name[i-1] >= '0' && name[i-1] <= '9' {
		i--
	}
	if i == len(name) {
		return Function{}, fmt.Errorf("pin function %q: missing peripheral id", s)
	}

	var f Function
	found := false
	for p := UART; int(p) < len(peripheralNames); p++ {
		if strings.EqualFold(peripheralNames[p], name[:i]) {
			f.Peripheral = p
			found = true
			break
		}
	}
	if !found {
		return Function{}, fmt.Errorf("pin function %q: unknown peripheral %q", s, name[:i])
	}
	id, err := strconv.Atoi(name[i:])
	if err != nil {
		return Function{}, fmt.Errorf("pin function %q: bad peripheral id: %w", s, err)
	}
	f.ID = id

	var roles []string
	switch f.Peripheral {
	case UART:
		roles = uartPinNames
	case SPI:
		roles = spiPinNames
	}
	if roles == nil {
		if hasRole {
			return Function{}, fmt.Errorf("pin function %q: %s has no pin roles", s, f.Peripheral)
		}
		return f, nil
	}
	if !hasRole {
		return Function{}, fmt.Errorf("pin function %q: %s requires a pin role", s, f.Peripheral)
	}
	for id, r := range roles {
		if strings.EqualFold(r, role) {
			f.PinID = id
			return f, nil
		}
	}
	return Function{}, fmt.Errorf("pin function %q: unknown %s pin role %q", s, f.Peripheral, role)
}

// PinInfo lists the functions of one encoded pin.
type PinInfo struct {
	Pin       int
	Functions []Function
}

// PrefixStyle selects how ports are named.
type PrefixStyle int

const (
	// LetterPrefix names ports PA, PB, ...
	LetterPrefix PrefixStyle = iota
	// DigitPrefix names ports P0, P1, ...
	DigitPrefix
)

// Table is the pin function table of one board.
type Table struct {
	Board  string
	Prefix PrefixStyle
	Pins   []PinInfo
}

func (t *Table) NumPins() int {
	return len(t.Pins)
}

func (t *Table) At(i int) PinInfo {
	return t.Pins[i]
}

// Lookup returns the entry for an encoded pin.
func (t *Table) Lookup(pin int) (PinInfo, bool) {
	for _, info := range t.Pins {
		if info.Pin == pin {
			return info, true
		}
	}
	return PinInfo{}, false
}

// PortPrefix returns the name of a port, e.g. "PB" or "P1".
func (t *Table) PortPrefix(port int) string {
	if t.Prefix == DigitPrefix {
		return fmt.Sprintf("P%d", port)
	}
	return "P" + string(rune('A'+port))
}

// PinName renders an encoded pin as <prefix>_<pin>.
func (t *Table) PinName(pin int) string {
	return fmt.Sprintf("%s_%d", t.PortPrefix(Port(pin)), Pin(pin))
}

// Describe renders one pin and its functions, e.g.
// "PA_0: UART0.RX SPI1.MISO \n". Only UART and SPI functions carry a
// pin role.
func (t *Table) Describe(info PinInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: ", t.PinName(info.Pin))
	for _, f := range info.Functions {
		fmt.Fprintf(&b, "%s%d.", f.Peripheral, f.ID)
		switch f.Peripheral {
		case UART, SPI:
			b.WriteString(f.RoleName())
		}
		b.WriteByte(' ')
	}
	b.WriteByte('\n')
	return b.String()
}

// ShowPinFunctions writes the functions of pin to w, or of every pin
// when pin is IgnorePin. Pins missing from the table print nothing.
func (t *Table) ShowPinFunctions(w io.Writer, pin int) {
	for i := 0; i < t.NumPins(); i++ {
		info := t.At(i)
		if pin != IgnorePin && info.Pin != pin {
			continue
		}
		io.WriteString(w, t.Describe(info))
	}
}
