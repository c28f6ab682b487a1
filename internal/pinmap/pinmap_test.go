package pinmap

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	pin := Encode(3, 17)
	assert.Equal(t, 3*32+17, pin)
	assert.Equal(t, 3, Port(pin))
	assert.Equal(t, 17, Pin(pin))
}

func TestParseFunction(t *testing.T) {
	tests := []struct {
		input    string
		expected Function
		wantErr  string
	}{
		{"UART0.RX", Function{Peripheral: UART, ID: 0, PinID: 0}, ""},
		{"uart2.rts", Function{Peripheral: UART, ID: 2, PinID: 3}, ""},
		{"SPI1.MISO", Function{Peripheral: SPI, ID: 1, PinID: 2}, ""},
		{"PWM3", Function{Peripheral: PWM, ID: 3}, ""},
		{"TMR12", Function{Peripheral: Timer, ID: 12}, ""},
		{"ADC", Function{}, "missing peripheral id"},
		{"USB0", Function{}, "unknown peripheral"},
		{"UART0", Function{}, "requires a pin role"},
		{"UART0.SCK", Function{}, "unknown UART pin role"},
		{"PWM1.TX", Function{}, "has no pin roles"},
		{"UART99999999999999999999.RX", Function{}, "bad peripheral id"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			f, err := ParseFunction(tt.input)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, f)
		})
	}
}

func TestFunction_String(t *testing.T) {
	assert.Equal(t, "UART1.TX", Function{Peripheral: UART, ID: 1, PinID: 1}.String())
	assert.Equal(t, "SPI0.SS", Function{Peripheral: SPI, ID: 0, PinID: 3}.String())
	assert.Equal(t, "CAN0", Function{Peripheral: CAN, ID: 0}.String())
	assert.Equal(t, "", Function{Peripheral: I2C, ID: 0, PinID: 1}.RoleName())
}

func TestTable_Names(t *testing.T) {
	letters := &Table{Prefix: LetterPrefix}
	assert.Equal(t, "PA", letters.PortPrefix(0))
	assert.Equal(t, "PD", letters.PortPrefix(3))
	assert.Equal(t, "PC_7", letters.PinName(Encode(2, 7)))

	digits := &Table{Prefix: DigitPrefix}
	assert.Equal(t, "P5", digits.PortPrefix(5))
	assert.Equal(t, "P3_4", digits.PinName(Encode(3, 4)))
}

func TestLoad(t *testing.T) {
	src := `
name: test
port_prefix: digit
pins:
  - {port: 1, pin: 2, functions: [UART0.TX, PWM1]}
  - {port: 0, pin: 0, functions: []}
`
	table, err := Load(strings.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, "test", table.Board)
	assert.Equal(t, DigitPrefix, table.Prefix)
	require.Equal(t, 2, table.NumPins())
	assert.Equal(t, Encode(1, 2), table.At(0).Pin)
	assert.Equal(t, []Function{
		{Peripheral: UART, ID: 0, PinID: 1},
		{Peripheral: PWM, ID: 1},
	}, table.At(0).Functions)

	info, ok := table.Lookup(Encode(0, 0))
	require.True(t, ok)
	assert.Empty(t, info.Functions)

	_, ok = table.Lookup(Encode(9, 9))
	assert.False(t, ok)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr string
	}{
		{"bad prefix", "name: x\nport_prefix: roman\n", "unknown port_prefix"},
		{"pin out of range", "name: x\npins:\n  - {port: 0, pin: 40}\n", "invalid pin"},
		{"port without letter", "name: x\npins:\n  - {port: 26, pin: 0}\n", "has no letter"},
		{"duplicate", "name: x\npins:\n  - {port: 0, pin: 1}\n  - {port: 0, pin: 1}\n", "PA_1 listed twice"},
		{"bad function", "name: x\npins:\n  - {port: 0, pin: 1, functions: [FOO1]}\n", "unknown peripheral"},
		{"id overflow", "name: x\npins:\n  - {port: 0, pin: 1, functions: [UART99999999999999999999.RX]}\n", "bad peripheral id"},
		{"unknown field", "name: x\ncolour: red\n", "failed to parse pin table"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBuiltinBoards(t *testing.T) {
	boards := Boards()
	assert.Equal(t, []string{"lm3s8962", "str912"}, boards)

	for _, name := range boards {
		t.Run(name, func(t *testing.T) {
			table, err := LoadBoard(name)
			require.NoError(t, err)
			assert.Equal(t, name, table.Board)
			assert.NotZero(t, table.NumPins())
		})
	}

	_, err := LoadBoard("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lm3s8962, str912")
}

func TestTable_ShowPinFunctions(t *testing.T) {
	table := &Table{
		Prefix: LetterPrefix,
		Pins: []PinInfo{
			{Pin: Encode(0, 1), Functions: []Function{
				{Peripheral: UART, ID: 1, PinID: 1},
				{Peripheral: ADC, ID: 0},
			}},
			{Pin: Encode(3, 7)},
		},
	}

	assert.Equal(t, "PA_1: UART1.TX ADC0. \n", table.Describe(table.At(0)))

	var all strings.Builder
	table.ShowPinFunctions(&all, IgnorePin)
	assert.Equal(t, "PA_1: UART1.TX ADC0. \nPD_7: \n", all.String())

	var one strings.Builder
	table.ShowPinFunctions(&one, Encode(3, 7))
	assert.Equal(t, "PD_7: \n", one.String())

	var none strings.Builder
	table.ShowPinFunctions(&none, Encode(5, 0))
	assert.Empty(t, none.String())
}
