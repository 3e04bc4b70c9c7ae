//go:build tinygo

package main

import "machine"

const (
	// Sampling configuration
	MAINS_INTERVAL_US   = 500  // Mains ADC read interval in microseconds (~33 samples per 60 Hz cycle)
	BATTERY_INTERVAL_MS = 100  // Battery ADC read interval in milliseconds
	SLOW_INTERVAL_MS    = 1000 // Door switch and AHT20 read interval in milliseconds

	// ADC configuration
	ADC_REFERENCE_MV = 3300 // Reference voltage in millivolts (3.3V)
	ADC_RESOLUTION   = 12   // ADC resolution in bits (12-bit = 0-4095)
	ADC_SHIFT        = 4    // machine.ADC.Get() is scaled to 16 bits

	// ADC pins
	PIN_MAINS   = machine.A1 // Biased transformer secondary, mid-rail at no signal
	PIN_BATTERY = machine.A2 // Resistor divider from the 12V battery

	// Door reed switch, closed (low) when the door is shut
	PIN_DOOR = machine.D3

	// I2C for the AHT20 ambient sensor
	I2C_FREQUENCY = 400 * machine.KHz

	// Serial configuration
	// Worst case 2000 mains lines/sec * 7 bytes ("M,4095\n") = 14,000 bytes/sec.
	// UART 8N1: 10 bits/byte = 140,000 baud minimum; 921600 leaves ~6x headroom.
	UART_BAUD_RATE = 921600
)
