//go:build tinygo

//go:generate tinygo flash -target=xiao

package main

import (
	"machine"
	"time"

	"tinygo.org/x/drivers/aht20"
)

var (
	adcMains   machine.ADC
	adcBattery machine.ADC
	uart       = machine.UART0

	ambient   aht20.Device
	hasAHT20  bool
	lastMains time.Time
	lastBatt  time.Time
	lastSlow  time.Time
)

func main() {
	PIN_MAINS.Configure(machine.PinConfig{Mode: machine.PinInput})
	PIN_BATTERY.Configure(machine.PinConfig{Mode: machine.PinInput})
	PIN_DOOR.Configure(machine.PinConfig{Mode: machine.PinInputPullup})

	adcMains = machine.ADC{Pin: PIN_MAINS}
	adcBattery = machine.ADC{Pin: PIN_BATTERY}

	adcConfig := machine.ADCConfig{
		Reference:  ADC_REFERENCE_MV,
		Resolution: ADC_RESOLUTION,
	}
	adcMains.Configure(adcConfig)
	adcBattery.Configure(adcConfig)

	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	// The bridge keeps streaming mains samples without the ambient sensor.
	if err := machine.I2C0.Configure(machine.I2CConfig{Frequency: I2C_FREQUENCY}); err == nil {
		ambient = aht20.New(machine.I2C0)
		ambient.Configure()
		ambient.Reset()
		hasAHT20 = true
	}

	now := time.Now()
	lastMains, lastBatt, lastSlow = now, now, now

	for {
		now = time.Now()

		if now.Sub(lastMains) >= MAINS_INTERVAL_US*time.Microsecond {
			lastMains = now
			printSample("M,", adcMains.Get()>>ADC_SHIFT)
		}

		if now.Sub(lastBatt) >= BATTERY_INTERVAL_MS*time.Millisecond {
			lastBatt = now
			printSample("B,", adcBattery.Get()>>ADC_SHIFT)
		}

		if now.Sub(lastSlow) >= SLOW_INTERVAL_MS*time.Millisecond {
			lastSlow = now
			readDoor()
			readAmbient()
		}

		time.Sleep(50 * time.Microsecond)
	}
}

// printSample writes "<prefix><value>\n".
func printSample(prefix string, value uint16) {
	print(prefix)
	print(value)
	print("\n")
}

// readDoor reports the switch state.
func readDoor() {
	open := 0
	if PIN_DOOR.Get() {
		// Pulled up: the reed switch is open
		open = 1
	}
	print("D,")
	print(open)
	print("\n")
}

// readAmbient prints "A,<centi-degC>,<centi-%RH>". Failed reads are skipped
// and the host keeps the previous value.
func readAmbient() {
	if !hasAHT20 {
		return
	}
	if err := ambient.Read(); err != nil {
		return
	}
	print("A,")
	print(ambient.DeciCelsius() * 10)
	print(",")
	print(ambient.DeciRelHumidity() * 10)
	print("\n")
}
