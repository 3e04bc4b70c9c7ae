package monitor

import (
	"fmt"
	"math"

	"github.com/itohio/coldmon/pkg/adc"
	"github.com/itohio/coldmon/pkg/alert"
	"github.com/itohio/coldmon/pkg/reading"
)

// alertText is the human-readable ALERTA field and footer message.
func alertText(name string, tr alert.Transition, r reading.Reading, a adc.Ambient) string {
	var label string
	switch name {
	case CondOutage:
		label = "Falta de energia"
	case CondVoltageRange:
		label = fmt.Sprintf("Tensao fora da faixa: %.0fV", r.Volts)
	case CondBattery:
		label = fmt.Sprintf("Bateria baixa: %.1fV", r.Battery)
	case CondDoor:
		label = "Porta aberta"
	case CondTemperature:
		label = fmt.Sprintf("Temperatura fora da faixa: %.1fC", a.Temperature)
	default:
		label = name
	}

	switch tr {
	case alert.Repeated:
		return label + " (persiste)"
	case alert.Normalized:
		return "Normalizado: " + name
	}
	return label
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
