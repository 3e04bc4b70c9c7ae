// Package notify forwards appliance state and alert transitions to the
// message bus and delivers operator commands back to the control loop.
package notify

import (
	"github.com/iancoleman/strcase"

	"github.com/itohio/coldmon/pkg/alert"
)

// Message types carried in the TIPO field.
const (
	TypePeriodic        = "periodico"
	TypeStatus          = "STATUS_SOLICITADO"
	TypeRepeated        = "ALERTA_REPETITIVO"
	TypeCalibrationOK   = "feedback_calibracao_sucesso"
	TypeConfigFeedback  = "feedback_configuracao"
	TypeCommandFeedback = "feedback_comando"
	TypeMaintenanceOn   = "MANUTENCAO_ATIVADA"
	TypeMaintenanceOff  = "MANUTENCAO_DESATIVADA"

	alertPrefix      = "ALERTA_"
	normalizedPrefix = "NORMALIZADO_"
)

// PORTA values.
const (
	DoorOpen   = "ABERTA"
	DoorClosed = "FECHADA"
)

// Message is the JSON document published on the data topic. The keys are
// fixed by the backend that consumes them.
type Message struct {
	Device      string   `json:"DISPOSITIVO"`
	Type        string   `json:"TIPO"`
	Temperature *float64 `json:"TEMP_ATUAL,omitempty"`
	Humidity    *float64 `json:"UMIDADE,omitempty"`
	Max         *float64 `json:"MAX,omitempty"`
	Min         *float64 `json:"MIN,omitempty"`
	Voltage     float64  `json:"VOLTAGEM"`
	Battery     float64  `json:"BATERIA"`
	Door        string   `json:"PORTA"`
	Alert       string   `json:"ALERTA,omitempty"`
	ID          string   `json:"ID"`
	Date        string   `json:"DATA"`
	Time        string   `json:"HORA"`
}

// AlertType maps a condition transition to its TIPO. The condition name is
// rendered in SCREAMING_SNAKE. None is never forwarded, so ok is false for it.
func AlertType(condition string, tr alert.Transition) (typ string, ok bool) {
	cond := strcase.ToScreamingSnake(condition)
	switch tr {
	case alert.Started:
		return alertPrefix + cond, true
	case alert.Repeated:
		return TypeRepeated, true
	case alert.Normalized:
		return normalizedPrefix + cond, true
	}
	return "", false
}

// DoorState renders the door switch for the PORTA field.
func DoorState(open bool) string {
	if open {
		return DoorOpen
	}
	return DoorClosed
}
