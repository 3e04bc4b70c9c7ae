package notify

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Operator intents accepted on the command topic.
const (
	IntentStatus           = "obter_status_atual"
	IntentCalibrateVoltage = "calibrar_tensao"
	IntentCalibrateBattery = "calibrar_bateria"
	IntentConfigure        = "configurar"
	IntentMaintenance      = "manutencao"
	IntentResetRecords     = "resetar_minmax"
)

// Command is an operator request.
type Command struct {
	Intent string          `json:"intencao"`
	Value  json.RawMessage `json:"valor,omitempty"`
}

// Handler receives decoded commands. It is called from the MQTT client's
// goroutine and must not block.
type Handler func(Command)

// ParseCommand decodes a command payload.
func ParseCommand(payload []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return Command{}, fmt.Errorf("invalid command payload: %w", err)
	}
	cmd.Intent = strings.TrimSpace(cmd.Intent)
	if cmd.Intent == "" {
		return Command{}, fmt.Errorf("command without intencao")
	}
	return cmd, nil
}

// Float returns the value as a number. Numeric strings are accepted since
// some dashboards send every field quoted.
func (c Command) Float() (float64, error) {
	if len(c.Value) == 0 {
		return 0, fmt.Errorf("%s: missing valor", c.Intent)
	}
	var f float64
	if err := json.Unmarshal(c.Value, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(c.Value, &s); err != nil {
		return 0, fmt.Errorf("%s: valor is not a number", c.Intent)
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", "."), 64)
	if err != nil {
		return 0, fmt.Errorf("%s: valor is not a number: %w", c.Intent, err)
	}
	return f, nil
}

// Bool returns the value as a switch state. Accepts JSON booleans, 0/1 and
// the strings "on"/"off", "true"/"false".
func (c Command) Bool() (bool, error) {
	if len(c.Value) == 0 {
		return false, fmt.Errorf("%s: missing valor", c.Intent)
	}
	var b bool
	if err := json.Unmarshal(c.Value, &b); err == nil {
		return b, nil
	}
	var n float64
	if err := json.Unmarshal(c.Value, &n); err == nil {
		return n != 0, nil
	}
	var s string
	if err := json.Unmarshal(c.Value, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "on", "true", "1", "ligado", "sim":
			return true, nil
		case "off", "false", "0", "desligado", "nao", "não":
			return false, nil
		}
	}
	return false, fmt.Errorf("%s: valor is not a switch state", c.Intent)
}

// Decode unmarshals the value into v.
func (c Command) Decode(v any) error {
	if len(c.Value) == 0 {
		return fmt.Errorf("%s: missing valor", c.Intent)
	}
	if err := json.Unmarshal(c.Value, v); err != nil {
		return fmt.Errorf("%s: invalid valor: %w", c.Intent, err)
	}
	return nil
}
