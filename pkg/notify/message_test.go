package notify

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/itohio/coldmon/pkg/alert"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlertType(t *testing.T) {
	tests := []struct {
		cond   string
		tr     alert.Transition
		want   string
		wantOK bool
	}{
		{"energia", alert.Started, "ALERTA_ENERGIA", true},
		{"PORTA", alert.Started, "ALERTA_PORTA", true},
		{"bateria", alert.Repeated, "ALERTA_REPETITIVO", true},
		{"temperatura", alert.Normalized, "NORMALIZADO_TEMPERATURA", true},
		{"fora da faixa", alert.Started, "ALERTA_FORA_DA_FAIXA", true},
		{"porta", alert.None, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.cond+"/"+tt.tr.String(), func(t *testing.T) {
			got, ok := AlertType(tt.cond, tt.tr)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMessage_JSONKeys(t *testing.T) {
	temp, hum := 3.5, 71.0
	msg := Message{
		Device:      "02 CENTRO",
		Type:        TypePeriodic,
		Temperature: &temp,
		Humidity:    &hum,
		Voltage:     221.4,
		Battery:     12.7,
		Door:        DoorState(false),
		ID:          "abc",
		Date:        "01/03/2024",
		Time:        "08:00:00",
	}

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "02 CENTRO", got["DISPOSITIVO"])
	assert.Equal(t, "periodico", got["TIPO"])
	assert.Equal(t, 3.5, got["TEMP_ATUAL"])
	assert.Equal(t, 71.0, got["UMIDADE"])
	assert.Equal(t, 221.4, got["VOLTAGEM"])
	assert.Equal(t, 12.7, got["BATERIA"])
	assert.Equal(t, "FECHADA", got["PORTA"])
	assert.Equal(t, "abc", got["ID"])
	assert.Equal(t, "01/03/2024", got["DATA"])
	assert.Equal(t, "08:00:00", got["HORA"])

	// Absent sensors and empty alert text are omitted.
	assert.NotContains(t, got, "MAX")
	assert.NotContains(t, got, "MIN")
	assert.NotContains(t, got, "ALERTA")
}

func TestParseCommand(t *testing.T) {
	cmd, err := ParseCommand([]byte(`{"intencao":"calibrar_tensao","valor":220.5}`))
	require.NoError(t, err)
	assert.Equal(t, IntentCalibrateVoltage, cmd.Intent)
	f, err := cmd.Float()
	require.NoError(t, err)
	assert.Equal(t, 220.5, f)

	cmd, err = ParseCommand([]byte(`{"intencao":" obter_status_atual "}`))
	require.NoError(t, err)
	assert.Equal(t, IntentStatus, cmd.Intent)
	_, err = cmd.Float()
	assert.Error(t, err)

	_, err = ParseCommand([]byte(`{"valor":1}`))
	assert.Error(t, err)

	_, err = ParseCommand([]byte(`not json`))
	assert.Error(t, err)
}

func TestCommand_Float(t *testing.T) {
	tests := []struct {
		value   string
		want    float64
		wantErr bool
	}{
		{`127`, 127, false},
		{`"219.8"`, 219.8, false},
		{`"219,8"`, 219.8, false},
		{`"abc"`, 0, true},
		{`true`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got, err := Command{Intent: "x", Value: json.RawMessage(tt.value)}.Float()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestCommand_Bool(t *testing.T) {
	tests := []struct {
		value   string
		want    bool
		wantErr bool
	}{
		{`true`, true, false},
		{`false`, false, false},
		{`1`, true, false},
		{`0`, false, false},
		{`"on"`, true, false},
		{`"OFF"`, false, false},
		{`"ligado"`, true, false},
		{`"maybe"`, false, true},
		{`{}`, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got, err := Command{Intent: "manutencao", Value: json.RawMessage(tt.value)}.Bool()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBackoff(t *testing.T) {
	b := backoff{min: time.Second, max: 15 * time.Second, noJitter: true}

	want := []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		15 * time.Second, 15 * time.Second,
	}
	for i, w := range want {
		assert.InDelta(t, float64(w), float64(b.next()), float64(time.Millisecond), "attempt %d", i)
	}

	b.reset()
	assert.Equal(t, time.Second, b.next())
}

func TestBackoff_Jitter(t *testing.T) {
	b := backoff{min: time.Second, max: time.Second}
	for i := 0; i < 20; i++ {
		d := b.next()
		assert.GreaterOrEqual(t, d, 950*time.Millisecond)
		assert.LessOrEqual(t, d, 1050*time.Millisecond)
	}
}
