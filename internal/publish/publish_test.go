package publish

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manumagallanes/STransmision/internal/config"
	"github.com/manumagallanes/STransmision/internal/modem"
	"github.com/manumagallanes/STransmision/internal/sim"
)

func TestTopic(t *testing.T) {
	assert.Equal(t, "stransmision/16qam", Topic("stransmision", "16QAM"))
	assert.Equal(t, "lab/link/8psk", Topic("lab/link/", "8PSK"))
}

func TestRunSummary(t *testing.T) {
	bits := sim.RandomBits(300, 2)
	res, err := sim.Run(context.Background(), bits, sim.Options{Scheme: modem.FSK8, N0: 0.5, Seed: 1})
	require.NoError(t, err)

	s := RunSummary(res)
	assert.Equal(t, res.ID, s.RunID)
	assert.Equal(t, "8FSK", s.Scheme)
	assert.Equal(t, 100, s.Symbols)
	assert.Equal(t, res.Analysis.BER, s.BER)
	assert.Equal(t, res.Params.EbN0dB, s.EbN0dB)

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"scheme":"8FSK"`)
}

func TestPointSummary(t *testing.T) {
	s := PointSummary("8PSK", sim.SweepPoint{N0: 0.1, BER: 0.01, Bits: 300, BitErrors: 3})
	assert.Equal(t, 0.1, s.N0)
	assert.Equal(t, 3, s.BitErrors)
	assert.NotZero(t, s.Timestamp)
}

func TestNew_Disabled(t *testing.T) {
	p, err := New(config.MQTTConfig{Enabled: false})
	require.NoError(t, err)
	assert.IsType(t, Nop{}, p)
	assert.NoError(t, p.Publish(context.Background(), Summary{}))
	p.Close()
}
