// Package publish pushes run summaries to an MQTT broker.
package publish

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/manumagallanes/STransmision/internal/config"
	"github.com/manumagallanes/STransmision/internal/sim"
)

// Summary is the message published for a run or a sweep point.
type Summary struct {
	Timestamp int64   `json:"timestamp"`
	RunID     string  `json:"run_id,omitempty"`
	Scheme    string  `json:"scheme"`
	N0        float64 `json:"n0"`
	EbN0dB    float64 `json:"eb_n0_db,omitempty"`
	Symbols   int     `json:"symbols"`
	Bits      int     `json:"bits"`
	BitErrors int     `json:"bit_errors"`
	BER       float64 `json:"ber"`
	SER       float64 `json:"ser"`
	Ps        float64 `json:"ps,omitempty"`
}

// RunSummary condenses a finished run.
func RunSummary(res *sim.Result) Summary {
	s := Summary{
		Timestamp: res.Started.Unix(),
		RunID:     res.ID,
		Scheme:    res.Scheme.String(),
		N0:        res.N0,
		Symbols:   res.Metadata.TotalSymbols,
		Bits:      res.Analysis.TotalBits,
		BitErrors: res.Analysis.BitErrors,
		BER:       res.Analysis.BER,
		SER:       res.SymbolErrors.Rate,
		Ps:        res.Analysis.Ps,
	}
	if res.Params != nil {
		s.EbN0dB = res.Params.EbN0dB
	}
	return s
}

// PointSummary condenses one sweep point.
func PointSummary(scheme string, p sim.SweepPoint) Summary {
	return Summary{
		Timestamp: time.Now().Unix(),
		Scheme:    scheme,
		N0:        p.N0,
		EbN0dB:    p.EbN0dB,
		Symbols:   p.Symbols,
		Bits:      p.Bits,
		BitErrors: p.BitErrors,
		BER:       p.BER,
		SER:       p.SER,
	}
}

// Publisher delivers summaries somewhere.
type Publisher interface {
	Publish(ctx context.Context, s Summary) error
	Close()
}

// Nop discards everything. It stands in when MQTT is disabled.
type Nop struct{}

// Publish drops s.
func (Nop) Publish(context.Context, Summary) error { return nil }

// Close does nothing.
func (Nop) Close() {}

// MQTTPublisher publishes summaries to <topic>/<scheme>.
type MQTTPublisher struct {
	client mqtt.Client
	config config.MQTTConfig
}

func generateClientID(prefix string) string {
	b := make([]byte, 4)
	rand.Read(b)
	return prefix + "_" + hex.EncodeToString(b)
}

// NewMQTTPublisher connects to the configured broker.
func NewMQTTPublisher(cfg config.MQTTConfig) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(generateClientID(cfg.ClientID))
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Println("MQTT: Connected to broker")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("MQTT: Connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to MQTT broker: %w", token.Error())
	}
	log.Printf("MQTT: Connected to %s, publishing under %s/", cfg.Broker, cfg.Topic)

	return &MQTTPublisher{client: client, config: cfg}, nil
}

// Topic returns the topic summaries of scheme are published to.
func Topic(prefix, scheme string) string {
	return strings.TrimSuffix(prefix, "/") + "/" + strings.ToLower(scheme)
}

// Publish sends s and waits for delivery or ctx.
func (p *MQTTPublisher) Publish(ctx context.Context, s Summary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	topic := Topic(p.config.Topic, s.Scheme)
	token := p.client.Publish(topic, p.config.QoS, p.config.Retain, data)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("publish to %s: %w", topic, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}

// New returns an MQTT publisher when cfg enables one and Nop otherwise.
func New(cfg config.MQTTConfig) (Publisher, error) {
	if !cfg.Enabled {
		return Nop{}, nil
	}
	return NewMQTTPublisher(cfg)
}
