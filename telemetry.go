package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"i4.energy/across/cellgw/modem"
)

// Telemetry periodically publishes the modem's radio state to an MQTT
// broker. Reports are best effort: a failed query or publish is logged and
// the next tick tries again.
type Telemetry struct {
	Logger   *slog.Logger
	Modem    *modem.Modem
	Topic    string
	Interval time.Duration

	client mqtt.Client
}

// telemetryReport is the published payload.
type telemetryReport struct {
	Time       time.Time `json:"time"`
	Registered bool      `json:"registered"`
	State      string    `json:"state"`
	RAT        string    `json:"rat,omitempty"`
	RSSI       int       `json:"rssi,omitempty"`
	RSRP       int       `json:"rsrp,omitempty"`
	SINR       float64   `json:"sinr,omitempty"`
	RSRQ       int       `json:"rsrq,omitempty"`
}

// StartTelemetry connects to the broker and starts the reporting loop. A
// nil Telemetry is returned when broker is empty, disabling the feature.
func StartTelemetry(ctx context.Context, logger *slog.Logger, m *modem.Modem, config *Config) *Telemetry {
	if config.MQTTBroker == "" {
		return nil
	}

	t := &Telemetry{
		Logger:   logger,
		Modem:    m,
		Topic:    config.MQTTTopic,
		Interval: config.TelemetryInterval,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.MQTTBroker)
	opts.SetClientID(config.MQTTClientID)
	opts.SetOrderMatters(false)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", "error", err)
	})
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		logger.Info("MQTT connected", "broker", config.MQTTBroker, "topic", t.Topic)
	})

	t.client = mqtt.NewClient(opts)
	if token := t.client.Connect(); token.Wait() && token.Error() != nil {
		logger.Error("MQTT connect failed, reconnecting in background", "error", token.Error())
	}

	go t.run(ctx)
	return t
}

func (t *Telemetry) run(ctx context.Context) {
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.client.Disconnect(500)
			return
		case <-ticker.C:
			t.publish(ctx)
		}
	}
}

func (t *Telemetry) publish(ctx context.Context) {
	report := telemetryReport{Time: time.Now().UTC()}

	state, err := t.Modem.RegistrationStatus(ctx)
	if err != nil {
		t.Logger.Warn("Telemetry registration query failed", "error", err)
		return
	}
	report.State = state.String()
	report.Registered = state.Registered()

	// Signal readings are unavailable while out of service; the
	// registration state alone is still worth reporting.
	if sq, err := t.Modem.Signal(ctx); err == nil {
		report.RAT = sq.RAT
		report.RSSI = sq.RSSI
		report.RSRP = sq.RSRP
		report.SINR = sq.SINR
		report.RSRQ = sq.RSRQ
	}

	payload, err := json.Marshal(report)
	if err != nil {
		t.Logger.Error("Telemetry encode failed", "error", err)
		return
	}
	if token := t.client.Publish(t.Topic, 0, false, payload); token.Wait() && token.Error() != nil {
		t.Logger.Warn("Telemetry publish failed", "error", token.Error())
	}
}
