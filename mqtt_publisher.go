package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/sirupsen/logrus"
)

// MQTTPublisher publishes spots as they arrive and periodic metric snapshots
type MQTTPublisher struct {
	client   mqtt.Client
	config   *MQTTConfig
	gatherer prometheus.Gatherer
	log      *logrus.Entry
}

// MetricPayload represents a metric message for MQTT
type MetricPayload struct {
	Timestamp int64              `json:"timestamp"`
	Metrics   map[string]float64 `json:"metrics"`
}

// loadTLSConfig loads TLS configuration from files
func loadTLSConfig(tlsConfig MQTTTLSConfig) (*tls.Config, error) {
	if !tlsConfig.Enabled {
		return nil, nil
	}

	config := &tls.Config{InsecureSkipVerify: tlsConfig.InsecureSkipVerify}

	if tlsConfig.CACert != "" {
		caCert, err := os.ReadFile(tlsConfig.CACert)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		config.RootCAs = pool
	}

	if tlsConfig.ClientCert != "" && tlsConfig.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(tlsConfig.ClientCert, tlsConfig.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		config.Certificates = []tls.Certificate{cert}
	}

	return config, nil
}

// NewMQTTPublisher connects to the broker. gatherer supplies the metric snapshots.
func NewMQTTPublisher(config *MQTTConfig, gatherer prometheus.Gatherer) (*MQTTPublisher, error) {
	log := NewLogger("mqtt")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(config.ClientID + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	if config.Username != "" {
		opts.SetUsername(config.Username)
	}
	if config.Password != "" {
		opts.SetPassword(config.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	if config.TLS.Enabled {
		tlsConfig, err := loadTLSConfig(config.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS config: %w", err)
		}
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Info("Connected to broker")
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.WithError(err).Warn("Connection lost")
	})
	opts.SetReconnectingHandler(func(client mqtt.Client, opts *mqtt.ClientOptions) {
		log.Info("Attempting to reconnect")
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	log.WithField("broker", config.Broker).Info("Successfully connected to broker")

	return &MQTTPublisher{
		client:   client,
		config:   config,
		gatherer: gatherer,
		log:      log,
	}, nil
}

// Run publishes metric snapshots every publish_interval until ctx is done
func (mp *MQTTPublisher) Run(ctx context.Context) {
	if mp.gatherer == nil {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(time.Duration(mp.config.PublishInterval) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mp.publishMetrics()
		}
	}
}

func (mp *MQTTPublisher) publishMetrics() {
	families, err := mp.gatherer.Gather()
	if err != nil {
		mp.log.WithError(err).Error("Failed to gather metrics")
		return
	}
	for category, payload := range buildMetricPayloads(families, time.Now().Unix()) {
		mp.publish(fmt.Sprintf("%s/metrics/%s", mp.config.TopicPrefix, category), payload)
	}
}

// metricCategories routes metric names (after the sparkclient_ prefix) to topics
var metricCategories = []struct {
	prefix, category string
}{
	{"connect", "connection"},
	{"disconnect", "connection"},
	{"frames_", "connection"},
	{"commands_", "connection"},
	{"send_", "connection"},
	{"decode_", "connection"},
	{"responses_", "connection"},
	{"spot", "spots"},
	{"callsign_", "callsign"},
	{"import_", "logbook"},
	{"logbook_", "logbook"},
}

// buildMetricPayloads groups gathered metrics into one payload per category.
// Labelled series are keyed name{label=value,...}.
func buildMetricPayloads(families []*dto.MetricFamily, timestamp int64) map[string]MetricPayload {
	payloads := make(map[string]MetricPayload)
	for _, mf := range families {
		name := strings.TrimPrefix(mf.GetName(), "sparkclient_")
		category := "resources"
		for _, c := range metricCategories {
			if strings.HasPrefix(name, c.prefix) {
				category = c.category
				break
			}
		}

		for _, m := range mf.GetMetric() {
			value, ok := extractMetricValue(m)
			if !ok {
				continue
			}
			p, exists := payloads[category]
			if !exists {
				p = MetricPayload{Timestamp: timestamp, Metrics: make(map[string]float64)}
				payloads[category] = p
			}
			p.Metrics[seriesKey(name, m.GetLabel())] = value
		}
	}
	return payloads
}

func seriesKey(name string, labels []*dto.LabelPair) string {
	if len(labels) == 0 {
		return name
	}
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = l.GetName() + "=" + l.GetValue()
	}
	return name + "{" + strings.Join(parts, ",") + "}"
}

// extractMetricValue extracts the numeric value from a Prometheus metric
func extractMetricValue(m *dto.Metric) (float64, bool) {
	switch {
	case m.GetGauge() != nil:
		return m.GetGauge().GetValue(), true
	case m.GetCounter() != nil:
		return m.GetCounter().GetValue(), true
	case m.GetHistogram() != nil:
		return m.GetHistogram().GetSampleSum(), true
	case m.GetSummary() != nil:
		return m.GetSummary().GetSampleSum(), true
	}
	return 0, false
}

func (mp *MQTTPublisher) publish(topic string, payload MetricPayload) {
	if len(payload.Metrics) == 0 {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		mp.log.WithError(err).WithField("topic", topic).Error("Failed to marshal payload")
		return
	}
	token := mp.client.Publish(topic, mp.config.QoS, mp.config.Retain, data)
	if token.Wait() && token.Error() != nil {
		mp.log.WithError(token.Error()).WithField("topic", topic).Error("Failed to publish")
	}
}

// spotPayload is the JSON body published for a spot
func spotPayload(spot Spot) map[string]interface{} {
	payload := map[string]interface{}{
		"call":            spot.Call.Callsign,
		"time":            spot.Time,
		"snr":             spot.SNR,
		"dt":              spot.DT,
		"frequency":       spot.Frequency,
		"tuned_frequency": spot.TunedFrequency,
		"mode":            spot.Mode,
		"band":            spot.Band,
		"msg":             spot.Msg,
	}
	if spot.Call.Country != "" {
		payload["country"] = spot.Call.Country
		payload["continent"] = spot.Call.Continent
	}
	if state := spot.Call.State(); state != "" {
		payload["state"] = state
	}
	if spot.Locator != "" {
		payload["locator"] = spot.Locator
	}
	if spot.Distance != nil {
		payload["distance_km"] = *spot.Distance
	}
	return payload
}

// PublishSpot publishes to {prefix}/spots/{band} without waiting for the broker
func (mp *MQTTPublisher) PublishSpot(spot Spot) {
	if mp == nil || !mp.client.IsConnected() {
		return
	}

	topic := fmt.Sprintf("%s/spots/%s", mp.config.TopicPrefix, spot.Band)
	data, err := json.Marshal(spotPayload(spot))
	if err != nil {
		mp.log.WithError(err).Error("Failed to marshal spot payload")
		return
	}

	token := mp.client.Publish(topic, mp.config.QoS, mp.config.Retain, data)
	go func() {
		if token.Wait() && token.Error() != nil {
			mp.log.WithError(token.Error()).WithField("topic", topic).Error("Failed to publish spot")
		}
	}()
}

// Disconnect gracefully disconnects from the MQTT broker
func (mp *MQTTPublisher) Disconnect() {
	if mp.client != nil && mp.client.IsConnected() {
		mp.client.Disconnect(250)
		mp.log.Info("Disconnected from broker")
	}
}
