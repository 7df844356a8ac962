// Package ecoingestor bridges sensor readings published over MQTT into the
// API service's ingestion endpoint.
package ecoingestor

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	config "gitlab.com/ecotrack/eco.iot_server/src/production/ECO.Config"
	logger "gitlab.com/ecotrack/eco.iot_server/src/production/ECO.Logger"
)

const (
	topicPrefix      = "ecotrack/readings/"
	errorTopicPrefix = "ingestor/errors/"
	unknownSensor    = "unknown"
)

var sensorIDKeys = []string{"hardware_sensor_id", "energy_sensor_id", "network_sensor_id"}

// Forwarder delivers one reading payload to the API
type Forwarder interface {
	CreateReading(ctx context.Context, payload []byte) (int64, error)
}

// Message is one accepted MQTT reading waiting for the next flush
type Message struct {
	SensorID   string
	Topic      string
	Payload    []byte
	ReceivedAt time.Time
}

// Publisher sends feedback to devices. The MQTT client satisfies it in production.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

type Ingestor struct {
	cfg        *config.IngestorConfig
	api        Forwarder
	mqttClient mqtt.Client
	publisher  Publisher
	msgCh      chan Message
	done       chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
	logger     *logger.Logger

	statsMu   sync.Mutex
	forwarded int64
	failed    int64
}

func New(cfg *config.IngestorConfig, api Forwarder, log *logger.Logger) *Ingestor {
	i := &Ingestor{
		cfg:    cfg,
		api:    api,
		msgCh:  make(chan Message, 4096),
		done:   make(chan struct{}),
		logger: log.WithComponent("ingestor"),
	}
	i.publisher = mqttPublisher{i}
	return i
}

func (i *Ingestor) Start(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(i.cfg.GetMQTTBrokerURL()).
		SetClientID(i.cfg.MQTT.ClientID).
		SetOrderMatters(false).
		SetKeepAlive(i.cfg.MQTT.KeepAlive).
		SetPingTimeout(i.cfg.MQTT.PingTimeout).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetCleanSession(false)

	if i.cfg.MQTT.BrokerUser != "" {
		opts.SetUsername(i.cfg.MQTT.BrokerUser)
		opts.SetPassword(i.cfg.MQTT.BrokerPass)
	}

	if i.cfg.MQTT.UseTLS {
		tlsCfg, err := tlsConfig(i.cfg.MQTT.CACertPath)
		if err != nil {
			return err
		}
		opts.SetTLSConfig(tlsCfg)
	}

	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		i.logger.Logger.Error().Err(err).Msg("MQTT connection lost")
	}
	opts.OnConnect = func(c mqtt.Client) {
		topic := i.subscriptionTopic()
		i.logger.Logger.Info().Str("topic", topic).Msg("MQTT connected, subscribing to topic")
		if token := c.Subscribe(topic, 1, i.onMessage); token.Wait() && token.Error() != nil {
			i.logger.Logger.Error().Err(token.Error()).Str("topic", topic).Msg("Failed to subscribe to MQTT topic")
		}
	}

	i.mqttClient = mqtt.NewClient(opts)
	if tk := i.mqttClient.Connect(); tk.Wait() && tk.Error() != nil {
		return tk.Error()
	}

	i.Run(ctx)
	return nil
}

// Run starts the batch writer without touching the broker
func (i *Ingestor) Run(ctx context.Context) {
	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		i.batchWriter(ctx)
	}()
}

// Stop disconnects and waits for the last batch to flush. msgCh is never
// closed: MQTT callbacks may still be delivering when Stop runs.
func (i *Ingestor) Stop() {
	i.stopOnce.Do(func() {
		if i.mqttClient != nil && i.mqttClient.IsConnected() {
			i.mqttClient.Disconnect(500)
		}
		close(i.done)
	})
	i.wg.Wait()
}

func (i *Ingestor) IsConnected() bool {
	return i.mqttClient != nil && i.mqttClient.IsConnected()
}

// Stats reports forwarded and failed readings since start
func (i *Ingestor) Stats() (forwarded, failed int64) {
	i.statsMu.Lock()
	defer i.statsMu.Unlock()
	return i.forwarded, i.failed
}

func (i *Ingestor) subscriptionTopic() string {
	if i.cfg.MQTT.SharedGroup != "" {
		return fmt.Sprintf("$share/%s/%s", i.cfg.MQTT.SharedGroup, i.cfg.MQTT.Topic)
	}
	return i.cfg.MQTT.Topic
}

func (i *Ingestor) onMessage(_ mqtt.Client, m mqtt.Message) {
	i.HandleMessage(m.Topic(), m.Payload())
}

// HandleMessage validates one MQTT message and queues it.
// Expected topic: ecotrack/readings/<sensor_id>
func (i *Ingestor) HandleMessage(topic string, payload []byte) {
	i.logger.Logger.Debug().Str("topic", topic).Int("bytes", len(payload)).Msg("Received MQTT message")

	sensorID, ok := sensorFromTopic(topic)
	if !ok {
		i.logger.Logger.Warn().Str("topic", topic).Str("expected", topicPrefix+"<sensor_id>").Msg("Invalid topic format")
		i.publishError(unknownSensor, "invalid_topic", fmt.Sprintf("Invalid topic format: %s, expected: %s<sensor_id>", topic, topicPrefix))
		return
	}

	body, err := withSensorID(payload, sensorID)
	if err != nil {
		i.logger.Logger.Warn().Err(err).Str("sensor_id", sensorID).Msg("Invalid payload")
		i.publishError(sensorID, "invalid_payload", err.Error())
		return
	}

	msg := Message{
		SensorID:   sensorID,
		Topic:      topic,
		Payload:    body,
		ReceivedAt: time.Now().UTC(),
	}
	select {
	case <-i.done:
		i.logger.Logger.Warn().Str("sensor_id", sensorID).Msg("Ingestor stopped, dropping message")
		return
	default:
	}
	select {
	case i.msgCh <- msg:
	case <-i.done:
		i.logger.Logger.Warn().Str("sensor_id", sensorID).Msg("Ingestor stopped, dropping message")
	}
}

func sensorFromTopic(topic string) (string, bool) {
	if !strings.HasPrefix(topic, topicPrefix) {
		return "", false
	}
	sensorID := strings.TrimPrefix(topic, topicPrefix)
	if sensorID == "" || strings.Contains(sensorID, "/") {
		return "", false
	}
	return sensorID, true
}

// withSensorID checks that payload is a JSON object and tags it with the
// topic's sensor id when the device did not name one itself
func withSensorID(payload []byte, sensorID string) ([]byte, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err != nil || obj == nil {
		return nil, fmt.Errorf("payload must be a JSON object")
	}

	for _, key := range sensorIDKeys {
		if _, ok := obj[key]; ok {
			return payload, nil
		}
	}
	if hw, ok := obj["hardware"]; ok {
		var block map[string]json.RawMessage
		if json.Unmarshal(hw, &block) == nil {
			if _, ok := block["sensor_id"]; ok {
				return payload, nil
			}
		}
	}

	id, err := json.Marshal(sensorID)
	if err != nil {
		return nil, err
	}
	obj["hardware_sensor_id"] = id
	return json.Marshal(obj)
}

func (i *Ingestor) batchWriter(ctx context.Context) {
	batch := make([]Message, 0, i.cfg.Batch.Size)
	timer := time.NewTimer(i.cfg.Batch.Window)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		i.flush(ctx, batch)
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-i.done:
			batch = i.drain(batch)
			flush()
			return
		case msg := <-i.msgCh:
			batch = append(batch, msg)
			if len(batch) >= i.cfg.Batch.Size {
				flush()
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(i.cfg.Batch.Window)
			}
		case <-timer.C:
			flush()
			timer.Reset(i.cfg.Batch.Window)
		}
	}
}

// drain appends whatever was queued before Stop
func (i *Ingestor) drain(batch []Message) []Message {
	for {
		select {
		case msg := <-i.msgCh:
			batch = append(batch, msg)
		default:
			return batch
		}
	}
}

// flush forwards a batch in arrival order so ids follow publish order
func (i *Ingestor) flush(ctx context.Context, batch []Message) {
	i.logger.Logger.Info().Int("batch_size", len(batch)).Msg("Flushing batch to API Service")

	var ok, failed int64
	for _, msg := range batch {
		id, err := i.api.CreateReading(context.WithoutCancel(ctx), msg.Payload)
		if err != nil {
			failed++
			i.logger.Logger.Error().Err(err).Str("sensor_id", msg.SensorID).Msg("Error creating reading via API")
			i.publishError(msg.SensorID, "create_reading_error", fmt.Sprintf("Failed to create reading: %v", err))
			continue
		}
		ok++
		i.logger.Logger.Debug().Int64("reading_id", id).Str("sensor_id", msg.SensorID).Msg("Reading forwarded")
	}

	i.statsMu.Lock()
	i.forwarded += ok
	i.failed += failed
	i.statsMu.Unlock()

	i.logger.Logger.Info().Int64("forwarded", ok).Int64("failed", failed).Msg("Batch processed")
}

// publishError publishes an error message for device feedback
func (i *Ingestor) publishError(sensorID, errorType, message string) {
	errorPayload := map[string]interface{}{
		"error_type": errorType,
		"message":    message,
		"sensor_id":  sensorID,
		"timestamp":  time.Now().UTC(),
	}

	payloadJSON, err := json.Marshal(errorPayload)
	if err != nil {
		i.logger.Logger.Error().Err(err).Msg("Failed to marshal error payload")
		return
	}

	errorTopic := errorTopicPrefix + sensorID
	if err := i.publisher.Publish(errorTopic, payloadJSON); err != nil {
		i.logger.Logger.Error().Err(err).Str("topic", errorTopic).Msg("Failed to publish error")
		return
	}
	i.logger.Logger.Info().Str("topic", errorTopic).Str("message", message).Msg("Published error")
}

type mqttPublisher struct {
	i *Ingestor
}

func (p mqttPublisher) Publish(topic string, payload []byte) error {
	c := p.i.mqttClient
	if c == nil || !c.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}
	token := c.Publish(topic, 1, false, payload)
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

func tlsConfig(caFile string) (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if caFile == "" {
		return cfg, nil
	}
	ca, err := os.ReadFile(caFile)
	if err != nil {
		return nil, err
	}
	cp := x509.NewCertPool()
	if !cp.AppendCertsFromPEM(ca) {
		return nil, fmt.Errorf("bad CA file")
	}
	cfg.RootCAs = cp
	return cfg, nil
}
