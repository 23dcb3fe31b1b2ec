package pipemap

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// StatusUpdate is the live feed payload: one segment's status changed.
type StatusUpdate struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// StatusHandler is called for every decoded status update.
type StatusHandler func(update StatusUpdate)

// MQTTClient manages the broker connection and the status feed
// subscription.
type MQTTClient struct {
	client        mqtt.Client
	config        MQTTConfig
	statusHandler StatusHandler
	isConnected   bool
	mu            sync.RWMutex
}

// InitMQTT initializes the MQTT client from config. Environment variables
// take precedence over config values. Returns nil when no broker is
// configured (the feed is optional).
func InitMQTT(config MQTTConfig, handler StatusHandler) (*MQTTClient, error) {
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" {
		broker = config.Broker
	}
	if broker == "" {
		log.Println("MQTT disabled: no broker configured")
		return nil, nil
	}

	if config.StatusTopic == "" {
		return nil, fmt.Errorf("MQTT enabled but statusTopic not configured")
	}

	client := &MQTTClient{
		config:        config,
		statusHandler: handler,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)

	clientID := os.Getenv("MQTT_CLIENT_ID")
	if clientID == "" && config.ClientID != "" {
		clientID = config.ClientID
	}
	if clientID == "" {
		clientID = "mainsmap"
	}
	opts.SetClientID(clientID)

	username := os.Getenv("MQTT_USERNAME")
	if username == "" && config.Username != "" {
		username = config.Username
	}
	if username != "" {
		opts.SetUsername(username)
		password := os.Getenv("MQTT_PASSWORD")
		if password == "" && config.Password != "" {
			password = config.Password
		}
		opts.SetPassword(password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false)
	opts.SetOrderMatters(false)

	opts.SetOnConnectHandler(client.onConnect)
	opts.SetConnectionLostHandler(client.onConnectionLost)
	opts.SetReconnectingHandler(client.onReconnecting)

	client.client = mqtt.NewClient(opts)

	go client.connectWithRetry()

	return client, nil
}

// connectWithRetry attempts the initial broker connection with exponential
// backoff.
func (c *MQTTClient) connectWithRetry() {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		log.Println("Connecting to MQTT broker...")

		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				log.Println("Successfully connected to MQTT broker")
				c.setConnected(true)
				return
			}
			log.Printf("MQTT connection failed: %v", token.Error())
		} else {
			log.Println("MQTT connection timeout")
		}

		log.Printf("Retrying MQTT connection in %v...", retryDelay)
		time.Sleep(retryDelay)
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

func (c *MQTTClient) onConnect(client mqtt.Client) {
	log.Printf("MQTT connected, subscribing to %s", c.config.StatusTopic)
	c.setConnected(true)

	token := client.Subscribe(c.config.StatusTopic, 0, c.handleStatusMessage)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		log.Printf("Error subscribing to %s: %v", c.config.StatusTopic, token.Error())
	} else {
		log.Printf("Successfully subscribed to %s", c.config.StatusTopic)
	}
}

func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	log.Printf("MQTT connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

func (c *MQTTClient) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	log.Println("MQTT reconnecting...")
}

// handleStatusMessage decodes one status feed message and forwards it to
// the handler. Malformed payloads are logged and dropped.
func (c *MQTTClient) handleStatusMessage(client mqtt.Client, msg mqtt.Message) {
	payload := msg.Payload()

	var update StatusUpdate
	if err := json.Unmarshal(payload, &update); err != nil {
		log.Printf("Error decoding status update (topic: %s): %v", msg.Topic(), err)
		return
	}
	if update.ID == "" {
		log.Printf("Status update without id (topic: %s), skipping", msg.Topic())
		return
	}

	if handler := c.getStatusHandler(); handler != nil {
		handler(update)
	}
}

func (c *MQTTClient) getStatusHandler() StatusHandler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.statusHandler
}

// IsConnected returns true if the MQTT client is connected.
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect gracefully closes the MQTT connection.
func (c *MQTTClient) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		log.Println("Disconnecting from MQTT broker...")
		c.client.Disconnect(250)
		c.setConnected(false)
	}
}

// GetClient returns the underlying MQTT client for publishing.
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

// newMQTTClientWithMock creates an MQTTClient with a provided mqtt.Client.
// This is used for testing with mock clients.
func newMQTTClientWithMock(client mqtt.Client, config MQTTConfig, handler StatusHandler) *MQTTClient {
	return &MQTTClient{
		client:        client,
		config:        config,
		statusHandler: handler,
	}
}

// Publisher pushes risk bin summaries back to the broker after each
// recompute so dashboards can track the network without polling.
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
}

// NewPublisher creates a summary publisher. A nil client disables
// publishing.
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	if prefix == "" {
		prefix = os.Getenv("MQTT_PUBLISH_PREFIX")
	}
	if prefix == "" {
		prefix = "mainsmap"
	}

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,
		retain:        true,
	}
}

// PublishSummary publishes the per-bin segment counts to {prefix}/summary.
func (p *Publisher) PublishSummary(counts [4]int, total int) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	message := map[string]interface{}{
		"low":       counts[0],
		"medium":    counts[1],
		"high":      counts[2],
		"very_high": counts[3],
		"total":     total,
		"timestamp": time.Now().Unix(),
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshaling summary: %w", err)
	}

	topic := fmt.Sprintf("%s/summary", p.publishPrefix)
	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}

	return nil
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2).
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker.
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}
