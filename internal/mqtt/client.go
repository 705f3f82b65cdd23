package mqtt

import (
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Conn manages the MQTT connection and implements the Publisher and
// Subscriber boundaries on top of it.
type Conn struct {
	client mqtt.Client
	config ConnConfig
}

// ConnConfig holds MQTT connection configuration.
type ConnConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// Dial connects to the MQTT broker. The connection auto-reconnects; paho
// re-establishes subscriptions after a reconnect.
func Dial(config ConnConfig) (*Conn, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(config.ClientID)
	opts.SetUsername(config.Username)
	opts.SetPassword(config.Password)
	opts.SetOnConnectHandler(connectHandler)
	opts.SetConnectionLostHandler(connectLostHandler)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)

	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	log.Println("MQTT Client: Connected to broker:", config.Broker)

	return &Conn{
		client: client,
		config: config,
	}, nil
}

// IsConnected returns whether the client is currently connected.
func (c *Conn) IsConnected() bool {
	return c.client.IsConnected()
}

// Close disconnects from the broker.
func (c *Conn) Close() {
	c.client.Disconnect(250)
	log.Println("MQTT Client: Disconnected")
}

// Connection event handlers
var connectHandler mqtt.OnConnectHandler = func(client mqtt.Client) {
	log.Println("MQTT: Connection established")
}

var connectLostHandler mqtt.ConnectionLostHandler = func(client mqtt.Client, err error) {
	log.Printf("MQTT: Connection lost: %v", err)
}
