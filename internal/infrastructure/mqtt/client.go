package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/pillfleet/pillfleet-core/internal/infrastructure/config"
)

// Client is Core's session with the broker. Schedule pushes, command
// fan-out, and the advisory device status feed all ride on one of
// these; dispensers only ever talk to the broker, never to Core
// directly.
//
// The client keeps its own subscription table so a reconnect can
// replay every subscription before callers notice the gap. All
// methods are safe for concurrent use.
type Client struct {
	paho pahomqtt.Client
	cfg  config.MQTTConfig

	// subs is the replay table, re-applied on every reconnect.
	subs   map[string]sub
	subsMu sync.RWMutex

	online   bool
	onlineMu sync.RWMutex

	onConnect    func()
	onDisconnect func(err error)
	callbackMu   sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger is the slice of logging.Logger the client needs for handler
// failures. A *slog.Logger satisfies it too.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// sub is one row of the replay table.
type sub struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler receives one message. paho invokes handlers on its
// own goroutines, so a slow handler stalls delivery behind it; hand
// anything expensive off. A returned error is logged and the message
// is acknowledged regardless.
type MessageHandler func(topic string, payload []byte) error

// Connect dials the broker described by the mqtt section of
// config.yaml and blocks until the session is up or the attempt
// times out.
//
// The session carries a Last Will on pillfleet/system/status so
// watchers learn about a crashed Core from the broker itself; a
// retained online payload replaces it once the session establishes.
// Reconnection is paho's job from here on, backing off between
// cfg.Reconnect.InitialDelay and MaxDelay.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	opts := brokerOptions(cfg)
	setLastWill(opts, cfg.Broker.ClientID)

	c := &Client{
		cfg:  cfg,
		subs: make(map[string]sub),
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.sessionUp()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.sessionDown(err)
	})

	c.paho = pahomqtt.NewClient(opts)
	token := c.paho.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The on-connect handler fires asynchronously and may not have run
	// yet; mark the session up here so IsConnected holds the moment
	// Connect returns.
	c.onlineMu.Lock()
	c.online = true
	c.onlineMu.Unlock()

	return c, nil
}

// sessionUp runs on every established session, initial and reconnect
// alike: replay the subscription table, retract the Last Will with a
// retained online payload, then tell whoever asked to be told.
func (c *Client) sessionUp() {
	c.onlineMu.Lock()
	c.online = true
	c.onlineMu.Unlock()

	c.subsMu.RLock()
	for _, s := range c.subs {
		// Failures here are retried on the next reconnect cycle.
		c.paho.Subscribe(s.topic, s.qos, c.deliver(s.handler))
	}
	c.subsMu.RUnlock()

	c.paho.Publish(Topics{}.SystemStatus(), byte(c.cfg.QoS), true,
		onlinePayload(c.cfg.Broker.ClientID))

	c.callbackMu.RLock()
	notify := c.onConnect
	c.callbackMu.RUnlock()
	if notify != nil {
		notify()
	}
}

// sessionDown runs when the broker connection drops.
func (c *Client) sessionDown(err error) {
	c.onlineMu.Lock()
	c.online = false
	c.onlineMu.Unlock()

	c.callbackMu.RLock()
	notify := c.onDisconnect
	c.callbackMu.RUnlock()
	if notify != nil {
		notify(err)
	}
}

// Close retires the session. A graceful shutdown publishes its own
// retained offline payload, distinct from the Last Will the broker
// would emit for a crash, then disconnects with a quiesce window for
// in-flight publishes. Safe to call on a zero Client.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}

	if c.IsConnected() {
		token := c.paho.Publish(Topics{}.SystemStatus(), byte(c.cfg.QoS), true,
			offlinePayload(c.cfg.Broker.ClientID))
		token.WaitTimeout(publishTimeout)
	}

	c.paho.Disconnect(disconnectQuiesceMs)

	c.onlineMu.Lock()
	c.online = false
	c.onlineMu.Unlock()

	return nil
}

// HealthCheck reports whether the broker session is up.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports the last known session state. It can lag a
// broker-side drop by up to the keepalive interval.
func (c *Client) IsConnected() bool {
	c.onlineMu.RLock()
	defer c.onlineMu.RUnlock()
	return c.online && c.paho.IsConnected()
}

// SetOnConnect registers a callback for every established session,
// the initial connect included.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect registers a callback for lost sessions. The error
// is paho's account of why the connection dropped.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetLogger attaches a logger for handler errors and recovered
// panics. Without one, both are dropped silently.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// deliver adapts a MessageHandler to paho's callback shape. A panic
// in a handler must not take down the whole message loop, so it is
// recovered and logged here.
func (c *Client) deliver(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT handler returned error",
					"topic", msg.Topic(),
					"error", err,
				)
			}
		}
	}
}
