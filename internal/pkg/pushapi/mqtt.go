package pushapi

import (
	"context"
	"crypto/tls"
	"net/url"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/jake-scott/hon-client/internal/pkg/logging"
)

const (
	reconnectMin = 5 * time.Second
	reconnectMax = 120 * time.Second
	alpnProtocol = "mqtt"
)

// Config locates the push broker.  Broker is a URL with scheme tcp, mqtt,
// ssl, tls, ws or wss.
type Config struct {
	Broker   string
	Username string
	Password string
	MobileID string
}

// Client feeds the messages of an MQTT broker to a Listener
type Client struct {
	cli      mqtt.Client
	listener *Listener
	messages chan Message
}

func brokerAddress(broker string) (string, bool, error) {
	u, err := url.Parse(broker)
	if err != nil {
		return "", false, errors.Wrapf(err, "parsing broker URL %s", broker)
	}

	switch u.Scheme {
	case "mqtt", "tcp":
		return "tcp://" + u.Host, false, nil
	case "ssl", "tls":
		return "ssl://" + u.Host, true, nil
	case "ws":
		return "ws://" + u.Host + u.Path, false, nil
	case "wss":
		return "wss://" + u.Host + u.Path, true, nil
	}
	return "", false, errors.Errorf("unsupported broker scheme %q", u.Scheme)
}

func clientID(mobileID string) string {
	return mobileID + "_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
}

// NewClient prepares a client for the listener's topics.  Nothing is
// sent until Connect.
func NewClient(cfg Config, listener *Listener) (*Client, error) {
	server, secure, err := brokerAddress(cfg.Broker)
	if err != nil {
		return nil, err
	}

	c := &Client{
		listener: listener,
		messages: make(chan Message, 64),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(server)
	opts.SetClientID(clientID(cfg.MobileID))
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(reconnectMin)
	opts.SetMaxReconnectInterval(reconnectMax)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	if secure {
		opts.SetTLSConfig(&tls.Config{NextProtos: []string{alpnProtocol}})
	}

	// subscriptions are lost with the session, renew them on every connect
	opts.SetOnConnectHandler(func(cli mqtt.Client) {
		logging.Logger(nil).Infof("mqtt connected to %s", server)
		for _, topic := range listener.Topics() {
			if t := cli.Subscribe(topic, 0, c.enqueue); t.Wait() && t.Error() != nil {
				logging.Logger(nil).WithError(t.Error()).Errorf("subscribing to %s", topic)
				continue
			}
			logging.Logger(nil).Debugf("mqtt subscribed to %s", topic)
		}
	})
	opts.SetConnectionLostHandler(func(cli mqtt.Client, err error) {
		logging.Logger(nil).WithError(err).Warn("connection to MQTT broker lost, reconnecting")
	})

	c.cli = mqtt.NewClient(opts)
	return c, nil
}

func (c *Client) enqueue(cli mqtt.Client, msg mqtt.Message) {
	c.messages <- msg
}

// Connect starts the connection, waiting at most timeout for the first
// attempt.  Later failures are retried in the background.
func (c *Client) Connect(timeout time.Duration) error {
	t := c.cli.Connect()
	if !t.WaitTimeout(timeout) {
		logging.Logger(nil).Warnf("mqtt broker not reachable after %s, retrying in the background", timeout)
		return nil
	}
	return errors.Wrap(t.Error(), "connecting to MQTT broker")
}

// Run hands queued messages to the listener until ctx is done
func (c *Client) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			logging.Logger(ctx).Info("push-loop: shutting down")
			return
		case msg := <-c.messages:
			if err := c.listener.HandleMessage(ctx, msg); err != nil {
				logging.Logger(ctx).WithError(err).Warn("push-loop: dropping message")
			}
		}
	}
}

func (c *Client) Close() {
	c.cli.Disconnect(250)
}
