package pushapi

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/jake-scott/hon-client/internal/pkg/appliance"
	"github.com/jake-scott/hon-client/internal/pkg/hon"
	"github.com/jake-scott/hon-client/internal/pkg/logging"
)

// Message is the part of an MQTT message the listener reads
type Message interface {
	Topic() string
	Payload() []byte
}

type handlerFunc func(ctx context.Context, a *appliance.Appliance, msg Message) error

// Listener routes pushed messages to the appliances of a session
type Listener struct {
	hon    *hon.Hon
	routes map[string]route
}

type route struct {
	appliance *appliance.Appliance
	handle    handlerFunc
}

type statusPayload struct {
	Parameters []map[string]interface{} `json:"parameters"`
}

func NewListener(h *hon.Hon) *Listener {
	l := &Listener{hon: h}
	l.routes = l.buildRoutes()
	return l
}

// topic parts naming the kind of message
var topicHandlers = map[string]handlerFunc{
	"appliancestatus": statusHandler,
	"connected":       connectionHandler(true),
	"disconnected":    connectionHandler(false),
}

func (l *Listener) buildRoutes() map[string]route {
	routes := map[string]route{}

	for _, a := range l.hon.Appliances() {
		topics, _ := a.Info()["topics"].(map[string]interface{})
		subscribe, _ := topics["subscribe"].([]interface{})

		for _, t := range subscribe {
			topic, ok := t.(string)
			if !ok {
				continue
			}
			for _, part := range strings.Split(topic, "/") {
				if handle, ok := topicHandlers[part]; ok {
					routes[topic] = route{appliance: a, handle: handle}
				}
			}
		}
	}

	return routes
}

// Topics lists the topics to subscribe to
func (l *Listener) Topics() []string {
	topics := make([]string, 0, len(l.routes))
	for t := range l.routes {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// HandleMessage applies one pushed message, then notifies the session
// subscribers
func (l *Listener) HandleMessage(ctx context.Context, msg Message) error {
	r, ok := l.routes[msg.Topic()]
	if !ok {
		return errors.Errorf("no handler for topic %s", msg.Topic())
	}

	if err := r.handle(ctx, r.appliance, msg); err != nil {
		return errors.Wrapf(err, "handling %s", msg.Topic())
	}

	l.hon.Notify()
	return nil
}

func statusHandler(ctx context.Context, a *appliance.Appliance, msg Message) error {
	var payload statusPayload
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		return errors.Wrap(err, "decoding appliance status")
	}

	a.ApplyStatus(payload.Parameters)
	logging.Appliance(ctx, a.MacAddress()).Debugf("on topic %s received %d parameters", msg.Topic(), len(payload.Parameters))
	return nil
}

func connectionHandler(connected bool) handlerFunc {
	return func(ctx context.Context, a *appliance.Appliance, msg Message) error {
		a.SetConnected(connected)
		logging.Appliance(ctx, a.MacAddress()).Infof("connected: %v", connected)
		return nil
	}
}
