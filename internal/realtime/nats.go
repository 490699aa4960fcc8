package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// bridgeEnvelope is the wire format on the event subjects. Origin lets an
// instance skip events it published itself.
type bridgeEnvelope struct {
	Origin string `json:"origin"`
	Room   string `json:"room"`
	Event  Event  `json:"event"`
}

// NATSBridge propagates fan-out events between gateway instances over NATS
// subjects of the form chat.tenant.<id>. It is optional: without it the hub
// fans out to local connections only.
type NATSBridge struct {
	nc         *nats.Conn
	hub        *Hub
	log        *zap.Logger
	instanceID string
	sub        *nats.Subscription
}

// ConnectBridge connects to NATS, subscribes to all tenant event subjects
// and attaches itself to the hub.
func ConnectBridge(url string, hub *Hub, log *zap.Logger) (*NATSBridge, error) {
	nc, err := nats.Connect(url,
		nats.Name("teamloop-chat-gateway"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	b := &NATSBridge{
		nc:         nc,
		hub:        hub,
		log:        log,
		instanceID: uuid.New().String(),
	}

	sub, err := nc.Subscribe("chat.tenant.>", b.handleEvent)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribe to chat events: %w", err)
	}
	b.sub = sub

	hub.SetBridge(b)
	log.Info("NATS event bridge connected",
		zap.String("url", url),
		zap.String("instance_id", b.instanceID))
	return b, nil
}

// Publish forwards a broadcast to the other instances. Failures are logged
// and dropped: remote delivery is best-effort, clients reconcile over REST.
func (b *NATSBridge) Publish(tenantID uint, room string, ev Event) {
	payload, err := json.Marshal(bridgeEnvelope{
		Origin: b.instanceID,
		Room:   room,
		Event:  ev,
	})
	if err != nil {
		b.log.Error("marshal bridge event", zap.Error(err))
		return
	}

	subject := fmt.Sprintf("chat.tenant.%d", tenantID)
	if err := b.nc.Publish(subject, payload); err != nil {
		b.log.Error("publish bridge event",
			zap.String("subject", subject),
			zap.Error(err))
	}
}

// handleEvent re-delivers an event from another instance to local rooms
func (b *NATSBridge) handleEvent(msg *nats.Msg) {
	var env bridgeEnvelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		b.log.Error("decode bridge event",
			zap.String("subject", msg.Subject),
			zap.Error(err))
		return
	}

	if env.Origin == b.instanceID {
		return
	}

	b.hub.deliver(env.Room, env.Event)
}

// Close drops the subscription and the connection
func (b *NATSBridge) Close() {
	if b.sub != nil {
		b.sub.Unsubscribe()
	}
	b.nc.Close()
}
