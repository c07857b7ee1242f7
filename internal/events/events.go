// Package events publishes notifications about onboarded vehicles so owner
// dashboards can refresh without polling.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// VehicleAddedEvent is published after a vehicle was created on the backend.
type VehicleAddedEvent struct {
	VehicleID    string    `json:"vehicleId"`
	OwnerID      string    `json:"ownerId"`
	Make         string    `json:"make"`
	Model        string    `json:"model"`
	LicensePlate string    `json:"licensePlate"`
	OccurredAt   time.Time `json:"occurredAt"`
}

// Publisher sends a payload to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Notifier turns domain events into published messages.
type Notifier struct {
	pub    Publisher
	prefix string
	log    logrus.FieldLogger
}

// NewNotifier creates a notifier. A nil pub makes every notification a no-op.
func NewNotifier(pub Publisher, topicPrefix string, log logrus.FieldLogger) *Notifier {
	if log == nil {
		log = logrus.StandardLogger()
	}
	prefix := strings.Trim(topicPrefix, "/")
	if prefix == "" {
		prefix = "pickandgo"
	}
	return &Notifier{pub: pub, prefix: prefix, log: log}
}

// VehicleTopic is the topic vehicle events for ownerID go to.
func (n *Notifier) VehicleTopic(ownerID string) string {
	return fmt.Sprintf("%s/owners/%s/vehicles", n.prefix, ownerID)
}

// NotifyVehicleAdded publishes ev on the owner's vehicle topic.
func (n *Notifier) NotifyVehicleAdded(ctx context.Context, ev VehicleAddedEvent) error {
	if n == nil || n.pub == nil {
		return nil
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(struct {
		Type string `json:"type"`
		VehicleAddedEvent
	}{Type: "vehicle.added", VehicleAddedEvent: ev})
	if err != nil {
		return fmt.Errorf("encode vehicle event: %w", err)
	}
	topic := n.VehicleTopic(ev.OwnerID)
	if err := n.pub.Publish(ctx, topic, payload); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	n.log.WithFields(logrus.Fields{"topic": topic, "vehicle_id": ev.VehicleID}).Debug("Vehicle added event published")
	return nil
}
