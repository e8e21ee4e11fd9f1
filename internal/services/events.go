package services

import (
	"context"
	"encoding/json"
	"log"

	"github.com/flaretrack/apiserver/internal/mq"
	"github.com/flaretrack/apiserver/types"
)

// Event channels consumed by downstream reminder/notification workers.
const (
	ChannelTrackingRecorded       = "tracking.recorded"
	ChannelTrackingDeleted        = "tracking.deleted"
	ChannelAssignmentDisconnected = "assignment.disconnected"
)

// EventPublisher emits domain events to the message broker. Publishing is
// best-effort: a nil publisher or a broker failure never fails the request.
type EventPublisher struct {
	mq *mq.MQ
}

func NewEventPublisher(broker *mq.MQ) *EventPublisher {
	return &EventPublisher{mq: broker}
}

// TrackingEvent is the payload for tracking.* channels.
type TrackingEvent struct {
	UserID int            `json:"user_id"`
	ItemID int            `json:"item_id"`
	Kind   types.ItemKind `json:"kind"`
	Date   string         `json:"date,omitempty"`
	Bucket string         `json:"bucket,omitempty"`
	Value  float64        `json:"value,omitempty"`
}

// AssignmentEvent is the payload for assignment.* channels.
type AssignmentEvent struct {
	UserID int            `json:"user_id"`
	ItemID int            `json:"item_id"`
	Kind   types.ItemKind `json:"kind"`
}

func (p *EventPublisher) TrackingRecorded(ctx context.Context, rec types.TrackingRecord) {
	p.publish(ctx, ChannelTrackingRecorded, TrackingEvent{
		UserID: rec.UserID,
		ItemID: rec.ItemID,
		Kind:   rec.Kind,
		Date:   rec.Date,
		Bucket: rec.Bucket,
		Value:  rec.Value,
	})
}

func (p *EventPublisher) TrackingDeleted(ctx context.Context, kind types.ItemKind, userID, itemID int, date, bucket string) {
	p.publish(ctx, ChannelTrackingDeleted, TrackingEvent{
		UserID: userID,
		ItemID: itemID,
		Kind:   kind,
		Date:   date,
		Bucket: bucket,
	})
}

func (p *EventPublisher) AssignmentDisconnected(ctx context.Context, kind types.ItemKind, userID, itemID int) {
	p.publish(ctx, ChannelAssignmentDisconnected, AssignmentEvent{
		UserID: userID,
		ItemID: itemID,
		Kind:   kind,
	})
}

func (p *EventPublisher) publish(ctx context.Context, channel string, payload any) {
	if p == nil || p.mq == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("mq: marshal %s event: %v", channel, err)
		return
	}
	if _, err := p.mq.Publish(ctx, channel, data, map[string]string{"content-type": "application/json"}); err != nil {
		log.Printf("mq: publish %s event: %v", channel, err)
	}
}
