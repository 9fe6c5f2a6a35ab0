package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kalims/queue-engine/internal/domain/queue"
)

// QueuePublisher broadcasts committed queue snapshots over the hub. Every
// reordering produces one board event on "queue:<type>" plus one targeted
// event per waiting patient on "patient:<id>" carrying only that patient's
// position and wait estimate.
type QueuePublisher struct {
	hub *Hub
}

func NewQueuePublisher(hub *Hub) *QueuePublisher {
	return &QueuePublisher{hub: hub}
}

// QueueTopic returns the board topic for a queue type.
func QueueTopic(queueType queue.Type) string {
	return fmt.Sprintf("queue:%s", queueType)
}

// PatientTopic returns the per-patient topic.
func PatientTopic(patientID string) string {
	return fmt.Sprintf("patient:%s", patientID)
}

type positionUpdate struct {
	DisplayNumber     string `json:"displayNumber"`
	Position          int    `json:"position"`
	EstimatedWaitTime int    `json:"estimatedWaitTime"`
	MinWaitTime       int    `json:"minWaitTime"`
	MaxWaitTime       int    `json:"maxWaitTime"`
}

// Publish implements queue.Publisher.
func (p *QueuePublisher) Publish(_ context.Context, queueType queue.Type, snapshot []queue.SnapshotEntry) error {
	now := time.Now().UTC()

	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	p.hub.Broadcast(QueueTopic(queueType), Event{
		Type:      "queue_updated",
		Topic:     QueueTopic(queueType),
		QueueType: string(queueType),
		Timestamp: now,
		Data:      data,
	})

	for _, e := range snapshot {
		upd, err := json.Marshal(positionUpdate{
			DisplayNumber:     e.DisplayNumber,
			Position:          e.Position,
			EstimatedWaitTime: e.EstimatedWaitTime,
			MinWaitTime:       e.MinWaitTime,
			MaxWaitTime:       e.MaxWaitTime,
		})
		if err != nil {
			return err
		}
		topic := PatientTopic(e.PatientID.String())
		p.hub.Broadcast(topic, Event{
			Type:      "position_updated",
			Topic:     topic,
			QueueType: string(queueType),
			EntryID:   e.ID.String(),
			Timestamp: now,
			Data:      upd,
		})
	}
	return nil
}
