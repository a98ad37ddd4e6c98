package producer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/radieske/live-bet-api/internal/shared/kafka"
	"github.com/radieske/live-bet-api/pkg/contracts/events"
)

type KafkaPublisher struct {
	Writer *kafka.Writer
	Topic  string
	now    func() time.Time
}

func NewKafkaPublisher(w *kafka.Writer, topic string) *KafkaPublisher {
	return &KafkaPublisher{Writer: w, Topic: topic, now: time.Now}
}

// PublishBetPlaced envia o evento particionado pelo bet_id
func (p *KafkaPublisher) PublishBetPlaced(ctx context.Context, e events.BetPlaced) error {
	b, err := encodeBetPlaced(e, p.now())
	if err != nil {
		return err
	}
	return kafka.WriteJSON(ctx, p.Writer, e.BetID, b)
}

func encodeBetPlaced(e events.BetPlaced, now time.Time) ([]byte, error) {
	e.TsUnixMs = now.UnixMilli()
	return json.Marshal(e)
}
