package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

// Handler receives events read back from Kafka.
type Handler interface {
	HandleEvent(e Event)
}

// Relay consumes every event topic and hands events to a local Handler, so
// each API instance can feed its own live clients with events published by
// any instance. Each instance must use its own group id.
type Relay struct {
	consumerGroup sarama.ConsumerGroup
	handler       Handler
	logger        *logrus.Logger
	topics        []string
}

type relayGroupHandler struct {
	handler Handler
	logger  *logrus.Logger
}

func NewRelay(brokers []string, groupID, prefix string, handler Handler, logger *logrus.Logger) (*Relay, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	// Live clients only care about what happens from now on.
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Version = sarama.V2_6_0_0

	consumerGroup, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer group: %w", err)
	}

	topics := make([]string, 0, len(AllTypes))
	for _, t := range AllTypes {
		topics = append(topics, Topic(prefix, t))
	}

	return &Relay{
		consumerGroup: consumerGroup,
		handler:       handler,
		logger:        logger,
		topics:        topics,
	}, nil
}

// Start consumes until ctx is done.
func (r *Relay) Start(ctx context.Context) error {
	handler := &relayGroupHandler{handler: r.handler, logger: r.logger}
	for {
		if err := r.consumerGroup.Consume(ctx, r.topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			r.logger.WithError(err).Error("Error consuming from Kafka")
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (r *Relay) Close() error {
	return r.consumerGroup.Close()
}

func (h *relayGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	h.logger.Debug("Kafka relay session setup")
	return nil
}

func (h *relayGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	h.logger.Debug("Kafka relay session cleanup")
	return nil
}

func (h *relayGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.handleMessage(message); err != nil {
				h.logger.WithError(err).WithField("topic", message.Topic).Warn("Skipping undecodable event")
			}
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

func (h *relayGroupHandler) handleMessage(message *sarama.ConsumerMessage) error {
	var e Event
	if err := json.Unmarshal(message.Value, &e); err != nil {
		return err
	}
	h.handler.HandleEvent(e)
	return nil
}
