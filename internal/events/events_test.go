package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jogardn/bakery-orders/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func TestKafkaPublisher(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	defer sp.Close()

	order := &models.Order{ID: "order-123456", Status: models.StatusReceived, TotalCents: 3500}
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var e Event
		if err := json.Unmarshal(val, &e); err != nil {
			return err
		}
		if e.Type != OrderPlaced || e.OrderID != order.ID || e.TotalCents != 3500 {
			return errors.New("unexpected event payload")
		}
		return nil
	})

	p := newKafkaPublisher(sp, "bakery", testLogger())
	require.NoError(t, p.Publish(context.Background(), NewOrderEvent(OrderPlaced, order)))
}

func TestKafkaPublisherFailure(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	defer sp.Close()
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := newKafkaPublisher(sp, "bakery", testLogger())
	err := p.Publish(context.Background(), NewReviewEvent(&models.Review{ID: "r1"}))
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "bakery.order.placed", Topic("bakery", OrderPlaced))
	assert.Equal(t, "review.submitted", Topic("", ReviewSubmitted))
}

type recorder struct {
	events []Event
	err    error
}

func (r *recorder) Publish(_ context.Context, e Event) error {
	r.events = append(r.events, e)
	return r.err
}

func (r *recorder) HandleEvent(e Event) { r.events = append(r.events, e) }

func TestFanout(t *testing.T) {
	ok := &recorder{}
	broken := &recorder{err: errors.New("down")}

	err := Fanout{broken, ok}.Publish(context.Background(), Event{Type: OrderStatusChanged})
	assert.Error(t, err)
	assert.Len(t, ok.events, 1, "a failing publisher must not stop the others")
	assert.Len(t, broken.events, 1)

	assert.NoError(t, Nop{}.Publish(context.Background(), Event{}))
}

func TestRelayHandleMessage(t *testing.T) {
	rec := &recorder{}
	h := &relayGroupHandler{handler: rec, logger: testLogger()}

	data, err := json.Marshal(Event{Type: OrderPaymentConfirmed, OrderID: "o1"})
	require.NoError(t, err)
	require.NoError(t, h.handleMessage(&sarama.ConsumerMessage{Value: data}))
	require.Len(t, rec.events, 1)
	assert.Equal(t, "o1", rec.events[0].OrderID)

	assert.Error(t, h.handleMessage(&sarama.ConsumerMessage{Value: []byte("{")}))
}

func TestEventKey(t *testing.T) {
	assert.Equal(t, "o1", Event{OrderID: "o1"}.Key())
	assert.Equal(t, "r1", Event{ReviewID: "r1"}.Key())
}
