// Package notify tells the outside world that a payee balance moved.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/frahmantamala/pocket-settlement/internal/core/events"
	"github.com/frahmantamala/pocket-settlement/internal/payee"
)

// MessageWriter is the part of *kafka.Writer the notifier uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type BalanceRefresher interface {
	RefreshBalance(ctx context.Context, id int64) (*payee.BalanceView, error)
}

// NewKafkaWriter returns a nil writer when no brokers are configured.
func NewKafkaWriter(brokers []string, topic string) MessageWriter {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
	}
}

type BalanceMessage struct {
	EventID      string    `json:"event_id"`
	EventType    string    `json:"event_type"`
	EventVersion int       `json:"event_version"`
	OccurredAt   time.Time `json:"occurred_at"`
	PayeeID      int64     `json:"payee_id"`
	Reason       string    `json:"reason"`
	Reference    string    `json:"reference"`
	AmountKop    int64     `json:"amount_kop"`
	BalanceKop   *int64    `json:"balance_kop,omitempty"`
}

// BalanceNotifier refreshes the cached pocket balance after every balance
// change and broadcasts the change. Both steps are best effort.
type BalanceNotifier struct {
	writer   MessageWriter
	balances BalanceRefresher
	logger   *slog.Logger
}

// NewBalanceNotifier accepts a nil writer, in which case nothing is
// broadcast.
func NewBalanceNotifier(writer MessageWriter, balances BalanceRefresher, logger *slog.Logger) *BalanceNotifier {
	return &BalanceNotifier{writer: writer, balances: balances, logger: logger}
}

func (n *BalanceNotifier) Register(bus *events.EventBus) {
	bus.Subscribe(events.EventTypeBalanceChanged, n.Handle)
}

func (n *BalanceNotifier) Handle(ctx context.Context, event events.Event) error {
	changed, ok := event.(*events.BalanceChangedEvent)
	if !ok {
		return fmt.Errorf("unexpected event %T for %s", event, event.EventType())
	}

	msg := BalanceMessage{
		EventID:      changed.EventID(),
		EventType:    changed.EventType(),
		EventVersion: 1,
		OccurredAt:   changed.OccurredAt().UTC(),
		PayeeID:      changed.PayeeID,
		Reason:       changed.Reason,
		Reference:    changed.Reference,
		AmountKop:    changed.AmountKop,
	}

	if n.balances != nil {
		view, err := n.balances.RefreshBalance(ctx, changed.PayeeID)
		if err != nil {
			n.logger.Warn("balance refresh after change failed", "payee_id", changed.PayeeID, "error", err)
		} else if !view.Stale {
			msg.BalanceKop = &view.BalanceKop
		}
	}

	if n.writer == nil {
		return nil
	}

	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal balance message: %w", err)
	}
	err = n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(changed.PayeeID, 10)),
		Value: value,
	})
	if err != nil {
		n.logger.Error("failed to publish balance change",
			"error", err,
			"payee_id", changed.PayeeID,
			"reference", changed.Reference)
		return err
	}

	n.logger.Info("balance change published",
		"payee_id", changed.PayeeID,
		"reason", changed.Reason,
		"reference", changed.Reference)
	return nil
}

func (n *BalanceNotifier) Close() error {
	if n.writer == nil {
		return nil
	}
	return n.writer.Close()
}
