package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/google/uuid"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/fleetops/services/payroll/config"
	"example.com/fleetops/services/payroll/internal/models"
	"example.com/fleetops/services/payroll/internal/tracing"
)

// SettlementEvent is the notification payload published when a settlement
// is created, approved or paid. Delivery is best-effort: a publish failure
// must never abort the ledger write it follows.
type SettlementEvent struct {
	Type         string                  `json:"type"`
	SettlementID uuid.UUID               `json:"settlement_id"`
	CarrierID    uuid.UUID               `json:"carrier_id"`
	PayeeID      uuid.UUID               `json:"payee_id"`
	Status       models.SettlementStatus `json:"status"`
	OccurredAt   time.Time               `json:"occurred_at"`
}

// MessageHandler processes one received service bus message.
type MessageHandler func(ctx context.Context, message *azservicebus.ReceivedMessage, txn *newrelic.Transaction) error

// AzureServiceBus wraps the service bus client: it publishes settlement
// notifications and consumes load-changed events.
type AzureServiceBus struct {
	client     *azservicebus.Client
	sender     *azservicebus.Sender
	eventQueue string
	tracer     tracing.Tracer
}

// NewAzureServiceBus creates a new Azure Service Bus client
func NewAzureServiceBus(cfg config.ServiceBusConfig, tracer tracing.Tracer) (*AzureServiceBus, error) {
	if cfg.ConnectionString == "" {
		return nil, errors.New("Azure Service Bus connection string is empty")
	}

	client, err := azservicebus.NewClientFromConnectionString(cfg.ConnectionString, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus client")
	}

	sender, err := client.NewSender(cfg.NotificationsQueue, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus sender")
	}

	return &AzureServiceBus{
		client:     client,
		sender:     sender,
		eventQueue: cfg.EventsQueue,
		tracer:     tracer,
	}, nil
}

// NotifySettlementEvent publishes a settlement notification
func (s *AzureServiceBus) NotifySettlementEvent(ctx context.Context, event SettlementEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed to marshal settlement event")
	}

	msg := &azservicebus.Message{
		Body: data,
		ApplicationProperties: map[string]interface{}{
			"type": event.Type,
			"time": event.OccurredAt.Format(time.RFC3339),
		},
	}

	if err := s.sender.SendMessage(ctx, msg, nil); err != nil {
		return errors.Wrap(err, "failed to send settlement event")
	}
	return nil
}

// ProcessMessages receives load-changed events from the events queue and
// dispatches each to the handler until ctx is cancelled. Handled messages
// are completed; failed ones are abandoned so the bus redelivers them.
func (s *AzureServiceBus) ProcessMessages(ctx context.Context, handler MessageHandler) error {
	receiver, err := s.client.NewReceiverForQueue(s.eventQueue, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create Service Bus receiver")
	}
	defer receiver.Close(context.Background())

	for {
		messages, err := receiver.ReceiveMessages(ctx, 10, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "failed to receive messages")
		}

		for _, message := range messages {
			txn := s.tracer.StartTransaction("process-load-event")

			if err := handler(ctx, message, txn); err != nil {
				log.Error().Err(err).Str("message_id", message.MessageID).
					Msg("Failed to process message, abandoning")
				s.tracer.RecordError(txn, err)

				if abandonErr := receiver.AbandonMessage(ctx, message, nil); abandonErr != nil {
					log.Error().Err(abandonErr).Str("message_id", message.MessageID).
						Msg("Failed to abandon message")
				}
				s.tracer.EndTransaction(txn)
				continue
			}

			if completeErr := receiver.CompleteMessage(ctx, message, nil); completeErr != nil {
				log.Error().Err(completeErr).Str("message_id", message.MessageID).
					Msg("Failed to complete message")
				s.tracer.RecordError(txn, completeErr)
			}
			s.tracer.EndTransaction(txn)
		}
	}
}

// Close closes the Service Bus client
func (s *AzureServiceBus) Close() error {
	if s.sender != nil {
		if err := s.sender.Close(context.Background()); err != nil {
			return err
		}
	}

	if s.client != nil {
		return s.client.Close(context.Background())
	}

	return nil
}
