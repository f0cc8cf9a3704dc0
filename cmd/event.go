package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/frahmantamala/pocket-settlement/internal/core/events"
	"github.com/spf13/cobra"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Event management commands",
	Long:  `Publish settlement events by hand to check the subscribers and the balance topic`,
}

var publishEventCmd = &cobra.Command{
	Use:   "publish [event-type]",
	Short: "Publish an event for a payee",
	Long:  `Publish an event through the event bus; balance.changed reaches the Kafka balance topic`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		publishEvent(args[0])
	},
}

var (
	eventPayee     int64
	eventAmount    int64
	eventReference string
)

func buildEvent(eventType string) (events.Event, error) {
	switch eventType {
	case events.EventTypeBalanceChanged:
		return events.NewBalanceChangedEvent(eventPayee, events.BalanceReasonPayment, eventReference, eventAmount), nil
	case events.EventTypeTransactionFailed:
		id, _ := strconv.ParseInt(eventReference, 10, 64)
		return events.NewTransactionFailedEvent(id, eventPayee, "published from cli"), nil
	case events.EventTypePayoutCompleted:
		id, _ := strconv.ParseInt(eventReference, 10, 64)
		return events.NewPayoutCompletedEvent(id, eventPayee, eventAmount), nil
	default:
		return nil, fmt.Errorf("unsupported event type %q", eventType)
	}
}

func publishEvent(eventType string) {
	config, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	event, err := buildEvent(eventType)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	app, err := newApp(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer shutdownApp(app)
	lg := app.Logger

	app.Bus.Subscribe(eventType, func(ctx context.Context, event events.Event) error {
		lg.Info("cli handler received event",
			"event_id", event.EventID(),
			"event_type", event.EventType(),
			"payload", event.Payload())
		return nil
	})

	lg.Info("publishing event", "event_type", eventType, "event_id", event.EventID())

	if err := app.Bus.PublishSync(context.Background(), event); err != nil {
		lg.Error("failed to publish event", "error", err)
		return
	}
	lg.Info("event published successfully")
}

func init() {
	publishEventCmd.Flags().Int64Var(&eventPayee, "payee", 0, "Payee id")
	publishEventCmd.Flags().Int64Var(&eventAmount, "amount", 0, "Amount in kopecks")
	publishEventCmd.Flags().StringVar(&eventReference, "reference", "cli", "Transaction or payout reference")

	eventCmd.AddCommand(publishEventCmd)

	rootCmd.AddCommand(eventCmd)
}
