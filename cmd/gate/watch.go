package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/alfredjeanlab/gatepass/internal/client"
	"github.com/alfredjeanlab/gatepass/internal/events"
	"github.com/alfredjeanlab/gatepass/internal/model"
	"github.com/alfredjeanlab/gatepass/internal/ui"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

var defaultWatchTopics = []string{
	events.TopicEntryCreated,
	events.TopicEntryChanged,
	events.TopicEntryCancelled,
	events.TopicEntryExited,
}

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Follow gate entry events as they happen",
	GroupID: "register",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		topics, _ := cmd.Flags().GetStringSlice("topics")
		useNATS, _ := cmd.Flags().GetBool("nats")
		retry, _ := cmd.Flags().GetDuration("retry")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		if useNATS {
			natsURL := os.Getenv("GATE_NATS_URL")
			if natsURL == "" {
				natsURL = profile.NATSURL
			}
			if natsURL == "" {
				return fmt.Errorf("no NATS URL: set GATE_NATS_URL or log in with --nats-url")
			}
			return watchNATS(ctx, natsURL, topics, profile.Plant)
		}
		return watchSSE(ctx, gateClient, topics, retry)
	},
}

// watchSSE follows the server event stream and reconnects after a drop,
// resuming from the last event seen.
func watchSSE(ctx context.Context, c client.GateClient, topics []string, retry time.Duration) error {
	var lastID string
	for {
		err := c.Stream(ctx, topics, lastID, func(e client.StreamEvent) error {
			lastID = e.ID
			emitEvent(e.Topic, e.Data)
			return nil
		})
		if ctx.Err() != nil {
			return nil
		}
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < 500 {
			return err
		}
		if err != nil {
			log.Printf("event stream: %v", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(retry):
		}
	}
}

// watchNATS subscribes to each topic on the broker. Events of other plants
// are skipped when plant is set.
func watchNATS(ctx context.Context, natsURL string, topics []string, plant string) error {
	sub, err := events.NewNATSSubscriber(natsURL,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("nats: disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Printf("nats: reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer sub.Close()

	out := make(chan events.Message)
	for _, topic := range topics {
		ch, cancel, err := sub.Subscribe(topic)
		if err != nil {
			return fmt.Errorf("subscribing to events: %w", err)
		}
		defer cancel()
		go func(ch <-chan events.Message) {
			for m := range ch {
				select {
				case out <- m:
				case <-ctx.Done():
					return
				}
			}
		}(ch)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-out:
			if plant != "" && m.Plant != "" && m.Plant != plant {
				continue
			}
			emitEvent(m.Topic, m.Data)
		}
	}
}

// eventPayload covers the fields of every published event.
type eventPayload struct {
	Entry    *model.Entry `json:"entry"`
	Reason   string       `json:"reason"`
	Warnings []string     `json:"warnings"`
	Name     string       `json:"name"`
	User     string       `json:"user"`
	Plant    string       `json:"plant"`
}

func emitEvent(topic string, data []byte) {
	if jsonOutput {
		fmt.Printf("{\"topic\":%q,\"data\":%s}\n", topic, data)
		return
	}
	fmt.Printf("%s  %s\n", ui.RenderMuted(time.Now().Format("15:04:05")), describeEvent(topic, data))
}

// describeEvent renders one event as a single line.
func describeEvent(topic string, data []byte) string {
	var p eventPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return topic + " " + string(data)
	}
	parts := []string{ui.RenderAccent(topic)}
	switch {
	case p.Entry != nil:
		h := &p.Entry.Header
		parts = append(parts, h.ID, string(h.Kind), h.Plant, h.Vehicle.Number, ui.RenderStatus(string(h.Status)))
		if p.Reason != "" {
			parts = append(parts, fmt.Sprintf("reason=%q", p.Reason))
		}
		if len(p.Warnings) > 0 {
			parts = append(parts, ui.RenderWarning(fmt.Sprintf("(%d warnings)", len(p.Warnings))))
		}
	case p.User != "":
		parts = append(parts, p.User)
		if p.Plant != "" {
			parts = append(parts, p.Plant)
		}
	case p.Name != "":
		parts = append(parts, p.Name)
	}
	return strings.Join(parts, " ")
}

func init() {
	watchCmd.Flags().StringSlice("topics", defaultWatchTopics, "topics or patterns (e.g. gate.entry.*)")
	watchCmd.Flags().Bool("nats", false, "subscribe to the NATS broker instead of the server stream")
	watchCmd.Flags().Duration("retry", 3*time.Second, "wait before reconnecting a dropped stream")
}
