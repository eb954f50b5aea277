/*
Package trigger delivers "advance this config" events to the generator.

PURPOSE:
  Config create/update operations fire an Event carrying the config id and
  move on; nobody waits for the generator. Events travel either through the
  in-process Bus or through Google Cloud Pub/Sub when several instances
  share the work.

FLOW:
  API / catch-up scheduler --Emit--> Bus ------------------> Handler (Generator.Run)
                           --Emit--> PubSubPublisher
                                         |
                                     topic/subscription
                                         |
                                     PubSubSource --Emit--> Bus

SEE ALSO:
  - payroll/generator.go: The handler behind every event
  - api/scheduler.go: Periodic re-emission for configs still behind
*/
package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/warp/payroll-engine/payroll"
)

// Event asks the generator to catch a config up.
type Event struct {
	ConfigID payroll.ConfigID `json:"config_id"`
}

// Emitter publishes events without waiting for them to be handled.
type Emitter interface {
	Emit(ctx context.Context, ev Event) error
}

// Handler processes one event.
type Handler func(ctx context.Context, ev Event) error

// GeneratorHandler runs the generator for the event's config.
func GeneratorHandler(g *payroll.Generator) Handler {
	return func(ctx context.Context, ev Event) error {
		_, err := g.Run(ctx, ev.ConfigID)
		return err
	}
}

var ErrEmptyConfigID = errors.New("trigger event has no config id")

// Encode serializes an event for the wire.
func Encode(ev Event) ([]byte, error) {
	if ev.ConfigID == "" {
		return nil, ErrEmptyConfigID
	}
	return json.Marshal(ev)
}

// Decode parses a wire event.
func Decode(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode trigger event: %w", err)
	}
	if ev.ConfigID == "" {
		return Event{}, ErrEmptyConfigID
	}
	return ev, nil
}
