// Package telemetry mirrors Iris process state to external systems for
// operators running a fleet of Iris hosts: cross-host tick/exit events
// over NATS, a Redis-backed descriptor snapshot, and a shared cron
// instance for coarse housekeeping. None of it is read back by Iris
// itself — it is a pure sink, never a control channel.
package telemetry

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Config holds the optional connection settings for every telemetry
// sink. Every sink degrades to a disabled no-op when its address is
// empty, following the teacher's "graceful fallback when unavailable"
// pattern.
type Config struct {
	NATSURL string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	HousekeepingEnable bool
}

// TickEvent is published to "iris.tick.<graph>" after every completed
// tick.
type TickEvent struct {
	Graph       string    `json:"graph"`
	TickID      string    `json:"tick_id"`
	Timestamp   time.Time `json:"timestamp"`
	DurationUs  int64     `json:"duration_us"`
	ModuleCount int       `json:"module_count"`
}

// ExitEvent is published to "iris.exit" once, when the process is
// shutting down.
type ExitEvent struct {
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher mirrors tick and exit events over NATS. A zero-value
// Publisher (or one constructed with an empty URL) is disabled and every
// method is a no-op.
type Publisher struct {
	conn    *nats.Conn
	enabled bool
	log     zerolog.Logger
}

// NewPublisher connects to cfg.NATSURL. If the URL is empty, or the
// connection fails, it returns a disabled Publisher rather than an
// error — telemetry must never be the reason Iris fails to start.
func NewPublisher(cfg Config, log zerolog.Logger) *Publisher {
	if cfg.NATSURL == "" {
		return &Publisher{log: log}
	}

	conn, err := nats.Connect(cfg.NATSURL,
		nats.Name("iris-telemetry"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(10),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("telemetry: nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("telemetry: nats reconnected")
		}),
	)
	if err != nil {
		log.Warn().Err(err).Str("url", cfg.NATSURL).Msg("telemetry: failed to connect, disabling")
		return &Publisher{log: log}
	}

	log.Info().Str("url", conn.ConnectedUrl()).Msg("telemetry: nats publisher connected")
	return &Publisher{conn: conn, enabled: true, log: log}
}

// PublishTick mirrors one graph tick's duration and module count.
// Failures are logged, never returned — a telemetry hiccup must not
// perturb the tick loop that called it.
func (p *Publisher) PublishTick(tickID, graphName string, dur time.Duration, moduleCount int) {
	if !p.enabled {
		return
	}
	event := TickEvent{
		Graph:       graphName,
		TickID:      tickID,
		Timestamp:   time.Now(),
		DurationUs:  dur.Microseconds(),
		ModuleCount: moduleCount,
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := p.conn.Publish(fmt.Sprintf("iris.tick.%s", graphName), data); err != nil {
		p.log.Warn().Err(err).Str("graph", graphName).Msg("telemetry: failed to publish tick")
	}
}

// PublishExit mirrors the well-known exit-flag firing.
func (p *Publisher) PublishExit(eventID string) {
	if !p.enabled {
		return
	}
	data, err := json.Marshal(ExitEvent{EventID: eventID, Timestamp: time.Now()})
	if err != nil {
		return
	}
	if err := p.conn.Publish("iris.exit", data); err != nil {
		p.log.Warn().Err(err).Msg("telemetry: failed to publish exit")
	}
}

// Close drains and closes the NATS connection, if one was established.
func (p *Publisher) Close() {
	if !p.enabled {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
