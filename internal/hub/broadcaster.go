package hub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"tradeboard/internal/controller"
)

// SessionControls is the slice of the controller the broadcaster drives.
type SessionControls interface {
	Start(ctx context.Context, cfg controller.Config) error
	Stop(ctx context.Context) error
	SwitchStrategy(ctx context.Context, strategyClass string) error
	Snapshot() controller.View
}

// Broadcaster periodically pushes the session snapshot to all dashboard
// clients and executes the commands they send back.
type Broadcaster struct {
	log      zerolog.Logger
	hub      *Hub
	controls SessionControls
	interval time.Duration
}

// NewBroadcaster wires a Broadcaster; interval <= 0 defaults to one second.
func NewBroadcaster(h *Hub, controls SessionControls, interval time.Duration, log zerolog.Logger) *Broadcaster {
	if interval <= 0 {
		interval = time.Second
	}
	return &Broadcaster{log: log, hub: h, controls: controls, interval: interval}
}

// Run pushes snapshots and processes commands until ctx is cancelled.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.broadcastSnapshot()
		case command := <-b.hub.Commands():
			b.processCommand(ctx, command)
		}
	}
}

func (b *Broadcaster) broadcastSnapshot() {
	view := b.controls.Snapshot()
	data, err := json.Marshal(view)
	if err != nil {
		b.log.Warn().Err(err).Msg("marshal snapshot failed")
		return
	}
	b.hub.Broadcast(data)
}

// command is the frame dashboard clients send.
type command struct {
	Type          string             `json:"type"`
	Config        *controller.Config `json:"config,omitempty"`
	StrategyClass string             `json:"strategyClass,omitempty"`
}

func (b *Broadcaster) processCommand(ctx context.Context, raw []byte) {
	var cmd command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		b.log.Warn().Err(err).Msg("bad client command")
		return
	}

	switch cmd.Type {
	case "START":
		if cmd.Config == nil {
			b.log.Warn().Msg("START command without config")
			return
		}
		if err := b.controls.Start(ctx, *cmd.Config); err != nil {
			b.log.Warn().Err(err).Msg("start command failed")
		}

	case "STOP":
		if err := b.controls.Stop(ctx); err != nil {
			b.log.Warn().Err(err).Msg("stop command failed")
		}

	case "SWITCH_STRATEGY":
		if cmd.StrategyClass == "" {
			b.log.Warn().Msg("SWITCH_STRATEGY command without strategyClass")
			return
		}
		if err := b.controls.SwitchStrategy(ctx, cmd.StrategyClass); err != nil {
			b.log.Warn().Err(err).Msg("switch command failed")
		}

	default:
		b.log.Warn().Str("type", cmd.Type).Msg("unknown client command")
	}
}
