package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"spamfightbot/internal/errors"
	"spamfightbot/internal/metrics"
	"spamfightbot/internal/models"
	"spamfightbot/internal/tracing"

	"github.com/sirupsen/logrus"
)

const (
	routeNewPair  = "newpair"
	routeModerate = "moderate"

	newPairCommand = "newpair"
)

// Dispatcher feeds inbound messages to the command handler or the
// moderator, one at a time
type Dispatcher struct {
	botUsername string
	newPair     *NewPairHandler
	moderator   MessageHandler
	logger      *errors.Logger
}

func NewDispatcher(botUsername string, newPair *NewPairHandler, moderator MessageHandler, opts ...Option) *Dispatcher {
	o := newOptions(opts)
	return &Dispatcher{
		botUsername: botUsername,
		newPair:     newPair,
		moderator:   moderator,
		logger:      o.logger,
	}
}

// Run handles messages serially until the channel closes or ctx is done.
// A message is fully handled before the next one is read.
func (d *Dispatcher) Run(ctx context.Context, messages <-chan models.Message) error {
	d.logger.Info("Dispatcher started")
	defer d.logger.Info("Dispatcher stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			d.Dispatch(ctx, &msg)
		}
	}
}

// Dispatch routes a single message. Handler errors and panics are logged
// and never escape.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *models.Message) {
	route := d.route(msg)
	if route == "" {
		return
	}

	ctx, span := tracing.StartMessageSpan(ctx, route, msg)
	defer span.End()

	fields := logrus.Fields{
		LogFieldRoute:     route,
		LogFieldChatID:    msg.Chat.ID,
		LogFieldChatTitle: msg.Chat.Title,
		LogFieldMessageID: msg.ID,
		LogFieldUserID:    msg.SenderID(),
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			metrics.IncrementCounter("dispatch_panics_total", map[string]string{"route": route}, "Handler panics recovered by the dispatcher")
			err := fmt.Errorf("panic: %v", r)
			tracing.RecordError(ctx, err)
			d.logger.LogError(err, "Recovered from panic while handling message", fields)
		}
		metrics.RecordTimer("message_handling_duration", time.Since(start), map[string]string{"route": route})
	}()

	metrics.IncrementCounter("messages_dispatched_total", map[string]string{"route": route}, "Inbound messages by route")

	var err error
	switch route {
	case routeNewPair:
		err = d.newPair.Handle(ctx, msg)
	case routeModerate:
		err = d.moderator.HandleMessage(ctx, msg)
	}
	if err != nil {
		tracing.RecordError(ctx, err)
		d.logger.LogError(err, "Failed to handle message", fields)
	}
}

// route picks the handler for msg, or "" to ignore it. /newpair is accepted
// bare or addressed to this bot; every other group message is moderated.
func (d *Dispatcher) route(msg *models.Message) string {
	if name, target, ok := parseCommand(msg.Text); ok && name == newPairCommand {
		if target == "" || strings.EqualFold(target, d.botUsername) {
			return routeNewPair
		}
	}
	if msg.Chat.Type.IsGroup() {
		return routeModerate
	}
	return ""
}

// parseCommand splits "/name@target args" into name and target
func parseCommand(text string) (name, target string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", "", false
	}
	name, target, _ = strings.Cut(strings.TrimPrefix(fields[0], "/"), "@")
	return strings.ToLower(name), target, name != ""
}
