package telegram

import (
	"context"

	"spamfightbot/internal/constants"
	"spamfightbot/internal/models"

	"github.com/mymmrac/telego"
)

// Updates long-polls the Bot API and streams new messages. Edited messages
// and other update kinds are never requested. The channel closes once ctx
// is done.
func (c *Client) Updates(ctx context.Context) (<-chan models.Message, error) {
	updates, err := c.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout:        c.pollTimeout,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		return nil, classify("getUpdates", err)
	}

	c.logger.WithField("poll_timeout_sec", c.pollTimeout).Info("Started long polling")

	messages := make(chan models.Message, constants.DefaultUpdateBuffer)
	go func() {
		defer close(messages)
		for update := range updates {
			msg, ok := messageFromUpdate(update)
			if !ok {
				continue
			}
			select {
			case messages <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return messages, nil
}

func messageFromUpdate(update telego.Update) (models.Message, bool) {
	if update.Message == nil {
		return models.Message{}, false
	}
	return convertMessage(update.Message), true
}
