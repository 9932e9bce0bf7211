// Package telegram adapts the telego Bot API client to the chat actions
// and inbound message stream used by the service layer.
package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"spamfightbot/internal/constants"
	"spamfightbot/internal/errors"
	"spamfightbot/internal/metrics"
	"spamfightbot/internal/models"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Client performs Bot API calls. Every outbound call waits on a shared
// rate limiter first.
type Client struct {
	bot         *telego.Bot
	limiter     *rate.Limiter
	pollTimeout int
	logger      *errors.Logger
}

// NewClient creates a client for the bot identified by config.Token
func NewClient(config models.TelegramConfig, logger *errors.Logger) (*Client, error) {
	opts := []telego.BotOption{
		telego.WithLogger(newBotLogger(logger, config.Token)),
	}
	if config.APIURL != "" {
		opts = append(opts, telego.WithAPIServer(config.APIURL))
	}

	bot, err := telego.NewBot(config.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	perSec := config.RateLimitPerSec
	if perSec <= 0 {
		perSec = constants.DefaultRateLimitPerSec
	}
	burst := config.RateLimitBurst
	if burst <= 0 {
		burst = constants.DefaultRateLimitBurst
	}
	pollTimeout := config.PollTimeoutSec
	if pollTimeout <= 0 {
		pollTimeout = constants.DefaultPollTimeoutSec
	}

	return &Client{
		bot:         bot,
		limiter:     rate.NewLimiter(rate.Limit(perSec), burst),
		pollTimeout: pollTimeout,
		logger:      logger,
	}, nil
}

// Me returns the bot's own account
func (c *Client) Me(ctx context.Context) (models.User, error) {
	if err := c.wait(ctx); err != nil {
		return models.User{}, err
	}
	me, err := c.bot.GetMe(ctx)
	if err != nil {
		return models.User{}, classify("getMe", err)
	}
	return convertUser(*me), nil
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, replyTo int) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	params := tu.Message(tu.ID(chatID), text)
	if replyTo != 0 {
		params.ReplyParameters = &telego.ReplyParameters{
			MessageID:                replyTo,
			AllowSendingWithoutReply: true,
		}
	}
	_, err := c.bot.SendMessage(ctx, params)
	return c.done("sendMessage", err)
}

func (c *Client) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	err := c.bot.DeleteMessage(ctx, &telego.DeleteMessageParams{
		ChatID:    tu.ID(chatID),
		MessageID: messageID,
	})
	return c.done("deleteMessage", err)
}

func (c *Client) GetChat(ctx context.Context, ref string) (*models.Chat, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	chat, err := c.bot.GetChat(ctx, &telego.GetChatParams{ChatID: chatRef(ref)})
	if err := c.done("getChat", err); err != nil {
		return nil, err
	}
	return convertChatFullInfo(chat), nil
}

func (c *Client) GetChatAdministrators(ctx context.Context, ref string) ([]models.ChatMember, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	admins, err := c.bot.GetChatAdministrators(ctx, &telego.GetChatAdministratorsParams{ChatID: chatRef(ref)})
	if err := c.done("getChatAdministrators", err); err != nil {
		return nil, err
	}

	members := make([]models.ChatMember, 0, len(admins))
	for _, admin := range admins {
		members = append(members, convertMember(admin))
	}
	return members, nil
}

func (c *Client) GetChatMember(ctx context.Context, chatID, userID int64) (*models.ChatMember, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	member, err := c.bot.GetChatMember(ctx, &telego.GetChatMemberParams{
		ChatID: tu.ID(chatID),
		UserID: userID,
	})
	if err := c.done("getChatMember", err); err != nil {
		return nil, err
	}
	converted := convertMember(member)
	return &converted, nil
}

func (c *Client) BanChatMember(ctx context.Context, chatID, userID int64, until time.Time) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	err := c.bot.BanChatMember(ctx, &telego.BanChatMemberParams{
		ChatID:    tu.ID(chatID),
		UserID:    userID,
		UntilDate: until.Unix(),
	})
	return c.done("banChatMember", err)
}

func (c *Client) LeaveChat(ctx context.Context, chatID int64) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	err := c.bot.LeaveChat(ctx, &telego.LeaveChatParams{ChatID: tu.ID(chatID)})
	return c.done("leaveChat", err)
}

func (c *Client) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

// done records the call outcome and classifies any failure
func (c *Client) done(method string, err error) error {
	metrics.IncrementCounter("telegram_api_calls_total", map[string]string{"method": method}, "Bot API calls")
	if err == nil {
		return nil
	}
	classified := classify(method, err)
	metrics.IncrementCounter("telegram_api_errors_total", map[string]string{
		"method": method,
		"code":   string(errors.GetCode(classified)),
	}, "Failed Bot API calls")
	return classified
}

// botLogger routes telego's own logs through logrus with the token removed
type botLogger struct {
	entry    *logrus.Entry
	redactor *strings.Replacer
}

func newBotLogger(logger *errors.Logger, token string) botLogger {
	redactor := strings.NewReplacer()
	if token != "" {
		redactor = strings.NewReplacer(token, "BOT_TOKEN")
	}
	return botLogger{
		entry:    logger.WithField("component", "telego"),
		redactor: redactor,
	}
}

func (l botLogger) Debugf(format string, args ...any) {
	l.entry.Debug(l.redactor.Replace(fmt.Sprintf(format, args...)))
}

func (l botLogger) Errorf(format string, args ...any) {
	l.entry.Error(l.redactor.Replace(fmt.Sprintf(format, args...)))
}
