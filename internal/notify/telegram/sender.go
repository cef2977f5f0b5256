// Package telegram implements a Sender that posts notifications to a chat
// through the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrapewatch/internal/target"
)

const (
	defaultAPIURL  = "https://api.telegram.org"
	defaultTimeout = 30 * time.Second
)

// Config controls the bot client.
type Config struct {
	Token  string
	ChatID int64
	// APIURL is the Bot API base URL (default https://api.telegram.org).
	APIURL string
	// HTTPClient overrides the client used for requests.
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Sender delivers "<uri>: <message>" to a single chat.
type Sender struct {
	bot    *bot.Bot
	token  string
	chatID int64
	logger *zap.Logger
}

// New validates cfg and returns a Sender. No request is made until Send.
func New(cfg Config) (*Sender, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram token is required")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat id is required")
	}
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	b, err := bot.New(cfg.Token,
		bot.WithSkipGetMe(),
		bot.WithServerURL(apiURL),
		bot.WithHTTPClient(client.Timeout, client),
	)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", redact(err, cfg.Token))
	}
	return &Sender{bot: b, token: cfg.Token, chatID: cfg.ChatID, logger: logger}, nil
}

// Send posts the notification. The address is logged but not used for routing.
func (s *Sender) Send(ctx context.Context, address string, t target.Target, message string) error {
	s.logger.Info("sending notification",
		zap.String("address", address),
		zap.String("uri", t.URI),
		zap.String("message", message),
	)
	_, err := s.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: s.chatID,
		Text:   fmt.Sprintf("%s: %s", t.URI, message),
	})
	if err != nil {
		return fmt.Errorf("send telegram message: %w", redact(err, s.token))
	}
	return nil
}

// redactedError hides the bot token, which the client embeds in request URLs.
type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }

func (e *redactedError) Unwrap() error { return e.err }

func redact(err error, token string) error {
	if err == nil || token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), token, "<redacted>"), err: err}
}
