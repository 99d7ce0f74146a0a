package messaging

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gidra39/mlflow-promote/config"
	"github.com/gidra39/mlflow-promote/slack"
	"github.com/gidra39/mlflow-promote/telegram"

	"github.com/pkg/errors"
)

const (
	ChannelNone     = "NONE"
	ChannelTelegram = "TELEGRAM"
	ChannelSlack    = "SLACK"
	ChannelBoth     = "BOTH"
)

const sendTimeout = 10 * time.Second

// Service fans a message out to the configured channels.
type Service struct {
	config config.Config
	client *http.Client
}

func NewService(config config.Config, client *http.Client) *Service {
	if client == nil {
		client = &http.Client{Timeout: sendTimeout}
	}
	return &Service{config: config, client: client}
}

func (s *Service) channels() string {
	channels := strings.ToUpper(strings.TrimSpace(s.config.MessageChannels))
	if channels == "" {
		return ChannelNone
	}
	return channels
}

func (s *Service) Enabled() bool {
	return s.channels() != ChannelNone
}

// Notify sends message to every configured channel. With BOTH it only
// fails when neither channel delivered.
func (s *Service) Notify(ctx context.Context, message string) error {
	channels := s.channels()

	var telegramErr, slackErr error

	if channels == ChannelTelegram || channels == ChannelBoth {
		telegramErr = telegram.SendTelegramNotification(ctx, s.client, message, s.config)
	}

	if channels == ChannelSlack || channels == ChannelBoth {
		slackErr = slack.SendSlackNotification(ctx, s.client, message, s.config)
	}

	switch channels {
	case ChannelBoth:
		if telegramErr != nil && slackErr != nil {
			return errors.Wrapf(telegramErr, "all channels failed (slack: %v)", slackErr)
		}
		return nil
	case ChannelTelegram:
		return telegramErr
	case ChannelSlack:
		return slackErr
	case ChannelNone:
		return nil
	}

	return errors.Errorf("unknown message channel %q", channels)
}
