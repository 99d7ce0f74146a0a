package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/gidra39/mlflow-promote/config"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type SlackMessage struct {
	Text string `json:"text"`
}

func SendSlackNotification(ctx context.Context, client *http.Client, message string, config config.Config) error {
	if config.SlackWebhookURL == "" {
		return errors.New("slack webhook URL is not configured")
	}

	payload, err := json.Marshal(SlackMessage{Text: message})
	if err != nil {
		return errors.Wrap(err, "failed to marshal slack message")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, config.SlackWebhookURL, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "failed to build Slack request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send Slack notification")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("Slack API returned status code %d", resp.StatusCode)
	}

	log.Debug().Msg("sent Slack notification")
	return nil
}
