package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Notifier surfaces restrict/ban actions to operators, out of band from the
// group notice.
type Notifier interface {
	SendSanction(ctx context.Context, evt *MessageEvent, action Action) error
}

type SlackNotifier struct {
	SlackWebhookURL string
}

type SlackWebhookBody struct {
	Text string `json:"text"`
}

func (n *SlackNotifier) SendSanction(ctx context.Context, evt *MessageEvent, action Action) error {
	msg := fmt.Sprintf("⚠️ Link Policy Sanction ⚠️\ngroup `%d` / user `%d` (%s)\naction: `%s` at count %d\n",
		evt.GroupID,
		evt.Sender.UserID,
		evt.Sender.DisplayName,
		action.Kind,
		action.Count,
	)
	return n.sendSlackMsg(ctx, msg)
}

// Sends a simple slack message to a channel via "incoming webhook".
//
// The slack incoming webhook must be already configured in the slack workplace.
func (n *SlackNotifier) sendSlackMsg(ctx context.Context, msg string) error {
	body, err := json.Marshal(SlackWebhookBody{Text: msg})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.SlackWebhookURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")
	client := http.DefaultClient
	resp, err := client.Do(req)
	if err != nil {
		return err
	}

	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	buf.ReadFrom(resp.Body)
	if resp.StatusCode != 200 || buf.String() != "ok" {
		return fmt.Errorf("failed slack webhook POST request. status=%d", resp.StatusCode)
	}
	return nil
}
