package deliveries

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/slack-go/slack"

	"github.com/kingsmanrocky-max/account-intelligence/internal/shared/telemetry"
)

// Destination types.
const (
	DestinationEmail   = "email"
	DestinationChannel = "channel"
)

// Destination names a delivery target: a workspace channel id or a member
// email resolved to a direct message.
type Destination struct {
	Type    string
	Address string
}

// Messenger sends report and podcast content to an external destination and
// returns the vendor message id.
type Messenger interface {
	SendText(ctx context.Context, dest Destination, text string) (string, error)
	SendFile(ctx context.Context, dest Destination, filename, title string, size int64, r io.Reader) (string, error)
}

// SlackMessenger implements Messenger on the Slack Web API.
type SlackMessenger struct {
	client *slack.Client
}

// NewSlackMessenger constructs a Slack messenger.
func NewSlackMessenger(botToken string) (*SlackMessenger, error) {
	if strings.TrimSpace(botToken) == "" {
		return nil, fmt.Errorf("SLACK_BOT_TOKEN is required")
	}
	return &SlackMessenger{client: slack.New(botToken)}, nil
}

func (m *SlackMessenger) SendText(ctx context.Context, dest Destination, text string) (string, error) {
	channelID, err := m.resolve(ctx, dest)
	if err != nil {
		return "", err
	}
	_, timestamp, err := m.client.PostMessageContext(ctx, channelID,
		slack.MsgOptionText(text, false))
	if err != nil {
		return "", classify(err)
	}
	return timestamp, nil
}

func (m *SlackMessenger) SendFile(ctx context.Context, dest Destination, filename, title string, size int64, r io.Reader) (string, error) {
	channelID, err := m.resolve(ctx, dest)
	if err != nil {
		return "", err
	}
	summary, err := m.client.UploadFileV2Context(ctx, slack.UploadFileV2Parameters{
		Channel:  channelID,
		Filename: filename,
		Title:    title,
		FileSize: int(size),
		Reader:   r,
	})
	if err != nil {
		return "", classify(err)
	}
	return summary.ID, nil
}

// resolve maps a destination to a Slack channel id. Email destinations are
// resolved to the member's direct-message channel.
func (m *SlackMessenger) resolve(ctx context.Context, dest Destination) (string, error) {
	address := strings.TrimSpace(dest.Address)
	if address == "" {
		return "", &Error{Kind: KindDestinationNotFound, Message: "empty destination"}
	}
	if dest.Type != DestinationEmail {
		return strings.TrimPrefix(address, "#"), nil
	}

	user, err := m.client.GetUserByEmailContext(ctx, address)
	if err != nil {
		return "", classify(err)
	}
	channel, _, _, err := m.client.OpenConversationContext(ctx, &slack.OpenConversationParameters{
		Users: []string{user.ID},
	})
	if err != nil {
		return "", classify(err)
	}
	return channel.ID, nil
}

var _ Messenger = (*SlackMessenger)(nil)

// LogMessenger is a local stand-in used when no Slack token is configured.
// It drains the payload and logs the send instead of contacting an API.
type LogMessenger struct{}

func (m *LogMessenger) SendText(ctx context.Context, dest Destination, text string) (string, error) {
	telemetry.Info("delivery.local_send", map[string]any{
		"destination":      dest.Address,
		"destination_type": dest.Type,
		"chars":            len(text),
	})
	return dest.Address, nil
}

func (m *LogMessenger) SendFile(ctx context.Context, dest Destination, filename, title string, size int64, r io.Reader) (string, error) {
	n, err := io.Copy(io.Discard, r)
	if err != nil {
		return "", err
	}
	telemetry.Info("delivery.local_send_file", map[string]any{
		"destination":      dest.Address,
		"destination_type": dest.Type,
		"filename":         filename,
		"bytes":            n,
	})
	return dest.Address, nil
}

var _ Messenger = (*LogMessenger)(nil)
