// Package notify wraps the Twilio API for the sales-channel completion notice.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Opts holds configuration options for the Twilio notifier.
type Opts struct {
	AccountSID string
	AuthToken  string
	From       string // sender in "whatsapp:+NN..." format
	SalesTo    string // sales channel recipient in the same format
}

// Option defines a configuration option for the Twilio notifier.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFrom sets the sending number.
func WithFrom(from string) Option {
	return func(o *Opts) { o.From = from }
}

// WithSalesTo sets the sales channel recipient.
func WithSalesTo(to string) Option {
	return func(o *Opts) { o.SalesTo = to }
}

// TwilioNotifier sends completion notices over Twilio WhatsApp.
type TwilioNotifier struct {
	client  *twilio.RestClient
	from    string
	salesTo string
}

// NewTwilioNotifier creates a Twilio-backed notifier. Options missing at call
// time fall back to environment variables.
func NewTwilioNotifier(opts ...Option) (*TwilioNotifier, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.From == "" {
		cfg.From = os.Getenv("TWILIO_FROM_NUMBER")
	}
	if cfg.SalesTo == "" {
		cfg.SalesTo = os.Getenv("SALES_NOTIFY_NUMBER")
	}
	slog.Debug("Twilio notifier config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"From_set", cfg.From != "",
		"SalesTo_set", cfg.SalesTo != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.From == "" || cfg.SalesTo == "" {
		return nil, fmt.Errorf("from and sales numbers must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})

	return &TwilioNotifier{client: client, from: cfg.From, salesTo: cfg.SalesTo}, nil
}

// SendCompletionNotice sends the sales-channel message for a completed lead.
func (n *TwilioNotifier) SendCompletionNotice(ctx context.Context, recordID string) (bool, error) {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(n.salesTo)
	params.SetFrom(n.from)
	params.SetBody(fmt.Sprintf("Novo lead concluído: %s", recordID))

	_, err := n.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("TwilioNotifier.SendCompletionNotice failed", "recordID", recordID, "error", err)
		return false, fmt.Errorf("failed to send completion notice for %s: %w", recordID, err)
	}

	slog.Debug("TwilioNotifier.SendCompletionNotice sent", "recordID", recordID)
	return true, nil
}
