package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	netmail "net/mail"
	"strings"

	"github.com/ReilBleem13/HelloChat/internal/broker"
)

type OTPMessage struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (m *OTPMessage) Validate() error {
	if strings.TrimSpace(m.To) == "" {
		return fmt.Errorf("to is required")
	}
	if _, err := netmail.ParseAddress(m.To); err != nil {
		return fmt.Errorf("invalid to address %q", m.To)
	}
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("subject is required")
	}
	return nil
}

type OTPHandler struct {
	sender Sender
	log    *slog.Logger
}

func NewOTPHandler(sender Sender, log *slog.Logger) *OTPHandler {
	if log == nil {
		log = slog.Default()
	}
	return &OTPHandler{sender: sender, log: log}
}

// Handle sends one queued OTP mail. Bodies that do not decode or validate
// are reported as broker.ErrMalformed.
func (h *OTPHandler) Handle(ctx context.Context, env broker.Envelope) error {
	var msg OTPMessage
	if err := json.Unmarshal(env.Body, &msg); err != nil {
		return fmt.Errorf("%w: %v", broker.ErrMalformed, err)
	}
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", broker.ErrMalformed, err)
	}

	if err := h.sender.Send(ctx, msg.To, msg.Subject, msg.Body); err != nil {
		return err
	}

	h.log.Info("OTP mail sent", "to", msg.To, "retry", env.RetryCount)
	return nil
}
