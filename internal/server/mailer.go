package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ReilBleem13/HelloChat/internal/domain"
	"github.com/ReilBleem13/HelloChat/internal/mail"
)

type Publisher interface {
	Publish(ctx context.Context, v any) error
}

// MailHandler exposes the OTP queue to the user service.
type MailHandler struct {
	publisher Publisher
}

func NewMailHandler(publisher Publisher) *MailHandler {
	return &MailHandler{publisher: publisher}
}

func (h *MailHandler) handleSendOTP(w http.ResponseWriter, r *http.Request) {
	var in mail.OTPMessage
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		handleError(w, domain.ErrInvalidRequest)
		return
	}
	if err := in.Validate(); err != nil {
		handleError(w, domain.ErrInvalidRequest.WithMessage(err.Error()))
		return
	}

	if err := h.publisher.Publish(r.Context(), &in); err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, &StatusResponse{Message: "OTP queued"})
}
