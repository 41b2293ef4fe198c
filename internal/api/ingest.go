package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/kalambet/basedpeople/internal/ingest"
	"github.com/kalambet/basedpeople/internal/webhook"
)

const maxWebhookBodySize = 10 << 20 // 10MB

// handleWebhook verifies a task API delivery and hands it to the ingestion
// coordinator. Replies are short plain-text bodies.
func handleWebhook(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
		defer r.Body.Close()

		body, err := io.ReadAll(r.Body)
		if err != nil {
			plainText(w, http.StatusBadRequest, "Unreadable body")
			return
		}

		delivery, err := deps.Verifier.Check(r.Header, body)
		switch {
		case errors.Is(err, webhook.ErrMissingHeaders):
			plainText(w, http.StatusBadRequest, "Missing webhook headers")
			return
		case errors.Is(err, webhook.ErrInvalidSignature):
			slog.Warn("rejected webhook with invalid signature", "webhook_id", delivery.ID)
			plainText(w, http.StatusUnauthorized, "Invalid signature")
			return
		case err != nil:
			plainText(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		res, err := deps.Events.HandlePayload(r.Context(), body)
		switch {
		case errors.Is(err, ingest.ErrMalformedEvent):
			plainText(w, http.StatusBadRequest, "Malformed event")
			return
		case errors.Is(err, ingest.ErrMissingMetadata):
			plainText(w, http.StatusBadRequest, "Missing slug or name in metadata")
			return
		case err != nil:
			slog.Error("webhook processing failed", "webhook_id", delivery.ID, "error", err)
			plainText(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		slog.Info("webhook processed",
			"webhook_id", delivery.ID,
			"outcome", res.Outcome,
			"slug", res.Slug,
			"run_id", res.RunID,
		)
		plainText(w, http.StatusOK, "Webhook processed")
	}
}

func plainText(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	io.WriteString(w, msg)
}
