package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/model"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/observer"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/pkg/logger"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/pkg/utils"
)

// handleSend runs the outbound send pipeline for the context owner.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var input model.SendInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		utils.WriteJSONResponse(w, http.StatusBadRequest, model.SendResult{
			Success:   false,
			ErrorCode: model.ErrCodeInvalidPayload,
			Error:     "request body is not valid JSON",
		})
		return
	}

	result, err := s.service.SendMessage(r.Context(), input)
	if err != nil {
		logger.FromContext(r.Context()).Error("Send pipeline failed", zap.Error(err))
		utils.WriteJSONResponse(w, http.StatusInternalServerError, map[string]string{
			"error": "internal error",
		})
		return
	}

	utils.WriteJSONResponse(w, sendStatusCode(result), result)
}

// sendStatusCode maps a pipeline result onto an HTTP status. Request-level
// rejections are the caller's fault; provider-level failures are upstream's.
func sendStatusCode(result *model.SendResult) int {
	if result.Success {
		return http.StatusOK
	}
	switch result.ErrorCode {
	case model.ErrCodeInvalidPayload, model.ErrCodeInvalidPhoneFormat:
		return http.StatusBadRequest
	case model.ErrCodeMissingCredentials:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

// handleConversation lists one conversation's messages in creation order.
func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	phone := r.PathValue("phone")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	messages, err := s.service.GetConversation(r.Context(), phone, limit, offset)
	if err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			utils.WriteJSONResponse(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		logger.FromContext(r.Context()).Error("Conversation lookup failed", zap.Error(err))
		utils.WriteJSONResponse(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	utils.WriteJSONResponse(w, http.StatusOK, map[string]interface{}{
		"messages": messages,
		"count":    len(messages),
	})
}

// handleSync triggers one reconciliation sweep across all owners.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	input := model.SweepInput{}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			utils.WriteJSONResponse(w, http.StatusBadRequest, map[string]string{
				"error": "request body is not valid JSON",
			})
			return
		}
	}

	reports, err := s.service.SweepPending(r.Context(), input)
	if err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			utils.WriteJSONResponse(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		logger.FromContext(r.Context()).Error("Reconciliation sweep failed", zap.Error(err))
		utils.WriteJSONResponse(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	utils.WriteJSONResponse(w, http.StatusOK, map[string]interface{}{
		"reports": reports,
	})
}

// handleWebhookVerify answers the provider's subscription handshake.
func (s *Server) handleWebhookVerify(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	mode := query.Get("hub.mode")
	token := query.Get("hub.verify_token")
	challenge := query.Get("hub.challenge")

	echo, ok := s.service.VerifyWebhook(r.Context(), mode, token, challenge)
	if !ok {
		logger.FromContext(r.Context()).Warn("Webhook verification rejected", zap.String("mode", mode))
		w.WriteHeader(http.StatusForbidden)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(echo))
}

// handleWebhookReceive ingests one provider callback. The provider retries
// aggressively on anything but 200, so this endpoint always acks; all failure
// handling lives in the ingest report and logs.
func (s *Server) handleWebhookReceive(w http.ResponseWriter, r *http.Request) {
	var payload model.WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		logger.FromContext(r.Context()).Warn("Webhook payload is not valid JSON", zap.Error(err))
		observer.IncWebhookCallback("unparseable")
		s.ackWebhook(w)
		return
	}

	observer.IncWebhookCallback("parsed")
	s.service.ProcessWebhook(r.Context(), payload)
	s.ackWebhook(w)
}

func (s *Server) ackWebhook(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("EVENT_RECEIVED"))
}
