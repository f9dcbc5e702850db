package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/model"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/pkg/logger"
)

// Outcome is the normalized result of one synchronous send call. The client
// never touches the ledger; callers decide what to record.
type Outcome struct {
	OK                bool
	ProviderMessageID string
	// NoEngagement is set when the provider accepted the send but reported no
	// prior-24h context for the recipient (empty contacts array); delivery may
	// be blocked by the messaging-window policy.
	NoEngagement bool
	ErrorCode    string
	ErrorMessage string
	StatusCode   int
	Raw          json.RawMessage
}

// Client issues send requests to the WhatsApp Cloud API endpoint.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a provider client with the given request timeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// NewClientWithHTTP creates a provider client around an existing http.Client.
// Used by tests to point at a stub server.
func NewClientWithHTTP(httpClient *http.Client) *Client {
	return &Client{httpClient: httpClient}
}

// sendResponse is the subset of the Cloud API response the client inspects.
type sendResponse struct {
	Contacts []struct {
		Input string `json:"input"`
		WaID  string `json:"wa_id"`
	} `json:"contacts"`
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Send issues one of the three request shapes (text, media, template) to the
// provider's synchronous send endpoint. The destination must already be
// normalized (digits only, 8-15 digits); this component does not re-validate.
func (c *Client) Send(ctx context.Context, creds model.Credential, to string, input model.SendInput) *Outcome {
	body, err := buildRequestBody(to, input)
	if err != nil {
		return &Outcome{OK: false, ErrorCode: model.ErrCodeInvalidPayload, ErrorMessage: err.Error()}
	}

	url := fmt.Sprintf("%s/%s/messages", creds.APIURL, creds.PhoneNumberID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &Outcome{OK: false, ErrorCode: model.ErrCodeTransportError, ErrorMessage: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.FromContext(ctx).Warn("Provider send transport failure",
			zap.String("owner_id", creds.OwnerID),
			zap.Error(err),
		)
		return &Outcome{OK: false, ErrorCode: model.ErrCodeTransportError, ErrorMessage: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Outcome{OK: false, ErrorCode: model.ErrCodeTransportError, ErrorMessage: err.Error(), StatusCode: resp.StatusCode}
	}

	var parsed sendResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		// Non-JSON body counts as a transport failure regardless of status code
		return &Outcome{
			OK:           false,
			ErrorCode:    model.ErrCodeTransportError,
			ErrorMessage: fmt.Sprintf("non-JSON response (status %d)", resp.StatusCode),
			StatusCode:   resp.StatusCode,
			Raw:          raw,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		outcome := &Outcome{OK: false, StatusCode: resp.StatusCode, Raw: raw}
		if parsed.Error != nil {
			outcome.ErrorCode = strconv.Itoa(parsed.Error.Code)
			outcome.ErrorMessage = parsed.Error.Message
		} else {
			outcome.ErrorCode = strconv.Itoa(resp.StatusCode)
			outcome.ErrorMessage = fmt.Sprintf("provider rejected the request (status %d)", resp.StatusCode)
		}
		return outcome
	}

	// 2xx without a message id: the provider accepted the call but returned no
	// way to track it. Treated as a failure for ledger purposes.
	if len(parsed.Messages) == 0 || parsed.Messages[0].ID == "" {
		return &Outcome{
			OK:           false,
			ErrorCode:    model.ErrCodeNoMessageID,
			ErrorMessage: "provider response did not include a message id",
			StatusCode:   resp.StatusCode,
			Raw:          raw,
		}
	}

	return &Outcome{
		OK:                true,
		ProviderMessageID: parsed.Messages[0].ID,
		NoEngagement:      len(parsed.Contacts) == 0,
		StatusCode:        resp.StatusCode,
		Raw:               raw,
	}
}

// buildRequestBody selects the Cloud API request shape by message type.
func buildRequestBody(to string, input model.SendInput) ([]byte, error) {
	body := map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
	}

	switch input.Type {
	case model.TypeText:
		body["type"] = "text"
		body["text"] = map[string]interface{}{
			"preview_url": false,
			"body":        input.Message,
		}
	case model.TypeImage, model.TypeVideo, model.TypeAudio, model.TypeDocument:
		media := map[string]interface{}{"link": input.MediaURL}
		if input.Caption != "" && input.Type != model.TypeAudio {
			media["caption"] = input.Caption
		}
		body["type"] = string(input.Type)
		body[string(input.Type)] = media
	case model.TypeTemplate:
		lang := input.LanguageCode
		if lang == "" {
			lang = "en_US"
		}
		template := map[string]interface{}{
			"name":     input.TemplateName,
			"language": map[string]interface{}{"code": lang},
		}
		if len(input.TemplateParams) > 0 {
			params := make([]map[string]interface{}, 0, len(input.TemplateParams))
			for _, p := range input.TemplateParams {
				params = append(params, map[string]interface{}{"type": "text", "text": p})
			}
			template["components"] = []map[string]interface{}{
				{"type": "body", "parameters": params},
			}
		}
		body["type"] = "template"
		body["template"] = template
	default:
		return nil, fmt.Errorf("unsupported outbound message type %q", input.Type)
	}

	return json.Marshal(body)
}
