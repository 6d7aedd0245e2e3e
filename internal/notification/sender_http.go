package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"idecide/internal/patient"
	dErrors "idecide/pkg/domain-errors"
	"idecide/pkg/platform/sentinel"
)

// HTTPSender posts notification requests to the provider endpoint.
type HTTPSender struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPSender builds a provider client. The default timeout is generous
// because letter dispatch providers are slow to acknowledge.
func NewHTTPSender(endpoint, apiKey string) *HTTPSender {
	return &HTTPSender{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

type sendRequest struct {
	Template  string            `json:"template"`
	Channel   string            `json:"channel"`
	Recipient string            `json:"recipient"`
	Fields    map[string]string `json:"fields"`
	Reference string            `json:"reference"`
}

type sendResponse struct {
	CorrelationID string `json:"correlationId"`
}

func (s *HTTPSender) SendCodeNotification(ctx context.Context, info Info) (string, error) {
	channel, recipient := route(info)
	return s.send(ctx, sendRequest{
		Template:  "verification-code",
		Channel:   channel,
		Recipient: recipient,
		Fields: map[string]string{
			"givenName": info.Patient.GivenName,
			"code":      info.Code,
		},
		Reference: uuid.NewString(),
	})
}

func (s *HTTPSender) SendSubscriberUsageNotification(ctx context.Context, info Info) (string, error) {
	channel, recipient := route(info)
	return s.send(ctx, sendRequest{
		Template:  "subscriber-usage",
		Channel:   channel,
		Recipient: recipient,
		Fields: map[string]string{
			"givenName":      info.Patient.GivenName,
			"decisionType":   info.DecisionType,
			"decisionChoice": info.DecisionChoice,
			"consumerName":   info.ConsumerName,
		},
		Reference: uuid.NewString(),
	})
}

func (s *HTTPSender) send(ctx context.Context, req sendRequest) (string, error) {
	if req.Recipient == "" {
		return "", dErrors.New(dErrors.CodeValidation, "patient has no contact details for preferred channel")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal notification: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build notification request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("notification provider unreachable: %w", sentinel.ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("notification provider returned %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}
	if resp.StatusCode >= 400 {
		return "", dErrors.Newf(dErrors.CodeValidation, "notification provider rejected request: %d", resp.StatusCode)
	}

	var sendResp sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&sendResp); err != nil {
		return "", fmt.Errorf("decode notification response: %w", err)
	}
	return sendResp.CorrelationID, nil
}

// route picks the channel and address from the patient's preference.
func route(info Info) (string, string) {
	switch info.Patient.NotificationPreference {
	case patient.PreferenceEmail:
		return "email", info.Patient.Email
	case patient.PreferenceSMS:
		return "sms", info.Patient.Phone
	case patient.PreferenceLetter:
		return "letter", info.Patient.Address
	default:
		if info.Patient.Email != "" {
			return "email", info.Patient.Email
		}
		return "sms", info.Patient.Phone
	}
}
