package security

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"idecide/pkg/platform/sentinel"
)

// CaptchaVerifier validates a client-solved CAPTCHA token.
type CaptchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
}

const recaptchaVerifyURL = "https://www.google.com/recaptcha/api/siteverify"

// RecaptchaVerifier calls the reCAPTCHA siteverify endpoint and applies a
// confidence threshold: a syntactically valid token with a low score is still
// rejected.
type RecaptchaVerifier struct {
	secret    string
	threshold float64
	client    *http.Client
	verifyURL string
}

func NewRecaptchaVerifier(secret string, threshold float64) *RecaptchaVerifier {
	return &RecaptchaVerifier{
		secret:    secret,
		threshold: threshold,
		client:    &http.Client{Timeout: 10 * time.Second},
		verifyURL: recaptchaVerifyURL,
	}
}

type recaptchaResponse struct {
	Success bool    `json:"success"`
	Score   float64 `json:"score"`
}

func (v *RecaptchaVerifier) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	form := url.Values{
		"secret":   {v.secret},
		"response": {token},
		"remoteip": {remoteIP},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("build captcha request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("captcha provider unreachable: %w", sentinel.ErrUnavailable)
	}
	defer resp.Body.Close()

	var parsed recaptchaResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return false, fmt.Errorf("decode captcha response: %w", err)
	}
	return parsed.Success && parsed.Score >= v.threshold, nil
}

// StaticVerifier accepts or rejects every token; tests and environments
// without a CAPTCHA secret use it.
type StaticVerifier struct {
	Allow bool
}

func (v StaticVerifier) Verify(context.Context, string, string) (bool, error) {
	return v.Allow, nil
}
