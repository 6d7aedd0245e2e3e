package patient

import (
	"fmt"
	"strings"
	"time"

	id "idecide/pkg/domain"
	"idecide/pkg/platform/sentinel"
)

// NotificationPreference selects the channel for verification-code delivery.
type NotificationPreference string

const (
	PreferenceEmail  NotificationPreference = "email"
	PreferenceSMS    NotificationPreference = "sms"
	PreferenceLetter NotificationPreference = "letter"
	PreferenceNone   NotificationPreference = ""
)

func (p NotificationPreference) Valid() bool {
	switch p {
	case PreferenceEmail, PreferenceSMS, PreferenceLetter, PreferenceNone:
		return true
	}
	return false
}

// CodeState is the verification-code lifecycle state derived from the
// patient's durable code fields. No separate session store exists: these
// fields are the whole state machine.
type CodeState string

const (
	StateNoCode           CodeState = "no_code"
	StateCodeActive       CodeState = "code_active"
	StateCodeMatched      CodeState = "code_matched"
	StateCodeExpired      CodeState = "code_expired"
	StateRetriesExhausted CodeState = "retries_exhausted"
)

// Patient is the identity/contact record. The validation-code fields are
// owned exclusively by the verification lifecycle; everything else is
// mutated only through the admin CRUD path.
type Patient struct {
	ID          id.PatientID
	NHSNumber   string
	Title       string
	GivenName   string
	Surname     string
	Gender      string
	DateOfBirth time.Time
	Email       string
	Phone       string
	Address     string
	PostCode    string

	NotificationPreference NotificationPreference

	ValidationCode          string
	ValidationCodeExpiresOn *time.Time
	ValidationCodeMatchedOn *time.Time
	RetryCount              int

	CreatedBy   id.UserID
	CreatedDate time.Time
	UpdatedBy   id.UserID
	UpdatedDate time.Time

	// Version is the optimistic-concurrency token checked by stores on
	// update. Racing writers lose with sentinel.ErrLocked.
	Version int
}

// State derives the lifecycle state of the current code at the given time.
func (p *Patient) State(now time.Time, maxRetries int) CodeState {
	if p.ValidationCode == "" {
		return StateNoCode
	}
	if p.ValidationCodeMatchedOn != nil {
		return StateCodeMatched
	}
	if p.ValidationCodeExpiresOn == nil || !now.Before(*p.ValidationCodeExpiresOn) {
		return StateCodeExpired
	}
	if p.RetryCount >= maxRetries {
		return StateRetriesExhausted
	}
	return StateCodeActive
}

// HasActiveCode reports whether an unexpired, unmatched code under the retry
// limit is outstanding. At most one such code exists at a time.
func (p *Patient) HasActiveCode(now time.Time, maxRetries int) bool {
	return p.State(now, maxRetries) == StateCodeActive
}

// BeginCode installs a freshly generated code: expiry at now+ttl, retry count
// reset, matched-on cleared. Callers must have checked HasActiveCode first
// unless the citizen explicitly requested a new code.
func (p *Patient) BeginCode(code string, now time.Time, ttl time.Duration) {
	expires := now.Add(ttl)
	p.ValidationCode = code
	p.ValidationCodeExpiresOn = &expires
	p.ValidationCodeMatchedOn = nil
	p.RetryCount = 0
}

// SubmitCode applies one submission attempt against the stored code and
// returns the sentinel describing the transition:
//
//   - ErrInvalidState when no code has been issued
//   - ErrAlreadyUsed when the code was already matched; a matched code is
//     consumed and never matches again
//   - ErrExpired when now is past the expiry
//   - ErrRetriesExhausted when the failed-attempt budget was already spent;
//     correctness of the submission no longer matters
//   - ErrCodeMismatch on a wrong code, after incrementing RetryCount
//
// On success ValidationCodeMatchedOn is set to now and never cleared.
// Matching is exact and case-sensitive. Every outcome that mutates the
// record (mismatch, match) must be persisted by the caller.
func (p *Patient) SubmitCode(submitted string, now time.Time, maxRetries int) error {
	switch p.State(now, maxRetries) {
	case StateNoCode:
		return fmt.Errorf("no verification code issued: %w", sentinel.ErrInvalidState)
	case StateCodeMatched:
		return fmt.Errorf("verification code already matched: %w", sentinel.ErrAlreadyUsed)
	case StateCodeExpired:
		return fmt.Errorf("verification code expired: %w", sentinel.ErrExpired)
	case StateRetriesExhausted:
		return fmt.Errorf("verification attempts exhausted: %w", sentinel.ErrRetriesExhausted)
	}
	if submitted != p.ValidationCode {
		p.RetryCount++
		return fmt.Errorf("verification code does not match: %w", sentinel.ErrCodeMismatch)
	}
	matched := now
	p.ValidationCodeMatchedOn = &matched
	return nil
}

// Redact returns a copy safe for display to unauthenticated or partially
// verified contexts. PII fields are masked keeping leading characters; ids,
// dates, retry count, and code state fields pass through unchanged.
func (p Patient) Redact() Patient {
	out := p
	out.GivenName = maskWords(p.GivenName)
	out.Surname = maskWords(p.Surname)
	out.Address = maskWords(p.Address)
	out.PostCode = maskWords(p.PostCode)
	out.Email = maskEmail(p.Email)
	out.Phone = maskPhone(p.Phone)
	out.ValidationCode = ""
	return out
}

// maskWords keeps the first character of each word: "Test Person" -> "T*** P*****".
func maskWords(s string) string {
	if s == "" {
		return ""
	}
	words := strings.Fields(s)
	for i, w := range words {
		runes := []rune(w)
		masked := make([]rune, len(runes))
		masked[0] = runes[0]
		for j := 1; j < len(runes); j++ {
			masked[j] = '*'
		}
		words[i] = string(masked)
	}
	return strings.Join(words, " ")
}

// maskEmail masks the local part, keeping its first character and the domain.
func maskEmail(s string) string {
	at := strings.IndexByte(s, '@')
	if at <= 0 {
		return maskWords(s)
	}
	return maskWords(s[:at]) + s[at:]
}

// maskPhone keeps the last three digits.
func maskPhone(s string) string {
	if len(s) <= 3 {
		return s
	}
	return strings.Repeat("*", len(s)-3) + s[len(s)-3:]
}
