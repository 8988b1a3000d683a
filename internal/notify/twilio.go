package notify

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"cementwatch/internal/config"
)

const twilioAPIBase = "https://api.twilio.com/2010-04-01"

// TwilioProvider implements Provider against the Twilio REST API. Voice
// calls read the alert message twice with a short pause so a groggy operator
// hears it at least once.
type TwilioProvider struct {
	logger  *zap.Logger
	cfg     config.TwilioConfig
	client  *http.Client
	baseURL string
}

// NewTwilioProvider creates a Twilio-backed provider.
func NewTwilioProvider(cfg config.TwilioConfig, logger *zap.Logger) *TwilioProvider {
	return &TwilioProvider{
		logger:  logger.Named("twilio"),
		cfg:     cfg,
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: twilioAPIBase,
	}
}

// Call places a voice call that speaks the message, pauses, and repeats it.
// The ring timeout is bounded by twilio.voice_timeout_seconds.
func (p *TwilioProvider) Call(ctx context.Context, to, message string) (string, error) {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", p.cfg.FromNumber)
	form.Set("Twiml", voiceTwiML(message))
	form.Set("Timeout", strconv.Itoa(p.cfg.VoiceTimeoutSeconds))

	return p.post(ctx, "Calls.json", form)
}

// SendSMS sends the message body as a text message.
func (p *TwilioProvider) SendSMS(ctx context.Context, to, message string) (string, error) {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", p.cfg.FromNumber)
	form.Set("Body", message)

	return p.post(ctx, "Messages.json", form)
}

func (p *TwilioProvider) post(ctx context.Context, resource string, form url.Values) (string, error) {
	endpoint := fmt.Sprintf("%s/Accounts/%s/%s", p.baseURL, p.cfg.AccountSID, resource)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.SetBasicAuth(p.cfg.AccountSID, p.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("twilio request failed: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		SID     string `json:"sid"`
		Message string `json:"message"`
		Code    int    `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode twilio response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("twilio error %d (code %d): %s", resp.StatusCode, body.Code, body.Message)
	}
	return body.SID, nil
}

// voiceTwiML builds the spoken-alert document: the message, a two second
// pause, then the message again.
func voiceTwiML(message string) string {
	var escaped strings.Builder
	xml.EscapeText(&escaped, []byte(message))

	var b strings.Builder
	b.WriteString("<Response>")
	b.WriteString(`<Say voice="alice" language="en-IN">`)
	b.WriteString(escaped.String())
	b.WriteString("</Say>")
	b.WriteString(`<Pause length="2"/>`)
	b.WriteString(`<Say voice="alice" language="en-IN">I repeat. `)
	b.WriteString(escaped.String())
	b.WriteString("</Say>")
	b.WriteString("</Response>")
	return b.String()
}
