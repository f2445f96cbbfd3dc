// Package whatsapp is the messaging gateway: it delivers digests and
// operational notifications to the configured recipient via Twilio's
// WhatsApp API.
package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Naman6019/News-Agent/internal/logger"
	"github.com/Naman6019/News-Agent/internal/metrics"
	"github.com/Naman6019/News-Agent/internal/retry"
)

// sessionExpiredCode is Twilio's error for a free-form message outside the
// 24-hour customer session window; only a template send is allowed then.
const sessionExpiredCode = 63016

const defaultBaseURL = "https://api.twilio.com"

type Config struct {
	AccountSID string
	AuthToken  string
	FromNumber string // E.164, e.g. +14155238886
	ToNumber   string

	BaseURL       string // overridable for tests
	TemplateSID   string // content template used on session expiry
	CharLimit     int
	RetryAttempts int
	RetryDelay    time.Duration
	Location      *time.Location
}

type Gateway struct {
	cfg        Config
	from, to   string
	httpClient *http.Client

	now func() time.Time // overridable in tests
}

// apiError is a structured Twilio error response.
type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("twilio error %d (http %d): %s", e.Code, e.Status, e.Message)
}

// New validates credentials up front; a gateway with missing configuration
// cannot be constructed, which is what pushes the scheduler into degraded
// mode at startup.
func New(cfg Config) (*Gateway, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.FromNumber == "" || cfg.ToNumber == "" {
		return nil, fmt.Errorf("twilio credentials not configured")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.TemplateSID == "" {
		cfg.TemplateSID = "hello_world"
	}
	if cfg.CharLimit <= 0 {
		cfg.CharLimit = 4096
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Gateway{
		cfg:        cfg,
		from:       "whatsapp:" + cfg.FromNumber,
		to:         "whatsapp:" + cfg.ToNumber,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}, nil
}

// Send delivers one free-form message and returns the provider message SID.
// A session-expired rejection triggers a single template fallback send
// instead of further retries.
func (g *Gateway) Send(ctx context.Context, body string) (string, error) {
	form := url.Values{}
	form.Set("From", g.from)
	form.Set("To", g.to)
	form.Set("Body", body)

	sid, err := g.sendWithRetry(ctx, form)

	if err != nil && isSessionExpired(err) {
		logger.Warn("messaging session expired, sending template fallback")
		tform := url.Values{}
		tform.Set("From", g.from)
		tform.Set("To", g.to)
		tform.Set("ContentSid", g.cfg.TemplateSID)
		return g.sendOnce(ctx, tform)
	}
	return sid, err
}

func (g *Gateway) sendWithRetry(ctx context.Context, form url.Values) (string, error) {
	var sid string
	err := retry.WithRetry(ctx, retry.Config{
		MaxAttempts: g.cfg.RetryAttempts,
		Delay:       g.cfg.RetryDelay,
		Backoff:     true,
		Permanent:   isSessionExpired, // retrying cannot help, caller falls back to template
	}, func() error {
		var sendErr error
		sid, sendErr = g.sendOnce(ctx, form)
		if sendErr != nil {
			logger.Warn("whatsapp send failed", "error", sendErr)
		}
		return sendErr
	})
	if err != nil {
		return "", err
	}
	logger.Info("whatsapp message sent", "sid", sid)
	return sid, nil
}

func isSessionExpired(err error) bool {
	var ae *apiError
	return errors.As(err, &ae) && ae.Code == sessionExpiredCode
}

func (g *Gateway) sendOnce(ctx context.Context, form url.Values) (string, error) {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", g.cfg.BaseURL, g.cfg.AccountSID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(g.cfg.AccountSID, g.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("twilio request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var msg struct {
			SID string `json:"sid"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
			return "", fmt.Errorf("decode twilio response: %w", err)
		}
		return msg.SID, nil
	}

	var ae apiError
	if err := json.NewDecoder(resp.Body).Decode(&ae); err != nil || ae.Message == "" {
		return "", fmt.Errorf("twilio status %d", resp.StatusCode)
	}
	if ae.Status == 0 {
		ae.Status = resp.StatusCode
	}
	return "", &ae
}

// SendDigest wraps the assembled digest with a timestamp header and sends it.
func (g *Gateway) SendDigest(ctx context.Context, digest, label string) error {
	message := fmt.Sprintf("📰 *News Digest - %s*\n\n%s\n\n---\n*Sent by AI News Agent*",
		g.now().In(g.cfg.Location).Format("03:04 PM MST"), digest)

	if len(message) > g.cfg.CharLimit {
		message = cutAtRune(message, g.cfg.CharLimit-3) + "..."
	}

	if _, err := g.Send(ctx, message); err != nil {
		metrics.Global.IncrementDeliveriesFailed()
		return fmt.Errorf("send %s digest: %w", label, err)
	}
	metrics.Global.IncrementDigestsSent()
	return nil
}

// SendDeliveryConfirmation sends a best-effort notice after a successful
// delivery. Failures are the caller's to ignore.
func (g *Gateway) SendDeliveryConfirmation(ctx context.Context, label string, articleCount int) error {
	msg := fmt.Sprintf(`✅ *News Delivery Confirmed*

*Delivery:* %s
*Time:* %s
*Articles:* %d summarized

Your news digest has been delivered successfully!

---
*AI News Agent*`, titleLabel(label), g.now().In(g.cfg.Location).Format("03:04 PM MST"), articleCount)

	_, err := g.Send(ctx, msg)
	return err
}

// SendErrorNotification reports a pipeline failure to the recipient.
func (g *Gateway) SendErrorNotification(ctx context.Context, errorMessage string) error {
	msg := fmt.Sprintf(`⚠️ *AI News Agent Error*

*Time:* %s
*Error:* %s

The news agent will continue to operate. Please check the logs for more details.

---
*Automated Error Notification*`, g.now().In(g.cfg.Location).Format("2006-01-02 03:04 PM MST"), errorMessage)

	_, err := g.Send(ctx, msg)
	return err
}

// cutAtRune truncates s to at most n bytes without splitting a multi-byte
// rune.
func cutAtRune(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func titleLabel(label string) string {
	if label == "" {
		return label
	}
	return strings.ToUpper(label[:1]) + label[1:]
}
