package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/MachinaAI/machina-core/pkg/resilience"
)

// Sender delivers one plain-text message to the operator channel.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// sendAttempts (one try plus three retries) and the backoff ladder for
// transport failures.
const sendAttempts = 4

var sendBackoff = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// ChatTransport posts messages to the external chat API as
// {"chat_id": ..., "text": ...}. A circuit breaker fronts the POST so a
// dead chat service stops burning the retry budget per message.
type ChatTransport struct {
	url     string
	chatID  string
	client  *http.Client
	breaker *resilience.Breaker
	sleep   func(context.Context, time.Duration) error
}

// NewChatTransport creates a transport for the given endpoint.
func NewChatTransport(url, chatID string) *ChatTransport {
	return &ChatTransport{
		url:     url,
		chatID:  chatID,
		client:  &http.Client{Timeout: 10 * time.Second},
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
		sleep: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		},
	}
}

type chatPayload struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// Send implements Sender with the retry ladder. A 429 honors Retry-After
// when the server provides one.
func (t *ChatTransport) Send(ctx context.Context, text string) error {
	var lastErr error
	for attempt := 0; attempt < sendAttempts; attempt++ {
		if attempt > 0 {
			wait := sendBackoff[attempt-1]
			if ra, ok := retryAfter(lastErr); ok && ra > wait {
				wait = ra
			}
			if err := t.sleep(ctx, wait); err != nil {
				return err
			}
		}
		lastErr = t.breaker.Call(ctx, func(ctx context.Context) error {
			return t.post(ctx, text)
		})
		if lastErr == nil {
			return nil
		}
		if lastErr == resilience.ErrCircuitOpen {
			return lastErr
		}
	}
	return lastErr
}

func (t *ChatTransport) post(ctx context.Context, text string) error {
	body, err := json.Marshal(chatPayload{ChatID: t.chatID, Text: text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: post: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	serr := &statusError{status: resp.StatusCode}
	if resp.StatusCode == http.StatusTooManyRequests {
		if secs, perr := strconv.Atoi(resp.Header.Get("Retry-After")); perr == nil && secs > 0 {
			serr.retryAfter = time.Duration(secs) * time.Second
		}
	}
	return serr
}

type statusError struct {
	status     int
	retryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("notify: chat api status %d", e.status)
}

func retryAfter(err error) (time.Duration, bool) {
	if serr, ok := err.(*statusError); ok && serr.retryAfter > 0 {
		return serr.retryAfter, true
	}
	return 0, false
}
