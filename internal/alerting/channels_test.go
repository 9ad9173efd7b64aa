package alerting

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeinsight/internal/config"
	"tradeinsight/internal/store"
)

func testEvent() *store.AlertEvent {
	return &store.AlertEvent{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Level:     store.LevelWarning,
		Title:     "EURUSD above 1.10000",
		Message:   "price crossed threshold",
		Symbol:    "EURUSD",
		Value:     1.1012,
		CreatedAt: time.Now().UTC(),
	}
}

func TestWebhookChannelSignsPayload(t *testing.T) {
	var received []byte
	var signature string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received, _ = io.ReadAll(r.Body)
		signature = r.Header.Get("X-Alert-Signature")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	channel := NewWebhookChannel(&config.WebhookConfig{
		Enabled: true,
		URL:     server.URL,
		Secret:  "topsecret",
	})

	event := testEvent()
	require.NoError(t, channel.Send(context.Background(), event))

	mac := hmac.New(sha256.New, []byte("topsecret"))
	mac.Write(received)
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), signature)

	var decoded store.AlertEvent
	require.NoError(t, json.Unmarshal(received, &decoded))
	assert.Equal(t, event.Title, decoded.Title)
}

func TestWebhookChannelErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	channel := NewWebhookChannel(&config.WebhookConfig{Enabled: true, URL: server.URL})
	assert.Error(t, channel.Send(context.Background(), testEvent()))
}

func TestSlackChannelPayload(t *testing.T) {
	var payload map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	channel := NewSlackChannel(&config.SlackConfig{
		Enabled:    true,
		WebhookURL: server.URL,
		Channel:    "#alerts",
		Username:   "tradeinsight",
	})
	require.NoError(t, channel.Send(context.Background(), testEvent()))

	assert.Equal(t, "#alerts", payload["channel"])
	attachments, ok := payload["attachments"].([]interface{})
	require.True(t, ok)
	require.Len(t, attachments, 1)

	attachment := attachments[0].(map[string]interface{})
	assert.Equal(t, "#ff9500", attachment["color"])
	assert.Equal(t, "EURUSD above 1.10000", attachment["title"])
}

type recordingChannel struct {
	name     string
	failures int

	mu    sync.Mutex
	sends int
}

func (rc *recordingChannel) Send(ctx context.Context, event *store.AlertEvent) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.sends++
	if rc.sends <= rc.failures {
		return fmt.Errorf("send failed")
	}
	return nil
}

func (rc *recordingChannel) GetName() string { return rc.name }
func (rc *recordingChannel) IsEnabled() bool { return true }

func (rc *recordingChannel) sendCount() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.sends
}

func TestManagerDispatchFanOut(t *testing.T) {
	manager := NewManager(&config.AlertingConfig{
		RetryCount:    2,
		RetryInterval: time.Millisecond,
		Timeout:       time.Second,
	})

	first := &recordingChannel{name: "first"}
	second := &recordingChannel{name: "second", failures: 1} // succeeds on retry
	manager.RegisterChannel(first)
	manager.RegisterChannel(second)

	manager.Start()
	defer manager.Stop()

	require.NoError(t, manager.Dispatch(context.Background(), testEvent()))

	assert.Eventually(t, func() bool {
		return first.sendCount() == 1 && second.sendCount() == 2
	}, time.Second, 10*time.Millisecond)
}
