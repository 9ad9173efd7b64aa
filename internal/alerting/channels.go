package alerting

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"tradeinsight/internal/config"
	"tradeinsight/internal/logger"
	"tradeinsight/internal/store"
)

// Channel delivers a fired alert event to an external destination
type Channel interface {
	Send(ctx context.Context, event *store.AlertEvent) error
	GetName() string
	IsEnabled() bool
}

// Manager fans fired alerts out to the registered channels with retries
type Manager struct {
	alertSent     *prometheus.CounterVec
	alertFailed   *prometheus.CounterVec
	alertDuration prometheus.Histogram

	retryCount    int
	retryInterval time.Duration
	timeout       time.Duration

	channels map[string]Channel
	mu       sync.RWMutex

	eventCh chan *store.AlertEvent
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewManager creates an alert delivery manager
func NewManager(cfg *config.AlertingConfig) *Manager {
	m := &Manager{
		retryCount:    cfg.RetryCount,
		retryInterval: cfg.RetryInterval,
		timeout:       cfg.Timeout,
		channels:      make(map[string]Channel),
		eventCh:       make(chan *store.AlertEvent, 100),
		stopCh:        make(chan struct{}),
	}

	m.alertSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alert_sent_total",
		Help: "Total number of alerts delivered per channel",
	}, []string{"channel"})

	m.alertFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alert_failed_total",
		Help: "Total number of alert delivery failures per channel",
	}, []string{"channel"})

	m.alertDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "alert_duration_seconds",
		Help:    "Alert delivery duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	if cfg.Email.Enabled {
		m.RegisterChannel(NewEmailChannel(&cfg.Email))
	}
	if cfg.Slack.Enabled {
		m.RegisterChannel(NewSlackChannel(&cfg.Slack))
	}
	if cfg.Webhook.Enabled {
		m.RegisterChannel(NewWebhookChannel(&cfg.Webhook))
	}

	return m
}

// Start launches the delivery worker
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.worker()
}

// Stop shuts the delivery worker down
func (m *Manager) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

// RegisterChannel registers a delivery channel
func (m *Manager) RegisterChannel(channel Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[channel.GetName()] = channel
}

// Dispatch queues an alert event for delivery
func (m *Manager) Dispatch(ctx context.Context, event *store.AlertEvent) error {
	select {
	case m.eventCh <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("alert queue is full")
	}
}

func (m *Manager) worker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			return
		case event := <-m.eventCh:
			m.deliver(event)
		}
	}
}

func (m *Manager) deliver(event *store.AlertEvent) {
	start := time.Now()

	m.mu.RLock()
	channels := make([]Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		channels = append(channels, ch)
	}
	m.mu.RUnlock()

	for _, channel := range channels {
		if !channel.IsEnabled() {
			continue
		}

		for attempt := 0; attempt <= m.retryCount; attempt++ {
			ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
			err := channel.Send(ctx, event)
			cancel()

			if err == nil {
				m.alertSent.WithLabelValues(channel.GetName()).Inc()
				break
			}

			if attempt < m.retryCount {
				time.Sleep(m.retryInterval)
			} else {
				m.alertFailed.WithLabelValues(channel.GetName()).Inc()
				logger.Error("alert delivery failed",
					"channel", channel.GetName(),
					"alert_id", event.ID.String(),
					"retries", m.retryCount,
					"error", err.Error(),
				)
			}
		}
	}

	m.alertDuration.Observe(time.Since(start).Seconds())
}

// EmailChannel delivers alerts over SMTP
type EmailChannel struct {
	config *config.EmailConfig
}

// NewEmailChannel creates an email alert channel
func NewEmailChannel(cfg *config.EmailConfig) *EmailChannel {
	return &EmailChannel{config: cfg}
}

// Send delivers the alert via SMTP
func (ec *EmailChannel) Send(ctx context.Context, event *store.AlertEvent) error {
	if !ec.config.Enabled {
		return fmt.Errorf("email channel is disabled")
	}

	subject := fmt.Sprintf("[%s] %s", strings.ToUpper(event.Level), event.Title)
	body := fmt.Sprintf(`
Alert Details:
==============

Level: %s
Title: %s
Message: %s
Symbol: %s
Value: %g
Time: %s
`, event.Level, event.Title, event.Message, event.Symbol, event.Value,
		event.CreatedAt.Format(time.RFC3339))

	auth := smtp.PlainAuth("", ec.config.Username, ec.config.Password, ec.config.SMTPHost)
	addr := fmt.Sprintf("%s:%d", ec.config.SMTPHost, ec.config.SMTPPort)

	to := strings.Join(ec.config.To, ",")
	msg := fmt.Sprintf("To: %s\r\nSubject: %s\r\n\r\n%s", to, subject, body)

	return smtp.SendMail(addr, auth, ec.config.From, ec.config.To, []byte(msg))
}

// GetName returns the channel name
func (ec *EmailChannel) GetName() string {
	return "email"
}

// IsEnabled returns whether the channel is enabled
func (ec *EmailChannel) IsEnabled() bool {
	return ec.config.Enabled
}

// SlackChannel delivers alerts to a Slack incoming webhook
type SlackChannel struct {
	config *config.SlackConfig
	client *http.Client
}

// NewSlackChannel creates a Slack alert channel
func NewSlackChannel(cfg *config.SlackConfig) *SlackChannel {
	return &SlackChannel{
		config: cfg,
		client: &http.Client{},
	}
}

// Send posts the alert to the Slack webhook
func (sc *SlackChannel) Send(ctx context.Context, event *store.AlertEvent) error {
	if !sc.config.Enabled {
		return fmt.Errorf("slack channel is disabled")
	}

	jsonData, err := json.Marshal(sc.buildMessage(event))
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sc.config.WebhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := sc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack API returned status %d", resp.StatusCode)
	}
	return nil
}

// GetName returns the channel name
func (sc *SlackChannel) GetName() string {
	return "slack"
}

// IsEnabled returns whether the channel is enabled
func (sc *SlackChannel) IsEnabled() bool {
	return sc.config.Enabled
}

func (sc *SlackChannel) buildMessage(event *store.AlertEvent) map[string]interface{} {
	color := "#36a64f"
	switch event.Level {
	case store.LevelWarning:
		color = "#ff9500"
	case store.LevelCritical:
		color = "#ff0000"
	}

	fields := []map[string]interface{}{
		{"title": "Level", "value": strings.ToUpper(event.Level), "short": true},
	}
	if event.Symbol != "" {
		fields = append(fields, map[string]interface{}{
			"title": "Symbol", "value": event.Symbol, "short": true,
		})
	}
	fields = append(fields, map[string]interface{}{
		"title": "Time", "value": event.CreatedAt.Format(time.RFC3339), "short": false,
	})

	return map[string]interface{}{
		"channel":  sc.config.Channel,
		"username": sc.config.Username,
		"attachments": []map[string]interface{}{
			{
				"color":  color,
				"title":  event.Title,
				"text":   event.Message,
				"fields": fields,
			},
		},
	}
}

// WebhookChannel posts alert events as JSON to a configured URL. If a
// secret is set, the payload is signed with HMAC-SHA256 in the
// X-Alert-Signature header.
type WebhookChannel struct {
	config *config.WebhookConfig
	client *http.Client
}

// NewWebhookChannel creates a generic webhook alert channel
func NewWebhookChannel(cfg *config.WebhookConfig) *WebhookChannel {
	return &WebhookChannel{
		config: cfg,
		client: &http.Client{},
	}
}

// Send posts the alert event to the webhook URL
func (wc *WebhookChannel) Send(ctx context.Context, event *store.AlertEvent) error {
	if !wc.config.Enabled {
		return fmt.Errorf("webhook channel is disabled")
	}

	jsonData, err := json.Marshal(event)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wc.config.URL, bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	if wc.config.Secret != "" {
		mac := hmac.New(sha256.New, []byte(wc.config.Secret))
		mac.Write(jsonData)
		req.Header.Set("X-Alert-Signature", hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := wc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// GetName returns the channel name
func (wc *WebhookChannel) GetName() string {
	return "webhook"
}

// IsEnabled returns whether the channel is enabled
func (wc *WebhookChannel) IsEnabled() bool {
	return wc.config.Enabled
}
