package alert

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Notifier delivers a degradation alert. Implementations are best-effort:
// Notify must contain its own error handling and never panic, because the
// engine fires it from a goroutine off the execution path.
type Notifier interface {
	Notify(handler string, errMsg string, failureCount int)
}

// Payload is the webhook body. Handler carries the composite tool:handler
// key, the same string used in the persisted health state file.
type Payload struct {
	Tool         string `json:"tool"`
	Error        string `json:"error"`
	FailureCount int    `json:"failureCount"`
	Timestamp    string `json:"timestamp"`
	ServerURL    string `json:"serverUrl"`
}

// WebhookNotifier POSTs the alert payload to a configured webhook URL.
// Delivery failures are logged and never retried.
type WebhookNotifier struct {
	webhookURL string
	serverURL  string
	httpClient *http.Client
}

// NewNotifier returns a webhook notifier, or a silent no-op when no webhook
// URL is configured.
func NewNotifier(webhookURL, serverURL string) Notifier {
	if webhookURL == "" {
		logrus.Info("No alert webhook configured, degradation alerts are disabled")
		return NoopNotifier{}
	}
	return &WebhookNotifier{
		webhookURL: webhookURL,
		serverURL:  serverURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *WebhookNotifier) Notify(handler string, errMsg string, failureCount int) {
	payload := Payload{
		Tool:         handler,
		Error:        errMsg,
		FailureCount: failureCount,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		ServerURL:    n.serverURL,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		logrus.Errorf("Error marshaling alert payload: %v", err)
		return
	}

	resp, err := n.httpClient.Post(n.webhookURL, "application/json", bytes.NewBuffer(body))
	if err != nil {
		logrus.Warnf("Failed to deliver degradation alert for %s: %v", handler, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logrus.Warnf("Alert webhook returned status %d for %s", resp.StatusCode, handler)
		return
	}
	logrus.Infof("Degradation alert delivered for %s (failure count %d)", handler, failureCount)
}

// NoopNotifier discards all alerts.
type NoopNotifier struct{}

func (NoopNotifier) Notify(string, string, int) {}
