package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"blurchain/internal/config"
)

const userAgent = "blurchain/0.1.0"

// Event identifies the pipeline milestone being announced.
type Event string

const (
	// EventBlurStatus is published while a blur pass is running.
	EventBlurStatus Event = "blur_status"
	// EventPipelineCompleted is published when the save stage produced a file.
	EventPipelineCompleted Event = "pipeline_completed"
	// EventError is published when a stage fails.
	EventError Event = "error"
	// EventTest is used by the test-notify command.
	EventTest Event = "test"
)

// Payload carries event-specific values.
type Payload map[string]any

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventBlurStatus:        cfg.Notifications.Status,
			EventPipelineCompleted: cfg.Notifications.Completion,
			EventError:             cfg.Notifications.Errors,
			EventTest:              true,
		},
	}
}

// NewNoop returns a service that drops every event.
func NewNoop() Service { return noopService{} }

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if n == nil || n.client == nil {
		return nil
	}
	if !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventBlurStatus:
		body := "Blurring image"
		if image := payloadString(payload, "image"); image != "" {
			body = fmt.Sprintf("Blurring image: %s", image)
		}
		return message{
			title:    "blurchain - Working",
			body:     body,
			tags:     []string{"blurchain", "blur", "status"},
			priority: "low",
		}, true
	case EventPipelineCompleted:
		body := "Blurred image saved"
		if output := payloadString(payload, "output"); output != "" {
			body = fmt.Sprintf("Blurred image saved: %s", output)
		}
		return message{
			title: "blurchain - Complete",
			body:  body,
			tags:  []string{"blurchain", "pipeline", "completed"},
		}, true
	case EventError:
		var builder strings.Builder
		builder.WriteString("Error")
		if label := payloadString(payload, "context"); label != "" {
			builder.WriteString(" in ")
			builder.WriteString(label)
		}
		builder.WriteString(": ")
		if errText := payloadString(payload, "error"); errText != "" {
			builder.WriteString(errText)
		} else {
			builder.WriteString("unknown")
		}
		return message{
			title:    "blurchain - Error",
			body:     builder.String(),
			tags:     []string{"blurchain", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "blurchain - Test",
			body:     "Notification system test",
			tags:     []string{"blurchain", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func payloadString(payload Payload, key string) string {
	if payload == nil {
		return ""
	}
	switch v := payload[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
