package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"platen/internal/config"
)

const userAgent = "Platen/0.1.0"

// Service defines the notification surface exposed to workflow components.
type Service interface {
	NotifySheetQueued(ctx context.Context, sourcePath string) error
	NotifyBatchStarted(ctx context.Context, count int) error
	NotifyBatchCompleted(ctx context.Context, completed, review, errored int, duration time.Duration) error
	NotifySheetCompleted(ctx context.Context, sourcePath string, confidence float64) error
	NotifyManualReview(ctx context.Context, sourcePath string, reasons []string) error
	NotifyError(ctx context.Context, err error, contextLabel string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:    topic,
		client:      &http.Client{Timeout: timeout},
		batchEvents: cfg.Notifications.Batch,
		review:      cfg.Notifications.Review,
		errors:      cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint    string
	client      *http.Client
	batchEvents bool
	review      bool
	errors      bool
}

func (n *ntfyService) NotifySheetQueued(ctx context.Context, sourcePath string) error {
	if !n.batchEvents {
		return nil
	}
	data := payload{
		title:   "Platen - Sheet Queued",
		message: fmt.Sprintf("Queued for processing: %s", strings.TrimSpace(sourcePath)),
		tags:    []string{"platen", "queue", "added"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyBatchStarted(ctx context.Context, count int) error {
	if !n.batchEvents {
		return nil
	}
	data := payload{
		title:   "Platen - Batch Started",
		message: fmt.Sprintf("Started processing batch with %d sheets", count),
		tags:    []string{"platen", "batch", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyBatchCompleted(ctx context.Context, completed, review, errored int, duration time.Duration) error {
	if !n.batchEvents {
		return nil
	}
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	durationText := duration.String()
	if duration == 0 {
		durationText = "0s"
	}

	var title, message string
	if review == 0 && errored == 0 {
		title = "Platen - Batch Complete"
		message = fmt.Sprintf("Batch complete: %d sheets graded in %s", completed, durationText)
	} else {
		title = "Platen - Batch Complete (attention needed)"
		message = fmt.Sprintf("Batch complete: %d graded, %d for review, %d failed in %s",
			completed, review, errored, durationText)
	}

	data := payload{
		title:   title,
		message: message,
		tags:    []string{"platen", "batch", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifySheetCompleted(ctx context.Context, sourcePath string, confidence float64) error {
	if !n.batchEvents {
		return nil
	}
	data := payload{
		title:   "Platen - Sheet Graded",
		message: fmt.Sprintf("Graded: %s (confidence %.2f)", strings.TrimSpace(sourcePath), confidence),
		tags:    []string{"platen", "sheet", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyManualReview(ctx context.Context, sourcePath string, reasons []string) error {
	if !n.review {
		return nil
	}
	message := fmt.Sprintf("Manual review required: %s", strings.TrimSpace(sourcePath))
	if len(reasons) > 0 {
		message = fmt.Sprintf("%s\nReasons: %s", message, strings.Join(reasons, "; "))
	}
	data := payload{
		title:    "Platen - Manual Review",
		message:  message,
		tags:     []string{"platen", "review", "needed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Platen - Error",
		message:  builder.String(),
		tags:     []string{"platen", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Platen - Test",
		message:  "Notification system test",
		tags:     []string{"platen", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
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
	if data.priority != "" {
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

func (noopService) NotifySheetQueued(context.Context, string) error                         { return nil }
func (noopService) NotifyBatchStarted(context.Context, int) error                           { return nil }
func (noopService) NotifyBatchCompleted(context.Context, int, int, int, time.Duration) error { return nil }
func (noopService) NotifySheetCompleted(context.Context, string, float64) error             { return nil }
func (noopService) NotifyManualReview(context.Context, string, []string) error              { return nil }
func (noopService) NotifyError(context.Context, error, string) error                        { return nil }
func (noopService) TestNotification(context.Context) error                                  { return nil }
