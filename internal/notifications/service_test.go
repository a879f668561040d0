package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"platen/internal/config"
	"platen/internal/notifications"
)

type recordedRequest struct {
	body     string
	title    string
	tags     string
	priority string
}

func newRecordingService(t *testing.T, status int) (notifications.Service, *[]recordedRequest) {
	t.Helper()
	var mu sync.Mutex
	requests := &[]recordedRequest{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		*requests = append(*requests, recordedRequest{
			body:     string(body),
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
		})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Batch = true
	cfg.Notifications.Review = true
	cfg.Notifications.Errors = true
	return notifications.NewService(&cfg), requests
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyBatchStarted(context.Background(), 4); err != nil {
		t.Fatalf("noop notifier returned %v", err)
	}
	if err := svc.TestNotification(context.Background()); err != nil {
		t.Fatalf("noop test notification returned %v", err)
	}
}

func TestNotifyBatchCompletedFormatsMessage(t *testing.T) {
	svc, requests := newRecordingService(t, http.StatusOK)

	if err := svc.NotifyBatchCompleted(context.Background(), 8, 0, 0, 90*time.Second); err != nil {
		t.Fatalf("NotifyBatchCompleted: %v", err)
	}
	if err := svc.NotifyBatchCompleted(context.Background(), 5, 2, 1, 30*time.Second); err != nil {
		t.Fatalf("NotifyBatchCompleted: %v", err)
	}

	got := *requests
	if len(got) != 2 {
		t.Fatalf("requests = %d", len(got))
	}
	if got[0].title != "Platen - Batch Complete" {
		t.Fatalf("title = %q", got[0].title)
	}
	if got[0].body != "Batch complete: 8 sheets graded in 1m30s" {
		t.Fatalf("body = %q", got[0].body)
	}
	if got[1].title != "Platen - Batch Complete (attention needed)" {
		t.Fatalf("title = %q", got[1].title)
	}
	if got[1].body != "Batch complete: 5 graded, 2 for review, 1 failed in 30s" {
		t.Fatalf("body = %q", got[1].body)
	}
	if got[0].tags != "platen,batch,completed" {
		t.Fatalf("tags = %q", got[0].tags)
	}
}

func TestNotifyManualReviewCarriesReasonsAndPriority(t *testing.T) {
	svc, requests := newRecordingService(t, http.StatusOK)

	err := svc.NotifyManualReview(context.Background(), "/scans/essay.png",
		[]string{"low confidence", "segmentation flagged"})
	if err != nil {
		t.Fatalf("NotifyManualReview: %v", err)
	}

	got := *requests
	if len(got) != 1 {
		t.Fatalf("requests = %d", len(got))
	}
	if got[0].priority != "high" {
		t.Fatalf("priority = %q", got[0].priority)
	}
	want := "Manual review required: /scans/essay.png\nReasons: low confidence; segmentation flagged"
	if got[0].body != want {
		t.Fatalf("body = %q", got[0].body)
	}
}

func TestNotifyErrorIncludesContext(t *testing.T) {
	svc, requests := newRecordingService(t, http.StatusOK)

	if err := svc.NotifyError(context.Background(), errors.New("db locked"), "queue store"); err != nil {
		t.Fatalf("NotifyError: %v", err)
	}
	got := *requests
	if len(got) != 1 {
		t.Fatalf("requests = %d", len(got))
	}
	if got[0].body != "Error with queue store: db locked" {
		t.Fatalf("body = %q", got[0].body)
	}
}

func TestSendSurfacesServerErrors(t *testing.T) {
	svc, _ := newRecordingService(t, http.StatusBadGateway)
	if err := svc.TestNotification(context.Background()); err == nil {
		t.Fatal("expected error from non-2xx response")
	}
}

func TestDisabledCategoriesAreSilent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected when the category is disabled")
	}))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Batch = false
	cfg.Notifications.Review = false
	cfg.Notifications.Errors = false
	svc := notifications.NewService(&cfg)

	if err := svc.NotifyBatchStarted(context.Background(), 1); err != nil {
		t.Fatalf("NotifyBatchStarted: %v", err)
	}
	if err := svc.NotifyManualReview(context.Background(), "/scans/x.png", nil); err != nil {
		t.Fatalf("NotifyManualReview: %v", err)
	}
	if err := svc.NotifyError(context.Background(), errors.New("x"), ""); err != nil {
		t.Fatalf("NotifyError: %v", err)
	}
}
