package workers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"blurchain/internal/fileutil"
	"blurchain/internal/logging"
	"blurchain/internal/notifications"
	"blurchain/internal/payload"
	"blurchain/internal/services"
	"blurchain/internal/stage"
	"blurchain/internal/testsupport"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingNotifier) Events() []notifications.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notifications.Event(nil), r.events...)
}

func listArtifacts(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("read %s: %v", dir, err)
	}
	var names []string
	for _, e := range entries {
		if IsArtifact(e.Name()) {
			names = append(names, e.Name())
		}
	}
	return names
}

func TestCleanupRemovesOnlyArtifacts(t *testing.T) {
	dir := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(dir, ArtifactPrefix+"a.png"), 8)
	testsupport.WriteFile(t, filepath.Join(dir, ArtifactPrefix+"b.PNG"), 8)
	testsupport.WriteFile(t, filepath.Join(dir, "keep.png"), 8)
	testsupport.WriteFile(t, filepath.Join(dir, ArtifactPrefix+"notes.txt"), 8)
	if err := os.Mkdir(filepath.Join(dir, ArtifactPrefix+"dir.png"), 0o755); err != nil {
		t.Fatal(err)
	}

	worker := NewCleanup(dir, logging.NewNop())
	out, err := worker.Execute(context.Background(), payload.Empty())
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !out.IsEmpty() {
		t.Fatalf("expected empty output, got %s", out)
	}
	if remaining := listArtifacts(t, dir); len(remaining) != 1 || remaining[0] != ArtifactPrefix+"dir.png" {
		t.Fatalf("unexpected remaining artifacts %v", remaining)
	}
	for _, keep := range []string{"keep.png", ArtifactPrefix + "notes.txt"} {
		if _, err := os.Stat(filepath.Join(dir, keep)); err != nil {
			t.Fatalf("expected %s to survive: %v", keep, err)
		}
	}
}

func TestCleanupSwallowsErrors(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing")
	worker := NewCleanup(missing, logging.NewNop())
	if _, err := worker.Execute(context.Background(), payload.Empty()); err != nil {
		t.Fatalf("expected success for missing staging dir, got %v", err)
	}

	notDir := filepath.Join(t.TempDir(), "file")
	testsupport.WriteFile(t, notDir, 1)
	result := NewCleanup(notDir, logging.NewNop()).Sweep(context.Background())
	if len(result.Errors) != 1 {
		t.Fatalf("expected listing error to be reported, got %+v", result)
	}
	if _, err := NewCleanup(notDir, logging.NewNop()).Execute(context.Background(), payload.Empty()); err != nil {
		t.Fatalf("expected cleanup to succeed despite errors, got %v", err)
	}
}

func TestBlurRejectsMissingLocator(t *testing.T) {
	staging := t.TempDir()
	worker := NewBlur(BlurOptions{StagingDir: staging, Sigma: 2, Logger: logging.NewNop()})

	for _, in := range []payload.Payload{payload.Empty(), payload.Of(payload.KeyImageURI, "")} {
		out, err := worker.Execute(context.Background(), in)
		if !errors.Is(err, services.ErrInvalidInput) {
			t.Fatalf("expected invalid input, got %v", err)
		}
		if !out.IsEmpty() {
			t.Fatalf("expected empty output, got %s", out)
		}
	}
	if artifacts := listArtifacts(t, staging); len(artifacts) != 0 {
		t.Fatalf("expected no artifacts, got %v", artifacts)
	}
}

func TestBlurWritesNewArtifact(t *testing.T) {
	base := t.TempDir()
	staging := filepath.Join(base, "staging")
	src := testsupport.WritePNG(t, filepath.Join(base, "input.png"), 24, 24)
	original, err := os.ReadFile(src)
	if err != nil {
		t.Fatal(err)
	}

	notifier := &recordingNotifier{}
	worker := NewBlur(BlurOptions{StagingDir: staging, Sigma: 2, Notifier: notifier, Logger: logging.NewNop()})
	out, err := worker.Execute(context.Background(), payload.Of(payload.KeyImageURI, fileutil.Locator(src)))
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	locator, ok := out.ImageURI()
	if !ok {
		t.Fatal("expected output locator")
	}
	dst, err := fileutil.PathFromLocator(locator)
	if err != nil {
		t.Fatal(err)
	}
	if dst == src || filepath.Dir(dst) != staging || !IsArtifact(filepath.Base(dst)) {
		t.Fatalf("unexpected artifact path %q", dst)
	}
	blurred, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if bytes.Equal(blurred, original) {
		t.Fatal("expected blurred image to differ from input")
	}
	after, err := os.ReadFile(src)
	if err != nil || !bytes.Equal(after, original) {
		t.Fatal("input image was modified")
	}
	if events := notifier.Events(); len(events) != 1 || events[0] != notifications.EventBlurStatus {
		t.Fatalf("expected one status notification, got %v", events)
	}
}

func TestBlurAcceptsBarePath(t *testing.T) {
	base := t.TempDir()
	src := testsupport.WritePNG(t, filepath.Join(base, "bare.png"), 8, 8)
	worker := NewBlur(BlurOptions{StagingDir: filepath.Join(base, "staging"), Sigma: 1})
	if _, err := worker.Execute(context.Background(), payload.Of(payload.KeyImageURI, src)); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
}

func TestBlurDecodeFailureIsProcessingError(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "broken.png")
	testsupport.WriteFile(t, src, 64)

	staging := filepath.Join(base, "staging")
	worker := NewBlur(BlurOptions{StagingDir: staging, Sigma: 1})
	_, err := worker.Execute(context.Background(), payload.Of(payload.KeyImageURI, fileutil.Locator(src)))
	if !errors.Is(err, services.ErrProcessing) {
		t.Fatalf("expected processing error, got %v", err)
	}
	if d := services.Details(err); d.Operation != "decode image" || d.Cause == nil {
		t.Fatalf("unexpected details %+v", d)
	}
	if artifacts := listArtifacts(t, staging); len(artifacts) != 0 {
		t.Fatalf("expected no artifacts, got %v", artifacts)
	}
}

func TestBlurCancelledDuringDelay(t *testing.T) {
	base := t.TempDir()
	src := testsupport.WritePNG(t, filepath.Join(base, "in.png"), 8, 8)
	staging := filepath.Join(base, "staging")
	worker := NewBlur(BlurOptions{StagingDir: staging, Sigma: 1, Delay: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := worker.Execute(ctx, payload.Of(payload.KeyImageURI, src))
	if !errors.Is(err, services.ErrCancelled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if time.Since(start) > 10*time.Second {
		t.Fatal("delay did not honour cancellation")
	}
	if artifacts := listArtifacts(t, staging); len(artifacts) != 0 {
		t.Fatalf("expected no artifacts, got %v", artifacts)
	}
}

func TestSaveCopiesIntoOutputDir(t *testing.T) {
	base := t.TempDir()
	src := testsupport.WritePNG(t, filepath.Join(base, "staging", ArtifactPrefix+"x.png"), 8, 8)
	outDir := filepath.Join(base, "out")

	notifier := &recordingNotifier{}
	worker := NewSave(outDir, notifier, logging.NewNop())
	fixed := time.Date(2024, 5, 1, 14, 3, 22, 0, time.UTC)
	worker.now = func() time.Time { return fixed }

	first, err := worker.Execute(context.Background(), payload.Of(payload.KeyImageURI, fileutil.Locator(src)))
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	second, err := worker.Execute(context.Background(), payload.Of(payload.KeyImageURI, fileutil.Locator(src)))
	if err != nil {
		t.Fatalf("second Execute returned error: %v", err)
	}

	firstLoc, _ := first.ImageURI()
	firstPath, err := fileutil.PathFromLocator(firstLoc)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(outDir, "Blurred Image 2024.05.01 at 14.03.22 UTC.png"); firstPath != want {
		t.Fatalf("unexpected output %q, want %q", firstPath, want)
	}
	secondLoc, _ := second.ImageURI()
	if !strings.Contains(secondLoc, "%282%29") && !strings.Contains(secondLoc, "(2)") {
		t.Fatalf("expected de-duplicated name, got %q", secondLoc)
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("source should remain: %v", err)
	}
	if events := notifier.Events(); len(events) != 2 || events[0] != notifications.EventPipelineCompleted {
		t.Fatalf("unexpected notifications %v", events)
	}
}

func TestSaveErrors(t *testing.T) {
	base := t.TempDir()
	worker := NewSave(filepath.Join(base, "out"), nil, nil)

	if _, err := worker.Execute(context.Background(), payload.Empty()); !errors.Is(err, services.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	missing := fileutil.Locator(filepath.Join(base, "missing.png"))
	if _, err := worker.Execute(context.Background(), payload.Of(payload.KeyImageURI, missing)); !errors.Is(err, services.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}

	blocked := filepath.Join(base, "blocked")
	testsupport.WriteFile(t, blocked, 1)
	src := testsupport.WritePNG(t, filepath.Join(base, "a.png"), 4, 4)
	bad := NewSave(blocked, nil, nil)
	if _, err := bad.Execute(context.Background(), payload.Of(payload.KeyImageURI, src)); !errors.Is(err, services.ErrPersistence) {
		t.Fatalf("expected persistence error for unusable output dir, got %v", err)
	}
	if health := bad.HealthCheck(context.Background()); health.Ready {
		t.Fatal("expected unhealthy save worker")
	}
}

func TestSetHandlersAndHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithNtfyTopic(server.URL))
	set := New(cfg, notifications.NewService(cfg), logging.NewNop())
	handlers := set.Handlers()
	for _, kind := range []stage.Kind{stage.KindCleanup, stage.KindBlur, stage.KindSave} {
		h, ok := handlers[kind]
		if !ok {
			t.Fatalf("missing handler for %s", kind)
		}
		if health := h.HealthCheck(context.Background()); !health.Ready {
			t.Fatalf("%s unhealthy: %s", kind, health.Detail)
		}
	}
}
