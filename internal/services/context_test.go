package services

import (
	"context"
	"testing"
)

func TestContextHelpersRoundTrip(t *testing.T) {
	ctx := context.Background()
	ctx = WithRunID(ctx, 7)
	ctx = WithPipeline(ctx, "image_manipulation_work")
	ctx = WithStage(ctx, "blur")
	ctx = WithRequestID(ctx, "req-1")

	if id, ok := RunIDFromContext(ctx); !ok || id != 7 {
		t.Fatalf("unexpected run id %d (ok=%v)", id, ok)
	}
	if name, ok := PipelineFromContext(ctx); !ok || name != "image_manipulation_work" {
		t.Fatalf("unexpected pipeline %q (ok=%v)", name, ok)
	}
	if stage, ok := StageFromContext(ctx); !ok || stage != "blur" {
		t.Fatalf("unexpected stage %q (ok=%v)", stage, ok)
	}
	if rid, ok := RequestIDFromContext(ctx); !ok || rid != "req-1" {
		t.Fatalf("unexpected request id %q (ok=%v)", rid, ok)
	}
}

func TestContextHelpersIgnoreEmpty(t *testing.T) {
	ctx := WithStage(WithPipeline(context.Background(), ""), "")
	if _, ok := PipelineFromContext(ctx); ok {
		t.Fatal("expected no pipeline for empty name")
	}
	if _, ok := StageFromContext(ctx); ok {
		t.Fatal("expected no stage for empty name")
	}
	if _, ok := RunIDFromContext(context.Background()); ok {
		t.Fatal("expected no run id on bare context")
	}
}
