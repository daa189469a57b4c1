package services_test

import (
	"context"
	"testing"

	"curvrank/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithItem(ctx, "17874")
	ctx = services.WithStage(ctx, "block_curvature")
	ctx = services.WithRunID(ctx, "run-123")

	if item, ok := services.ItemFromContext(ctx); !ok || item != "17874" {
		t.Fatalf("unexpected item: %v %v", item, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "block_curvature" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if rid, ok := services.RunIDFromContext(ctx); !ok || rid != "run-123" {
		t.Fatalf("unexpected run id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	ctx = services.WithItem(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage for blank value")
	}
	if _, ok := services.ItemFromContext(ctx); ok {
		t.Fatal("expected no item for blank value")
	}
}
