package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRecordBeforeInitIsNoop(t *testing.T) {
	if taskOps != nil {
		t.Skip("instruments already initialised")
	}
	ctx := context.Background()
	RecordTaskOp(ctx, "create")
	RecordDelivery(ctx, "success", time.Second)
	RecordProvisioning(ctx, "branch", "success")
	RecordPRRefresh(ctx, true)
	RecordCleanup(ctx, 1)
}

func TestMetricsHandlerServesInstruments(t *testing.T) {
	ctx := context.Background()
	handler, err := InitMeterProvider(ctx, "forged-test")
	if err != nil {
		t.Fatalf("InitMeterProvider: %v", err)
	}
	if err := Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	RecordTaskOp(ctx, "create")
	RecordDelivery(ctx, "retrying", 150*time.Millisecond)
	RecordProvisioning(ctx, "worktree", "failed")
	RecordPRRefresh(ctx, false)
	RecordCleanup(ctx, 2)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	for _, name := range []string{"forge_task_operations", "forge_webhook_deliveries", "forge_provisioning", "forge_pr_refresh", "forge_cleanup_reclaimed"} {
		if !strings.Contains(string(body), name) {
			t.Fatalf("metrics output missing %s:\n%s", name, body)
		}
	}
}
