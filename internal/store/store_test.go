package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/verte-zerg/trainviz/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

func TestRecordAndListRequests(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	base := time.Unix(1700000000, 0)
	statuses := []int{200, 400, 200, 500}
	for i, status := range statuses {
		entry := model.RequestEntry{
			RequestID:    "req-" + string(rune('a'+i)),
			ReceivedAt:   base.Add(time.Duration(i) * time.Second),
			Epochs:       10 + i,
			LearningRate: 0.01,
			BatchSize:    32,
			Status:       status,
			DurationMs:   int64(300 + i),
		}
		if status != 200 {
			entry.Error = "boom"
		}
		if err := st.RecordRequest(ctx, entry); err != nil {
			t.Fatalf("record request: %v", err)
		}
	}

	all, err := st.ListRequests(ctx, model.RequestFilter{})
	if err != nil {
		t.Fatalf("list requests: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(all))
	}
	if all[0].RequestID != "req-a" || all[3].RequestID != "req-d" {
		t.Fatalf("expected oldest first, got %s..%s", all[0].RequestID, all[3].RequestID)
	}
	if !all[1].ReceivedAt.Equal(base.Add(time.Second)) {
		t.Fatalf("unexpected received_at %v", all[1].ReceivedAt)
	}

	last, err := st.ListRequests(ctx, model.RequestFilter{Last: 2})
	if err != nil {
		t.Fatalf("list last: %v", err)
	}
	if len(last) != 2 || last[0].RequestID != "req-c" || last[1].RequestID != "req-d" {
		t.Fatalf("unexpected last entries: %+v", last)
	}

	ok, err := st.ListRequests(ctx, model.RequestFilter{Status: 200})
	if err != nil {
		t.Fatalf("list by status: %v", err)
	}
	if len(ok) != 2 {
		t.Fatalf("expected 2 successful entries, got %d", len(ok))
	}

	since := base.Add(2 * time.Second)
	recent, err := st.ListRequests(ctx, model.RequestFilter{Since: &since})
	if err != nil {
		t.Fatalf("list since: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 entries since %v, got %d", since, len(recent))
	}
}

func TestCountByStatus(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	for _, status := range []int{200, 200, 400} {
		if err := st.RecordRequest(ctx, model.RequestEntry{RequestID: "x", ReceivedAt: time.Now(), Status: status}); err != nil {
			t.Fatalf("record request: %v", err)
		}
	}
	counts, err := st.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("count by status: %v", err)
	}
	if counts[200] != 2 || counts[400] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}
