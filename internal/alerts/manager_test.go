package alerts

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/costfence/costfence/internal/db"
	"github.com/costfence/costfence/internal/ledger"
	"github.com/costfence/costfence/internal/models"
	"github.com/costfence/costfence/internal/settings"

	"gorm.io/gorm"
)

func newTestManager(t *testing.T) (*Manager, *ledger.Ledger, *gorm.DB) {
	t.Helper()
	conn, errOpen := db.Open(":memory:")
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	entries := ledger.New(conn)
	return NewManager(conn, entries), entries, conn
}

func recordSpend(t *testing.T, entries *ledger.Ledger, userID string, costMicros int64) {
	t.Helper()
	errRecord := entries.RecordEntry(context.Background(), &models.CostEntry{
		UserID:          userID,
		Provider:        "openai",
		Model:           "gpt-4",
		TotalCostMicros: costMicros,
		RequestedAt:     time.Now().UTC(),
	})
	if errRecord != nil {
		t.Fatalf("record entry: %v", errRecord)
	}
}

func listAll(t *testing.T, manager *Manager, userID string) []models.CostAlert {
	t.Helper()
	alerts, errList := manager.List(context.Background(), ListQuery{UserID: userID})
	if errList != nil {
		t.Fatalf("list alerts: %v", errList)
	}
	return alerts
}

func TestEvaluateUserRaisesEachCrossedLevelOnce(t *testing.T) {
	manager, entries, _ := newTestManager(t)
	ctx := context.Background()

	// $60 crosses info ($10) and warning ($50) but not critical ($100).
	recordSpend(t, entries, "alice", 60_000_000)
	raised, errEvaluate := manager.EvaluateUser(ctx, "alice")
	if errEvaluate != nil {
		t.Fatalf("evaluate: %v", errEvaluate)
	}
	if len(raised) != 2 {
		t.Fatalf("raised %v, want info and warning", raised)
	}

	alerts := listAll(t, manager, "alice")
	if len(alerts) != 2 {
		t.Fatalf("got %d alerts, want 2: %+v", len(alerts), alerts)
	}

	// Re-evaluating the same period must not duplicate.
	raised, errEvaluate = manager.EvaluateUser(ctx, "alice")
	if errEvaluate != nil {
		t.Fatalf("re-evaluate: %v", errEvaluate)
	}
	if len(raised) != 0 {
		t.Fatalf("raised %v on re-evaluation, want none", raised)
	}
	if alerts = listAll(t, manager, "alice"); len(alerts) != 2 {
		t.Fatalf("got %d alerts after re-evaluation, want 2", len(alerts))
	}

	// More spend in the same period raises only the newly crossed level.
	recordSpend(t, entries, "alice", 50_000_000)
	raised, errEvaluate = manager.EvaluateUser(ctx, "alice")
	if errEvaluate != nil {
		t.Fatalf("third evaluate: %v", errEvaluate)
	}
	if len(raised) != 1 || raised[0] != models.AlertCritical {
		t.Fatalf("raised %v, want only critical", raised)
	}
	alerts = listAll(t, manager, "alice")
	if len(alerts) != 3 {
		t.Fatalf("got %d alerts after crossing critical, want 3", len(alerts))
	}
	if alerts[0].Level != models.AlertCritical {
		t.Fatalf("newest alert level = %q, want critical", alerts[0].Level)
	}
}

func TestEvaluateUserBelowLadderRaisesNothing(t *testing.T) {
	manager, entries, _ := newTestManager(t)

	recordSpend(t, entries, "bob", 5_000_000)
	if _, errEvaluate := manager.EvaluateUser(context.Background(), "bob"); errEvaluate != nil {
		t.Fatalf("evaluate: %v", errEvaluate)
	}
	if alerts := listAll(t, manager, "bob"); len(alerts) != 0 {
		t.Fatalf("expected no alerts below the ladder, got %+v", alerts)
	}
}

func TestEvaluateUserHonorsConfiguredLadder(t *testing.T) {
	manager, entries, _ := newTestManager(t)
	t.Cleanup(func() { settings.Store(time.Now(), nil) })

	ladder, errMarshal := json.Marshal(map[string]int64{"info": 1_000_000})
	if errMarshal != nil {
		t.Fatalf("marshal ladder: %v", errMarshal)
	}
	settings.Store(time.Now(), map[string]json.RawMessage{
		settings.AlertLadderKey: ladder,
	})

	recordSpend(t, entries, "carol", 2_000_000)
	if _, errEvaluate := manager.EvaluateUser(context.Background(), "carol"); errEvaluate != nil {
		t.Fatalf("evaluate: %v", errEvaluate)
	}
	alerts := listAll(t, manager, "carol")
	if len(alerts) != 1 || alerts[0].Level != models.AlertInfo {
		t.Fatalf("expected one info alert at configured $1 threshold, got %+v", alerts)
	}
}

func TestAcknowledge(t *testing.T) {
	manager, entries, _ := newTestManager(t)
	ctx := context.Background()

	recordSpend(t, entries, "dave", 20_000_000)
	if _, errEvaluate := manager.EvaluateUser(ctx, "dave"); errEvaluate != nil {
		t.Fatalf("evaluate: %v", errEvaluate)
	}
	alerts := listAll(t, manager, "dave")
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(alerts))
	}

	if errAck := manager.Acknowledge(ctx, alerts[0].ID); errAck != nil {
		t.Fatalf("acknowledge: %v", errAck)
	}
	unacked, errList := manager.List(ctx, ListQuery{UserID: "dave", OnlyUnacknowledged: true})
	if errList != nil {
		t.Fatalf("list unacknowledged: %v", errList)
	}
	if len(unacked) != 0 {
		t.Fatalf("expected no unacknowledged alerts, got %+v", unacked)
	}

	if errAck := manager.Acknowledge(ctx, 9999); errAck == nil {
		t.Fatal("expected error acknowledging an unknown alert")
	}
}

func TestRetentionDeletesOnlyOldAcknowledgedAlerts(t *testing.T) {
	manager, entries, conn := newTestManager(t)
	ctx := context.Background()

	recordSpend(t, entries, "erin", 20_000_000)
	if _, errEvaluate := manager.EvaluateUser(ctx, "erin"); errEvaluate != nil {
		t.Fatalf("evaluate: %v", errEvaluate)
	}
	alerts := listAll(t, manager, "erin")
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(alerts))
	}

	// Age the alert past the retention window, acknowledged.
	old := time.Now().UTC().AddDate(0, 0, -settings.DefaultAlertRetentionDays-1)
	if errAge := conn.Model(&models.CostAlert{}).
		Where("id = ?", alerts[0].ID).
		Updates(map[string]any{"acknowledged": true, "created_at": old}).Error; errAge != nil {
		t.Fatalf("age alert: %v", errAge)
	}

	cleaner := NewRetentionCleaner(conn)
	cleaner.cleanupOnce(ctx)

	if remaining := listAll(t, manager, "erin"); len(remaining) != 0 {
		t.Fatalf("expected aged acknowledged alert deleted, got %+v", remaining)
	}

	// An unacknowledged alert the same age survives.
	stale := models.CostAlert{
		UserID:          "erin",
		Level:           models.AlertWarning,
		PeriodStart:     old,
		Message:         "stale",
		ThresholdMicros: 1,
		CurrentMicros:   1,
		CreatedAt:       old,
	}
	if errCreate := conn.Create(&stale).Error; errCreate != nil {
		t.Fatalf("create stale alert: %v", errCreate)
	}
	cleaner.cleanupOnce(ctx)
	if remaining := listAll(t, manager, "erin"); len(remaining) != 1 {
		t.Fatalf("expected unacknowledged alert kept, got %+v", remaining)
	}
}
