package db

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
)

type testModel struct {
	ID   int
	Name string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:db_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&testModel{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return conn
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	db := newTestDB(t)
	client := FromGorm(db)

	ctx := context.Background()
	if err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{Name: "committed"}).Error
	}); err != nil {
		t.Fatalf("WithTx commit failed: %v", err)
	}

	var count int64
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record, got %d", count)
	}

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Name: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected WithTx to return an error")
	}
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed after rollback: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected rollback to leave 1 record, got %d", count)
	}
}

func TestWithTx_CancelledContextNeverBegins(t *testing.T) {
	client := FromGorm(newTestDB(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if called {
		t.Fatalf("transaction body must not run on a cancelled context")
	}
}

func TestPing(t *testing.T) {
	client := FromGorm(newTestDB(t))
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
}

func TestRetryPolicy_ReplaysStaleWrites(t *testing.T) {
	policy := RetryPolicy{Attempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
	var retried []int
	policy.OnRetry = func(attempt int, err error) { retried = append(retried, attempt) }

	calls := 0
	err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("update balance: %w", ErrStaleWrite)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if len(retried) != 2 || retried[0] != 1 || retried[1] != 2 {
		t.Fatalf("unexpected retry callbacks %v", retried)
	}
}

func TestRetryPolicy_ExhaustionSurfacesConcurrentUpdate(t *testing.T) {
	policy := RetryPolicy{Attempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
	calls := 0
	err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		return &pgconn.PgError{Code: sqlStateSerializationFailure}
	})
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if !pkgerrors.Is(err, pkgerrors.CodeConcurrentUpdate) {
		t.Fatalf("expected CONCURRENT_UPDATE, got %v", err)
	}
}

func TestRetryPolicy_DoesNotReplayBusinessErrors(t *testing.T) {
	policy := DefaultRetryPolicy()
	business := pkgerrors.New(pkgerrors.CodeInsufficientStock, "short")
	calls := 0
	err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		return business
	})
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
	if !errors.Is(err, business) {
		t.Fatalf("expected business error to surface verbatim, got %v", err)
	}
}

func TestRetryPolicy_BackoffIsCapped(t *testing.T) {
	policy := RetryPolicy{BaseBackoff: 10 * time.Millisecond, MaxBackoff: 40 * time.Millisecond}
	for attempt := 1; attempt <= 10; attempt++ {
		if d := policy.backoff(attempt); d < 0 || d > 40*time.Millisecond {
			t.Fatalf("attempt %d backoff %v outside [0, 40ms]", attempt, d)
		}
	}
}

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: sqlStateUniqueViolation, ConstraintName: "ux_invoices_number"}
	if !IsUniqueViolation(pgErr, "ux_invoices_number") {
		t.Fatalf("expected constraint match")
	}
	if IsUniqueViolation(pgErr, "ux_other") {
		t.Fatalf("unexpected match for other constraint")
	}
	if !IsUniqueViolation(errors.New("UNIQUE constraint failed: invoices.invoice_number"), "") {
		t.Fatalf("expected sqlite message to match")
	}
	if IsUniqueViolation(nil, "") {
		t.Fatalf("nil is never a violation")
	}
}
