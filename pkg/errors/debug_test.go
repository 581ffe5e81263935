package errors

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestDumpExtractsPgxDetails(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           "23514",
		ConstraintName: "chk_stock_balances_quantity",
		TableName:      "stock_balances",
		Message:        "new row violates check constraint",
	}
	err := Wrap(CodeInternal, fmt.Errorf("update balance: %w", pgErr), "transfer failed")

	d := Dump(err)
	if d.Code != CodeInternal {
		t.Fatalf("unexpected code %s", d.Code)
	}
	if d.PGCode != "23514" || d.PGConstraint != "chk_stock_balances_quantity" {
		t.Fatalf("pg details missing: %+v", d)
	}
	if len(d.Chain) != 3 {
		t.Fatalf("expected 3 chain entries, got %d", len(d.Chain))
	}

	fields := d.Fields()
	if fields["pg_table"] != "stock_balances" {
		t.Fatalf("expected pg_table field, got %v", fields)
	}
	if fields["error_code"] != string(CodeInternal) {
		t.Fatalf("expected error_code field, got %v", fields)
	}
}

func TestDumpNil(t *testing.T) {
	d := Dump(nil)
	if d.TopMessage != "" || len(d.Fields()) != 0 {
		t.Fatalf("expected empty dump, got %+v", d)
	}
}
