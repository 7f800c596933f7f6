package records

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/mywarranties/internal/common"
	"github.com/dmitrijs2005/mywarranties/internal/server/models"
	"github.com/google/go-cmp/cmp"
)

var (
	t0       = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	purchase = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	expires  = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	upsertQuery = `INSERT INTO records .* ON CONFLICT \(id\) DO UPDATE SET .* WHERE records\.owner_id = EXCLUDED\.owner_id;`
	columns     = []string{"id", "owner_id", "product_name", "purchase_date", "expiration_date", "receipt_ref",
		"updated_at", "client_updated_at", "deleted", "seq"}
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func sampleRecord() models.Record {
	return models.Record{
		ID:              "r1",
		OwnerID:         "o1",
		ProductName:     "TV",
		PurchaseDate:    purchase,
		ExpirationDate:  expires,
		ReceiptRef:      "owners/o1/receipts/k",
		UpdatedAt:       t0,
		ClientUpdatedAt: t0,
		Seq:             4,
	}
}

func recordArgs(r models.Record) []driver.Value {
	return []driver.Value{r.ID, r.OwnerID, r.ProductName, r.PurchaseDate, r.ExpirationDate, r.ReceiptRef,
		r.UpdatedAt, r.ClientUpdatedAt, r.Deleted, r.Seq}
}

func TestUpsert_SuccessRowsAffected1(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rec := sampleRecord()
	mock.ExpectExec(upsertQuery).
		WithArgs(recordArgs(rec)...).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Upsert(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpsert_OtherOwnerRowsAffected0(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rec := sampleRecord()
	mock.ExpectExec(upsertQuery).
		WithArgs(recordArgs(rec)...).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Upsert(context.Background(), rec)
	if !errors.Is(err, common.ErrForbidden) {
		t.Fatalf("want ErrForbidden, got %v", err)
	}
}

func TestUpsert_DBExecError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rec := sampleRecord()
	mock.ExpectExec(upsertQuery).
		WithArgs(recordArgs(rec)...).
		WillReturnError(errors.New("db is down"))

	err := repo.Upsert(context.Background(), rec)
	if err == nil || !regexp.MustCompile(`db error: .*db is down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestGetForUpdate_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	want := sampleRecord()
	local := time.FixedZone("X", 3*3600)
	mock.ExpectQuery(`SELECT .* FROM records WHERE id = \$1 FOR UPDATE`).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			"r1", "o1", "TV", purchase.In(local), expires.In(local), "owners/o1/receipts/k",
			t0.In(local), t0.In(local), false, int64(4)))

	got, err := repo.GetForUpdate(context.Background(), "r1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestGetForUpdate_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM records WHERE id = \$1 FOR UPDATE`).
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	if _, err := repo.GetForUpdate(context.Background(), "nope"); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestListSince_ReturnsRowsInOrder(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows(columns).
		AddRow("r1", "o1", "TV", purchase, expires, "", t0, t0, false, int64(5)).
		AddRow("r2", "o1", "Fridge", purchase, expires, "", t0, t0, true, int64(6))

	mock.ExpectQuery(`SELECT .* FROM records WHERE owner_id = \$1 AND seq > \$2 ORDER BY seq LIMIT \$3`).
		WithArgs("o1", int64(4), 10).
		WillReturnRows(rows)

	got, err := repo.ListSince(context.Background(), "o1", 4, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].Seq != 5 || got[1].ID != "r2" || !got[1].Deleted {
		t.Fatalf("unexpected rows: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListSince_ScanError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows(columns).
		AddRow("r1", "o1", "TV", "not-a-time", expires, "", t0, t0, false, int64(5))
	mock.ExpectQuery(`SELECT .* FROM records`).WillReturnRows(rows)

	if _, err := repo.ListSince(context.Background(), "o1", 0, 10); err == nil {
		t.Fatalf("expected scan error")
	}
}

func TestListSince_QueryError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM records`).WillReturnError(errors.New("boom"))

	_, err := repo.ListSince(context.Background(), "o1", 0, 10)
	if err == nil || !regexp.MustCompile(`failed to select records: boom`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
