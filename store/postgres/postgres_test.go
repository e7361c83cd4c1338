package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/ratetable"
	"github.com/warp/payroll-engine/records"
	"github.com/warp/payroll-engine/store/postgres"
	"github.com/warp/payroll-engine/tax"
)

// These tests need a live database:
//
//	PAYROLL_TEST_DATABASE_URL=postgres://localhost/payroll_test go test ./store/postgres/
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := os.Getenv("PAYROLL_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("PAYROLL_TEST_DATABASE_URL not set")
	}
	store, err := postgres.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func record(employeeID, key string, at time.Time) records.Record {
	return records.Record{
		ID:                  uuid.NewString(),
		EmployeeID:          employeeID,
		Year:                2025,
		Jurisdiction:        tax.Ontario,
		Mode:                tax.ModePeriodic,
		Kind:                records.KindWithholding,
		IdempotencyKey:      key,
		Gross:               decimal.RequireFromString("2000"),
		PensionableEarnings: decimal.RequireFromString("2000"),
		InsurableEarnings:   decimal.RequireFromString("2000"),
		Tax:                 decimal.RequireFromString("268.95"),
		CPP:                 decimal.RequireFromString("110.99"),
		EI:                  decimal.RequireFromString("32.80"),
		RecordedAt:          at,
	}
}

func TestStore_AppendLoadGet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	// Unique per run so the test can share a database
	employee := "emp-" + uuid.NewString()
	jan := time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC)

	second := record(employee, uuid.NewString(), jan.AddDate(0, 0, 14))
	first := record(employee, uuid.NewString(), jan)
	require.NoError(t, store.Append(ctx, second))
	require.NoError(t, store.AppendBatch(ctx, []records.Record{first}))

	got, err := store.Load(ctx, employee, 2025)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first.ID, got[0].ID)
	assert.Equal(t, "268.95", got[0].Tax.StringFixed(2))
	assert.True(t, got[0].RecordedAt.Equal(jan))

	one, err := store.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, second.IdempotencyKey, one.IdempotencyKey)

	_, err = store.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, records.ErrRecordNotFound)
}

func TestStore_DuplicateKey(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	key := uuid.NewString()
	employee := "emp-" + uuid.NewString()
	now := time.Now().UTC()

	require.NoError(t, store.Append(ctx, record(employee, key, now)))
	assert.ErrorIs(t, store.Append(ctx, record(employee, key, now)), records.ErrDuplicateIdempotencyKey)

	exists, err := store.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	// Batch rolls back as a whole
	fresh := uuid.NewString()
	err = store.AppendBatch(ctx, []records.Record{record(employee, fresh, now), record(employee, key, now)})
	assert.ErrorIs(t, err, records.ErrDuplicateIdempotencyKey)

	exists, err = store.Exists(ctx, fresh)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStore_SecondReversalRejected(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	r := record("emp-"+uuid.NewString(), uuid.NewString(), time.Now().UTC())
	r.NetIncome = decimal.RequireFromString("1981.35")
	require.NoError(t, store.Append(ctx, r))
	require.NoError(t, store.Append(ctx, r.Reversal(uuid.NewString())))

	err := store.Append(ctx, r.Reversal(uuid.NewString()))
	assert.ErrorIs(t, err, records.ErrAlreadyReversed)

	got, err := store.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "1981.35", got.NetIncome.StringFixed(2))
}

func TestStore_RateTables(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	p := ratetable.MustDefault()
	p.Year = 2099
	doc, err := ratetable.Marshal(p, ratetable.FormatYAML)
	require.NoError(t, err)

	_, err = store.SaveDocument(ctx, doc, ratetable.FormatYAML)
	require.NoError(t, err)

	got, err := store.Table(ctx, 2099)
	require.NoError(t, err)
	assert.True(t, p.CPP.MaxContribution.Equal(got.CPP.MaxContribution))

	_, err = store.Table(ctx, 1900)
	assert.ErrorIs(t, err, ratetable.ErrTableNotFound)
}
