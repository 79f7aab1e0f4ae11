package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/cep-loader/internal/db"
	"github.com/sells-group/cep-loader/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T, policy model.UpdatePolicy) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	stmt, err := upsertSQL(db.Postgres, policy)
	require.NoError(t, err)
	return &PostgresStore{pool: mock, upsertSQL: stmt}, mock
}

func TestPostgresStore_UpsertRecord(t *testing.T) {
	s, mock := newMockPostgresStore(t, model.PolicyOverwrite)
	rec := paulista()

	mock.ExpectExec(`INSERT INTO "records" .* ON CONFLICT \("name"\) DO UPDATE SET "age" = EXCLUDED."age"`).
		WithArgs(pgxmock.AnyArg(), "Ana", 30, "01310100", rec.Street, rec.State, rec.Region, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.UpsertRecord(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertRecord_MergeUsesCoalesce(t *testing.T) {
	s, mock := newMockPostgresStore(t, model.PolicyMerge)

	mock.ExpectExec(`"street" = COALESCE\(EXCLUDED."street", "records"."street"\)`).
		WithArgs(pgxmock.AnyArg(), "Ana", 30, "01310100", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.UpsertRecord(context.Background(), model.Record{Name: "Ana", Age: 30, PostalCode: "01310100"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertRecord_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t, model.PolicyOverwrite)

	mock.ExpectExec(`INSERT INTO "records"`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("value too long for type character varying(10)"))

	err := s.UpsertRecord(context.Background(), model.Record{Name: "Ana", Age: 30, PostalCode: "0131010012345"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: upsert record")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRecord(t *testing.T) {
	s, mock := newMockPostgresStore(t, model.PolicyOverwrite)
	now := time.Now().UTC()
	street := "Avenida Paulista"

	rows := pgxmock.NewRows([]string{"id", "name", "age", "postal_code", "street", "state", "region", "created_at", "updated_at"}).
		AddRow("rec-1", "Ana", 30, "01310100", &street, nil, nil, now, now)
	mock.ExpectQuery(`SELECT id, name, age, postal_code, street, state, region, created_at, updated_at FROM records WHERE name = \$1`).
		WithArgs("Ana").
		WillReturnRows(rows)

	got, err := s.GetRecord(context.Background(), "Ana")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "rec-1", got.ID)
	assert.Equal(t, 30, got.Age)
	require.NotNil(t, got.Street)
	assert.Equal(t, "Avenida Paulista", *got.Street)
	assert.Nil(t, got.State)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRecord_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t, model.PolicyOverwrite)

	mock.ExpectQuery(`FROM records WHERE name = \$1`).
		WithArgs("nobody").
		WillReturnError(pgx.ErrNoRows)

	got, err := s.GetRecord(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRecords(t *testing.T) {
	s, mock := newMockPostgresStore(t, model.PolicyOverwrite)
	now := time.Now().UTC()

	rows := pgxmock.NewRows([]string{"id", "name", "age", "postal_code", "street", "state", "region", "created_at", "updated_at"}).
		AddRow("rec-1", "Ana", 30, "01310100", nil, nil, nil, now, now).
		AddRow("rec-2", "Bruno", 25, "01310200", nil, nil, nil, now, now)
	mock.ExpectQuery(`WHERE 1=1 AND state = \$1 ORDER BY name LIMIT \$2 OFFSET \$3`).
		WithArgs("SP", 10, 5).
		WillReturnRows(rows)

	got, err := s.ListRecords(context.Background(), RecordFilter{State: "SP", Limit: 10, Offset: 5})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Bruno", got[1].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t, model.PolicyOverwrite)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS records`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Ping(t *testing.T) {
	s, mock := newMockPostgresStore(t, model.PolicyOverwrite)

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	err := s.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: ping")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewPostgres_InvalidConnString(t *testing.T) {
	_, err := NewPostgres(context.Background(), "://not a dsn", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: parse config")
}

func TestPostgresStore_CloseWithoutPool(t *testing.T) {
	s := &PostgresStore{}
	assert.NoError(t, s.Close())
}
