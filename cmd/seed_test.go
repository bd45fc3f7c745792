package cmd

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func TestSeed_Idempotent(t *testing.T) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	dbx := sqlx.NewDb(raw, "mysql")
	defer dbx.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT IGNORE INTO hilo_sequences`).WithArgs("ReminderId").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT IGNORE INTO feature_states`).WithArgs("MaintenanceMode").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	ctx := context.Background()
	tx, err := dbx.BeginTxx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, seedSequences(ctx, tx))
	require.NoError(t, seedFeatureStates(ctx, tx))
	require.NoError(t, tx.Commit())

	require.NoError(t, mock.ExpectationsWereMet())
}
