package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authn-service/app/domain"
	"authn-service/app/utils/logger"
)

func createTestCredentialRepository(t *testing.T) (*CredentialRepository, pgxmock.PgxPoolIface) {
	t.Helper()

	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)

	testLogger, err := logger.New("debug")
	require.NoError(t, err)

	repo := NewCredentialRepository(mockDB, testLogger).(*CredentialRepository)
	return repo, mockDB
}

func TestCredentialRepository_FindByLogin(t *testing.T) {
	tests := []struct {
		name    string
		login   string
		setupDB func(pgxmock.PgxPoolIface)
		want    *domain.Credential
		wantErr bool
	}{
		{
			name:  "credential found",
			login: "jdoe@example.com",
			setupDB: func(m pgxmock.PgxPoolIface) {
				rows := pgxmock.NewRows([]string{"email", "login_email", "password"}).
					AddRow("j.doe@example.com", "jdoe@example.com", "$scrypt$ln=15,r=8,p=1$c2FsdA$a2V5")
				m.ExpectQuery("SELECT email, login_email").
					WithArgs("jdoe@example.com").
					WillReturnRows(rows)
			},
			want: &domain.Credential{
				Email:        "j.doe@example.com",
				LoginEmail:   "jdoe@example.com",
				PasswordHash: "$scrypt$ln=15,r=8,p=1$c2FsdA$a2V5",
			},
		},
		{
			name:  "externally managed account with null password",
			login: "sso@example.com",
			setupDB: func(m pgxmock.PgxPoolIface) {
				rows := pgxmock.NewRows([]string{"email", "login_email", "password"}).
					AddRow("sso@example.com", "sso@example.com", "")
				m.ExpectQuery("SELECT email, login_email").
					WithArgs("sso@example.com").
					WillReturnRows(rows)
			},
			want: &domain.Credential{
				Email:      "sso@example.com",
				LoginEmail: "sso@example.com",
			},
		},
		{
			name:  "no credential row",
			login: "nouser@example.com",
			setupDB: func(m pgxmock.PgxPoolIface) {
				m.ExpectQuery("SELECT email, login_email").
					WithArgs("nouser@example.com").
					WillReturnError(pgx.ErrNoRows)
			},
			want: nil,
		},
		{
			name:  "database failure",
			login: "jdoe@example.com",
			setupDB: func(m pgxmock.PgxPoolIface) {
				m.ExpectQuery("SELECT email, login_email").
					WithArgs("jdoe@example.com").
					WillReturnError(errors.New("connection refused"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mockDB := createTestCredentialRepository(t)
			defer mockDB.Close()

			tt.setupDB(mockDB)

			got, err := repo.FindByLogin(context.Background(), tt.login)

			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}

			assert.NoError(t, mockDB.ExpectationsWereMet())
		})
	}
}

func TestCredentialRepository_Insert(t *testing.T) {
	cred := &domain.Credential{
		Email:        "j.doe@example.com",
		LoginEmail:   "jdoe@example.com",
		PasswordHash: "$scrypt$ln=15,r=8,p=1$c2FsdA$a2V5",
	}

	t.Run("insert succeeds", func(t *testing.T) {
		repo, mockDB := createTestCredentialRepository(t)
		defer mockDB.Close()

		mockDB.ExpectExec("INSERT INTO authn_credentials").
			WithArgs(cred.Email, cred.LoginEmail, cred.PasswordHash).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, repo.Insert(context.Background(), cred))
		assert.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("insert fails", func(t *testing.T) {
		repo, mockDB := createTestCredentialRepository(t)
		defer mockDB.Close()

		mockDB.ExpectExec("INSERT INTO authn_credentials").
			WithArgs(cred.Email, cred.LoginEmail, cred.PasswordHash).
			WillReturnError(errors.New("unique violation"))

		require.Error(t, repo.Insert(context.Background(), cred))
		assert.NoError(t, mockDB.ExpectationsWereMet())
	})
}
