package reports

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGRepoCreateMarshalsConfiguration(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	report := Report{
		ID:          "report-1",
		UserID:      "user-1",
		Workflow:    WorkflowCompanyProfile,
		Title:       "Acme overview",
		Status:      StatusPending,
		Companies:   []string{"Acme"},
		Depth:       DepthStandard,
		Sections:    []string{"overview"},
		TokenBudget: 2048,
		CreatedAt:   time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO reports").
		WithArgs(
			report.ID,
			report.UserID,
			report.Workflow,
			report.Title,
			report.Status,
			sqlmock.AnyArg(), // companies
			report.Depth,
			sqlmock.AnyArg(), // sections
			report.TokenBudget,
			nil, // export_formats
			nil, // delivery_options
			nil, // podcast_options
			report.CreatedAt,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Create(context.Background(), report); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoMarkProcessingRequiresPendingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	startedAt := time.Now().UTC()

	mock.ExpectExec("UPDATE reports").
		WithArgs("report-1", startedAt).
		WillReturnResult(sqlmock.NewResult(0, 0))

	claimed, err := repo.MarkProcessing(context.Background(), "report-1", startedAt)
	if err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	if claimed {
		t.Fatalf("expected claim to fail when no pending row matches")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}
