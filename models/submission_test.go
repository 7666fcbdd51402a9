package models

import (
	"context"
	"path/filepath"
	"testing"

	"photoman/db"
)

func setupDB(t *testing.T) {
	t.Helper()
	instance, err := db.Open("", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.Instance = instance
	if err = Init(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { db.Instance = nil })
}

func TestSubmissionLog_Recent(t *testing.T) {
	setupDB(t)
	ctx := context.Background()
	log := SubmissionLog{}

	rows := []Submission{
		{Kind: SubmissionApproval, UserID: 7, Folder: "a", PhotoCount: 3, Success: true, CreatedAt: 100},
		{Kind: SubmissionApproval, UserID: 7, Folder: "b", PhotoCount: 1, Success: false, Error: "boom", CreatedAt: 200},
		{Kind: SubmissionUpload, UserID: 7, PhotoCount: 5, Success: true, CreatedAt: 300},
		{Kind: SubmissionApproval, UserID: 8, Folder: "c", PhotoCount: 2, Success: true, CreatedAt: 400},
	}
	for i := range rows {
		if err := log.Record(ctx, &rows[i]); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	got, err := log.Recent(ctx, 7, SubmissionApproval, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 approvals for user 7, got %d", len(got))
	}
	if got[0].Folder != "b" || got[1].Folder != "a" {
		t.Errorf("expected newest first, got %q then %q", got[0].Folder, got[1].Folder)
	}

	got, _ = log.Recent(ctx, 7, SubmissionApproval, 1)
	if len(got) != 1 {
		t.Errorf("limit not applied: %d rows", len(got))
	}
}

func TestSubmissionLog_RecordTruncatesError(t *testing.T) {
	setupDB(t)
	long := make([]byte, 800)
	for i := range long {
		long[i] = 'x'
	}
	s := Submission{Kind: SubmissionUpload, UserID: 1, Error: string(long)}
	if err := (SubmissionLog{}).Record(context.Background(), &s); err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(s.Error) != 500 {
		t.Errorf("error not truncated: %d", len(s.Error))
	}
}
