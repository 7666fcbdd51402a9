package models

import (
	"context"

	"photoman/db"
)

const (
	SubmissionUpload   = "upload"
	SubmissionApproval = "approval"
)

// Submission is one upload or approval attempt against the photo backend
type Submission struct {
	ID         uint64 `gorm:"primaryKey"`
	CreatedAt  int64  `gorm:"autoCreateTime;index"`
	Kind       string `gorm:"type:varchar(20);index:idx_submission_user_kind"`
	UserID     uint64 `gorm:"index:idx_submission_user_kind"` // backend user the photos belong to
	ActorEmail string `gorm:"type:varchar(150)"`
	Folder     string `gorm:"type:varchar(200)"`
	PhotoCount int
	Success    bool
	Error      string `gorm:"type:varchar(500)"`
}

// SubmissionLog reads and writes Submission rows through db.Instance
type SubmissionLog struct{}

func (SubmissionLog) Record(ctx context.Context, s *Submission) error {
	if len(s.Error) > 500 {
		s.Error = s.Error[:500]
	}
	return db.Instance.WithContext(ctx).Create(s).Error
}

// Recent returns the newest rows first
func (SubmissionLog) Recent(ctx context.Context, userID uint64, kind string, limit int) (result []Submission, err error) {
	err = db.Instance.WithContext(ctx).
		Where("user_id = ? AND kind = ?", userID, kind).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&result).Error
	return
}
