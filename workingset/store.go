package workingset

import (
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// Store holds the working sets of every live workspace
type Store struct {
	limit   int
	uploads cmap.ConcurrentMap[string, *Upload]
	reviews cmap.ConcurrentMap[string, *Review]
	seen    cmap.ConcurrentMap[string, time.Time]
	now     func() time.Time
}

func NewStore(limit int) *Store {
	return &Store{
		limit:   limit,
		uploads: cmap.New[*Upload](),
		reviews: cmap.New[*Review](),
		seen:    cmap.New[time.Time](),
		now:     time.Now,
	}
}

func (s *Store) touch(workspace string) {
	s.seen.Set(workspace, s.now())
}

// Upload returns the workspace's upload set, creating it on first use
func (s *Store) Upload(workspace string) *Upload {
	s.touch(workspace)
	return s.uploads.Upsert(workspace, nil, func(exist bool, old, _ *Upload) *Upload {
		if exist {
			return old
		}
		return NewUpload(s.limit)
	})
}

func (s *Store) Review(workspace string) *Review {
	s.touch(workspace)
	return s.reviews.Upsert(workspace, nil, func(exist bool, old, _ *Review) *Review {
		if exist {
			return old
		}
		return NewReview()
	})
}

// Drop forgets the workspace and returns the photos whose bytes are still staged
func (s *Store) Drop(workspace string) []Photo {
	s.seen.Remove(workspace)
	s.reviews.Remove(workspace)
	if u, ok := s.uploads.Pop(workspace); ok {
		return u.Clear()
	}
	return nil
}

// Idle lists workspaces nobody used for longer than maxIdle. Workspaces with
// a submission in flight are never idle.
func (s *Store) Idle(maxIdle time.Duration) []string {
	cutoff := s.now().Add(-maxIdle)
	var result []string
	for item := range s.seen.IterBuffered() {
		if !item.Val.Before(cutoff) {
			continue
		}
		if u, ok := s.uploads.Get(item.Key); ok && u.Submitting() {
			continue
		}
		if r, ok := s.reviews.Get(item.Key); ok && r.State().Approving {
			continue
		}
		result = append(result, item.Key)
	}
	return result
}

// Count is the number of live workspaces
func (s *Store) Count() int {
	return s.seen.Count()
}
