package workingset

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrLimitReached = errors.New("working set is full")
	ErrSubmitting   = errors.New("submission in progress")
	ErrNotFound     = errors.New("photo not found")
	ErrEmpty        = errors.New("no photos")
)

// Photo is one staged file, its bytes live in storage under Path
type Photo struct {
	ID          uuid.UUID
	Name        string
	ContentType string
	Path        string
	Size        int64
	Version     int // bumped on every replacement, used as a cache buster
	AddedAt     time.Time
}

// Upload is the list of photos a user stages before submitting them
type Upload struct {
	mu         sync.Mutex
	limit      int
	photos     []Photo
	submitting bool
}

func NewUpload(limit int) *Upload {
	return &Upload{limit: limit}
}

func (u *Upload) Limit() int {
	return u.limit
}

// Add appends p with a fresh ID. Nothing changes when the set is full.
func (u *Upload) Add(p Photo) (Photo, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.submitting {
		return Photo{}, ErrSubmitting
	}
	if len(u.photos) >= u.limit {
		return Photo{}, ErrLimitReached
	}
	p.ID = uuid.New()
	p.Version = 1
	if p.AddedAt.IsZero() {
		p.AddedAt = time.Now()
	}
	u.photos = append(u.photos, p)
	return p, nil
}

// Replace swaps the bytes of one photo and returns the previous storage path
func (u *Upload) Replace(id uuid.UUID, path, contentType string, size int64) (old string, err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.submitting {
		return "", ErrSubmitting
	}
	i := u.index(id)
	if i < 0 {
		return "", ErrNotFound
	}
	p := &u.photos[i]
	old = p.Path
	p.Path = path
	p.ContentType = contentType
	p.Size = size
	p.Version++
	return old, nil
}

func (u *Upload) Remove(id uuid.UUID) (Photo, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.submitting {
		return Photo{}, ErrSubmitting
	}
	i := u.index(id)
	if i < 0 {
		return Photo{}, ErrNotFound
	}
	p := u.photos[i]
	u.photos = append(u.photos[:i], u.photos[i+1:]...)
	return p, nil
}

func (u *Upload) Get(id uuid.UUID) (Photo, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	i := u.index(id)
	if i < 0 {
		return Photo{}, ErrNotFound
	}
	return u.photos[i], nil
}

// Photos returns a copy, in insertion order
func (u *Upload) Photos() []Photo {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]Photo(nil), u.photos...)
}

func (u *Upload) Len() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.photos)
}

func (u *Upload) Submitting() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.submitting
}

// BeginSubmit freezes the set and returns the photos to send
func (u *Upload) BeginSubmit() ([]Photo, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.submitting {
		return nil, ErrSubmitting
	}
	if len(u.photos) == 0 {
		return nil, ErrEmpty
	}
	u.submitting = true
	return append([]Photo(nil), u.photos...), nil
}

// EndSubmit unfreezes the set. On success the submitted photos are dropped
// and returned so their bytes can be deleted.
func (u *Upload) EndSubmit(success bool) (dropped []Photo) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.submitting = false
	if success {
		dropped = u.photos
		u.photos = nil
	}
	return
}

// Clear empties the set regardless of its state, used on logout
func (u *Upload) Clear() []Photo {
	u.mu.Lock()
	defer u.mu.Unlock()
	dropped := u.photos
	u.photos = nil
	u.submitting = false
	return dropped
}

func (u *Upload) index(id uuid.UUID) int {
	for i := range u.photos {
		if u.photos[i].ID == id {
			return i
		}
	}
	return -1
}
