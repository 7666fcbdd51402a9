package workingset

import (
	"sync"

	"github.com/google/uuid"

	"photoman/processing"
)

// ReviewPhoto is a backend photo reference with a local identity
type ReviewPhoto struct {
	ID  uuid.UUID
	URL string
}

// Review is the approver's current selection: user, folder, photos and
// the per-photo adjustments
type Review struct {
	mu          sync.Mutex
	userID      uint64
	userName    string
	folders     []string
	folder      string
	photos      []ReviewPhoto
	adjustments map[uuid.UUID]processing.Adjustment
	approving   bool
}

// ReviewState is a consistent snapshot for rendering
type ReviewState struct {
	UserID      uint64
	UserName    string
	Folders     []string
	Folder      string
	Photos      []ReviewPhoto
	Adjustments map[uuid.UUID]processing.Adjustment
	Approving   bool
}

func NewReview() *Review {
	return &Review{adjustments: map[uuid.UUID]processing.Adjustment{}}
}

// SelectUser clears the folder, the photos and their adjustments
func (r *Review) SelectUser(id uint64, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.approving {
		return ErrSubmitting
	}
	r.userID = id
	r.userName = name
	r.folders = nil
	r.folder = ""
	r.resetPhotos()
	return nil
}

func (r *Review) SetFolders(userID uint64, folders []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.userID != userID {
		return // selection moved on while the folders were loading
	}
	r.folders = append([]string(nil), folders...)
}

// SelectFolder clears only the photos and their adjustments
func (r *Review) SelectFolder(folder string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.approving {
		return ErrSubmitting
	}
	r.folder = folder
	r.resetPhotos()
	return nil
}

// SetPhotos assigns a fresh ID to every URL, in order
func (r *Review) SetPhotos(userID uint64, folder string, urls []string) []ReviewPhoto {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.userID != userID || r.folder != folder {
		return nil
	}
	r.resetPhotos()
	for _, u := range urls {
		r.photos = append(r.photos, ReviewPhoto{ID: uuid.New(), URL: u})
	}
	return append([]ReviewPhoto(nil), r.photos...)
}

// Delete drops the photo from the list, the backend is not told
func (r *Review) Delete(id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.approving {
		return ErrSubmitting
	}
	for i := range r.photos {
		if r.photos[i].ID == id {
			r.photos = append(r.photos[:i], r.photos[i+1:]...)
			delete(r.adjustments, id)
			return nil
		}
	}
	return ErrNotFound
}

func (r *Review) Adjust(id uuid.UUID, adj processing.Adjustment) error {
	adj = adj.Normalized()
	if err := adj.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.approving {
		return ErrSubmitting
	}
	if r.indexOf(id) < 0 {
		return ErrNotFound
	}
	r.adjustments[id] = adj
	return nil
}

// Adjustment returns the stored values or the defaults
func (r *Review) Adjustment(id uuid.UUID) processing.Adjustment {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.adjustments[id]; ok {
		return a
	}
	return processing.DefaultAdjustment
}

func (r *Review) Photo(id uuid.UUID) (ReviewPhoto, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(id)
	if i < 0 {
		return ReviewPhoto{}, ErrNotFound
	}
	return r.photos[i], nil
}

func (r *Review) State() ReviewState {
	r.mu.Lock()
	defer r.mu.Unlock()
	adj := make(map[uuid.UUID]processing.Adjustment, len(r.adjustments))
	for k, v := range r.adjustments {
		adj[k] = v
	}
	return ReviewState{
		UserID:      r.userID,
		UserName:    r.userName,
		Folders:     append([]string(nil), r.folders...),
		Folder:      r.folder,
		Photos:      append([]ReviewPhoto(nil), r.photos...),
		Adjustments: adj,
		Approving:   r.approving,
	}
}

// ApprovalItem is one photo to export, with its adjustment resolved
type ApprovalItem struct {
	Photo      ReviewPhoto
	Adjustment processing.Adjustment
}

// Approval is what BeginApprove freezes
type Approval struct {
	UserID uint64
	Folder string
	Items  []ApprovalItem
}

func (r *Review) BeginApprove() (Approval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.approving {
		return Approval{}, ErrSubmitting
	}
	if r.userID == 0 || r.folder == "" || len(r.photos) == 0 {
		return Approval{}, ErrEmpty
	}
	r.approving = true
	a := Approval{UserID: r.userID, Folder: r.folder}
	for _, p := range r.photos {
		adj, ok := r.adjustments[p.ID]
		if !ok {
			adj = processing.DefaultAdjustment
		}
		a.Items = append(a.Items, ApprovalItem{Photo: p, Adjustment: adj})
	}
	return a, nil
}

// EndApprove unfreezes the set. After a successful approval the backend has
// consumed the folder, so the folder selection is cleared.
func (r *Review) EndApprove(success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.approving = false
	if success {
		r.folder = ""
		r.resetPhotos()
	}
}

func (r *Review) resetPhotos() {
	r.photos = nil
	r.adjustments = map[uuid.UUID]processing.Adjustment{}
}

func (r *Review) indexOf(id uuid.UUID) int {
	for i := range r.photos {
		if r.photos[i].ID == id {
			return i
		}
	}
	return -1
}
