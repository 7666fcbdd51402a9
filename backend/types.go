package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// User is the record returned by login_or_register
type User struct {
	ID        uint64 `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// UserSummary is one entry of get_users
type UserSummary struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

// Identity is what the login form submits
type Identity struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// PhotoRef accepts both "http://..." and {"url": "http://..."}
type PhotoRef struct {
	URL string
}

func (p *PhotoRef) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		p.URL = s
		return nil
	}
	var obj struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("photo reference: %w", err)
	}
	p.URL = obj.URL
	return nil
}

// Part is one file of a multipart batch
type Part struct {
	FileName    string
	ContentType string
	Body        io.Reader
}

// Stream is a proxied download, the caller closes Body
type Stream struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

// ErrUnavailable wraps transport failures and undecodable responses
var ErrUnavailable = errors.New("backend unavailable")

// RejectedError is a refusal reported by the backend itself
type RejectedError struct {
	Status int
	Detail string
}

func (e *RejectedError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend rejected the request (status %d)", e.Status)
	}
	return fmt.Sprintf("backend rejected the request (status %d): %s", e.Status, e.Detail)
}

// IsRejected returns the RejectedError inside err, if any
func IsRejected(err error) (*RejectedError, bool) {
	var re *RejectedError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

type loginResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	User    User            `json:"user"`
	Detail  json.RawMessage `json:"detail"`
}

type approverResponse struct {
	IsApprover bool `json:"is_approver"`
}

type usersResponse struct {
	Users []UserSummary `json:"users"`
}

type foldersResponse struct {
	Folders []string `json:"folders"`
}

type photosResponse struct {
	Photos []PhotoRef `json:"photos"`
}

type videosResponse struct {
	VideoURLs []string `json:"video_urls"`
}

// errorResponse is the FastAPI error body, detail is a string or a list of
// validation errors
type errorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

func detailText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return list[0].Msg
	}
	return ""
}
