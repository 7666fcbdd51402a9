package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"photoman/logger"
	"photoman/metrics"
)

const (
	maxJSONBody  = 4 << 20
	maxPhotoBody = 64 << 20
)

// Client talks to the photo backend. It is safe for concurrent use.
type Client struct {
	base *url.URL
	http *http.Client
}

func New(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("backend url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend url %q: missing scheme or host", baseURL)
	}
	return &Client{
		base: u,
		http: &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) BaseURL() string {
	return c.base.String()
}

// Ping succeeds when the backend answers at all, whatever the status
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.String(), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	res, err := c.do(req, "/")
	if err != nil {
		if _, ok := IsRejected(err); ok {
			return nil
		}
		return err
	}
	res.Body.Close()
	return nil
}

// LoginOrRegister returns the existing user for the email or creates it
func (c *Client) LoginOrRegister(ctx context.Context, id Identity) (User, error) {
	var resp loginResponse
	if err := c.postJSON(ctx, "/login_or_register", id, &resp); err != nil {
		return User{}, err
	}
	if !resp.Success {
		return User{}, &RejectedError{Status: http.StatusOK, Detail: detailText(resp.Detail)}
	}
	return resp.User, nil
}

func (c *Client) IsApprover(ctx context.Context, email string) (bool, error) {
	var resp approverResponse
	if err := c.postJSON(ctx, "/approvercheck", map[string]string{"email": email}, &resp); err != nil {
		return false, err
	}
	return resp.IsApprover, nil
}

func (c *Client) Users(ctx context.Context) ([]UserSummary, error) {
	var resp usersResponse
	if err := c.getJSON(ctx, "/get_users", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

func (c *Client) Folders(ctx context.Context, userID uint64) ([]string, error) {
	var resp foldersResponse
	q := url.Values{"user_id": {strconv.FormatUint(userID, 10)}}
	if err := c.getJSON(ctx, "/get_folders", q, &resp); err != nil {
		return nil, err
	}
	return resp.Folders, nil
}

// Photos returns absolute photo URLs, relative ones are resolved against
// the backend host
func (c *Client) Photos(ctx context.Context, userID uint64, folder string) ([]string, error) {
	var resp photosResponse
	q := url.Values{
		"user_id": {strconv.FormatUint(userID, 10)},
		"folder":  {folder},
	}
	if err := c.getJSON(ctx, "/get_photos", q, &resp); err != nil {
		return nil, err
	}
	urls := make([]string, 0, len(resp.Photos))
	for _, p := range resp.Photos {
		if p.URL == "" {
			continue
		}
		urls = append(urls, c.resolve(p.URL))
	}
	if dropped := len(resp.Photos) - len(urls); dropped > 0 {
		log := logger.Get()
		log.Warn().
			Uint64("user_id", userID).
			Str("folder", folder).
			Int("dropped", dropped).
			Int("listed", len(resp.Photos)).
			Msg("photos without url")
	}
	return urls, nil
}

// FetchPhoto downloads one photo returned by Photos
func (c *Client) FetchPhoto(ctx context.Context, photoURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve(photoURL), nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	res, err := c.do(req, "/get_photo")
	if err != nil {
		return nil, "", err
	}
	defer res.Body.Close()
	data, err := io.ReadAll(io.LimitReader(res.Body, maxPhotoBody))
	if err != nil {
		return nil, "", fmt.Errorf("%w: read photo: %v", ErrUnavailable, err)
	}
	return data, res.Header.Get("Content-Type"), nil
}

func (c *Client) Videos(ctx context.Context, userID uint64) ([]string, error) {
	var resp videosResponse
	q := url.Values{"user_id": {strconv.FormatUint(userID, 10)}}
	if err := c.getJSON(ctx, "/videos", q, &resp); err != nil {
		return nil, err
	}
	return resp.VideoURLs, nil
}

// DownloadURL is the backend address of a rendered video
func (c *Client) DownloadURL(userID uint64, filename string) string {
	return c.base.JoinPath("download", strconv.FormatUint(userID, 10), url.PathEscape(filename)).String()
}

// Download streams a rendered video
func (c *Client) Download(ctx context.Context, userID uint64, filename string) (*Stream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.DownloadURL(userID, filename), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	res, err := c.do(req, "/download")
	if err != nil {
		return nil, err
	}
	return &Stream{
		Body:          res.Body,
		ContentType:   res.Header.Get("Content-Type"),
		ContentLength: res.ContentLength,
	}, nil
}

// Upload sends a user's photos, each as a "photos" field
func (c *Client) Upload(ctx context.Context, userID uint64, parts []Part) error {
	fields := map[string]string{"user_id": strconv.FormatUint(userID, 10)}
	return c.postMultipart(ctx, "/upload", fields, parts)
}

// ApprovePhotos sends the rendered photos of one folder
func (c *Client) ApprovePhotos(ctx context.Context, userID uint64, folder string, parts []Part) error {
	fields := map[string]string{
		"user_id": strconv.FormatUint(userID, 10),
		"folder":  folder,
	}
	return c.postMultipart(ctx, "/approve_photos", fields, parts)
}

func (c *Client) resolve(ref string) string {
	u, err := url.Parse(ref)
	if err != nil || u.IsAbs() {
		return ref
	}
	return c.base.ResolveReference(u).String()
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := c.base.JoinPath(path)
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, q), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return c.doJSON(req, path, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("backend %s: encode: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path, nil), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doJSON(req, path, out)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func (c *Client) postMultipart(ctx context.Context, path string, fields map[string]string, parts []Part) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return fmt.Errorf("backend %s: %w", path, err)
		}
	}
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="photos"; filename="%s"`, quoteEscaper.Replace(p.FileName)))
		ct := p.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		pw, err := w.CreatePart(h)
		if err != nil {
			return fmt.Errorf("backend %s: %w", path, err)
		}
		if _, err = io.Copy(pw, p.Body); err != nil {
			return fmt.Errorf("backend %s: read %s: %w", path, p.FileName, err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("backend %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path, nil), &body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	res, err := c.do(req, path)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxJSONBody))
	res.Body.Close()
	return nil
}

func (c *Client) doJSON(req *http.Request, path string, out any) error {
	res, err := c.do(req, path)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if err = json.NewDecoder(io.LimitReader(res.Body, maxJSONBody)).Decode(out); err != nil {
		return fmt.Errorf("%w: %s: decode: %v", ErrUnavailable, path, err)
	}
	return nil
}

// do sends the request and turns non-2xx answers into a RejectedError.
// The response body is open only when err is nil.
func (c *Client) do(req *http.Request, endpoint string) (*http.Response, error) {
	log := logger.Get()
	start := time.Now()
	res, err := c.http.Do(req)
	metrics.BackendRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.BackendRequestsTotal.WithLabelValues(endpoint, "unavailable").Inc()
		log.Warn().Err(err).Str("endpoint", endpoint).Msg("backend call failed")
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, endpoint, err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		defer res.Body.Close()
		var body errorResponse
		_ = json.NewDecoder(io.LimitReader(res.Body, maxJSONBody)).Decode(&body)
		metrics.BackendRequestsTotal.WithLabelValues(endpoint, "rejected").Inc()
		log.Info().Str("endpoint", endpoint).Int("status", res.StatusCode).Msg("backend rejected request")
		return nil, &RejectedError{Status: res.StatusCode, Detail: detailText(body.Detail)}
	}
	metrics.BackendRequestsTotal.WithLabelValues(endpoint, "ok").Inc()
	log.Debug().Str("endpoint", endpoint).Int("status", res.StatusCode).Dur("took", time.Since(start)).Msg("backend call")
	return res, nil
}
