// Package bykc implements the client for the university's extracurricular
// course enrollment service. The service speaks a proprietary encrypted RPC
// protocol: every call carries an AES-encrypted JSON body plus RSA-wrapped
// key and signature headers, authenticated by a session token obtained
// through the campus single-sign-on.
package bykc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/bykc-hub/bykc-assistant/internal/domain/course"
	"github.com/bykc-hub/bykc-assistant/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the enrollment service client.
type ClientConfig struct {
	// RootURL is the service root; every endpoint lives under "/sscv/".
	RootURL string

	// UserAgent is sent on every request.
	UserAgent string

	// PublicKeyPEM is the service's fixed RSA public key for the wire
	// envelope.
	PublicKeyPEM string

	// EmployeeID is the expected employee id of the authenticated user. When
	// set, soft-login probes verify the cached token belongs to this user.
	EmployeeID string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// MaxAttempts bounds the retrying call layer (including the first
	// attempt).
	MaxAttempts int

	// RetryDelay is the fixed backoff between transient-failure attempts.
	RetryDelay time.Duration

	// Logger for structured logging.
	Logger *slog.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(rootURL string) ClientConfig {
	return ClientConfig{
		RootURL:     rootURL,
		Timeout:     30 * time.Second,
		MaxAttempts: 3,
		RetryDelay:  time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client issues encrypted calls against the enrollment service. It owns the
// wire codec and recovers expired sessions transparently inside Call's retry
// loop.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	codec      *Codec
	session    *Session
	mapper     *Mapper
	logger     *slog.Logger
}

// NewClient creates a client over an existing session.
func NewClient(config ClientConfig, session *Session) (*Client, error) {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}

	codec, err := NewCodec(config.PublicKeyPEM)
	if err != nil {
		return nil, err
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
			// The service signals an expired token with a 302; it must reach
			// callRaw, not be followed.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		codec:   codec,
		session: session,
		mapper:  NewMapper(),
		logger:  config.Logger,
	}, nil
}

// Session exposes the underlying session for lifecycle management (initial
// login at startup, logout on shutdown).
func (c *Client) Session() *Session {
	return c.session
}

// ══════════════════════════════════════════════════════════════════════════════
// CALL LAYERS
// ══════════════════════════════════════════════════════════════════════════════

// call wraps callRaw in a bounded retry loop.
//
// Session expiry triggers a soft login before the next attempt; a failed
// login is recorded as the last error but does not abort the loop. Other
// transient errors wait a fixed short backoff. Business errors reflect
// real-world state and propagate immediately. When the budget runs out the
// last recorded error surfaces verbatim.
func (c *Client) call(ctx context.Context, api string, payload, out any) error {
	var lastErr error

	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		err := c.callRaw(ctx, api, payload, out)
		if err == nil {
			return nil
		}
		lastErr = err

		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Transient() {
			return err
		}

		if IsSessionExpired(err) {
			c.logger.Info("session expired, attempting soft login", "api", api, "attempt", attempt)
			if loginErr := c.SoftLogin(ctx); loginErr != nil {
				lastErr = loginErr
				if sleepErr := sleepCtx(ctx, c.config.RetryDelay); sleepErr != nil {
					return lastErr
				}
			}
			continue
		}

		if sleepErr := sleepCtx(ctx, c.config.RetryDelay); sleepErr != nil {
			return lastErr
		}
	}

	return lastErr
}

// callRaw issues exactly one encrypted request and classifies the response.
func (c *Client) callRaw(ctx context.Context, api string, payload, out any) error {
	token := c.session.Token()
	if token == "" {
		// Fail fast: a request without a token can never succeed and must
		// not reach the network.
		return newError(KindSessionExpired, "no session token")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return newError(KindUnknown, "marshal request: %v", err)
	}

	env, key, err := c.codec.Encode(body)
	if err != nil {
		return newError(KindUnknown, "encode request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.RootURL+"/sscv/"+api, bytes.NewReader(env.Payload))
	if err != nil {
		return newError(KindUnknown, "create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json;charset=utf-8")
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("auth_token", token)
	req.Header.Set("authtoken", token)
	req.Header.Set("ak", env.AK)
	req.Header.Set("sk", env.SK)
	req.Header.Set("ts", env.TS)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return newError(KindUnknown, "network error: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return newError(KindUnknown, "read response: %v", err)
	}

	if resp.StatusCode == http.StatusFound {
		return newError(KindSessionExpired, "login expired")
	}
	if resp.StatusCode != http.StatusOK {
		return newError(KindUnknown, "server answered http status %d", resp.StatusCode)
	}

	raw, err := base64.StdEncoding.DecodeString(string(respBody))
	if err != nil {
		return newError(KindUnknown, "unable to parse response: %v", err)
	}

	// An undecryptable payload is how the service signals an invalid token,
	// not a transport fault.
	plain, err := c.codec.Decode(raw, key)
	if err != nil {
		return newError(KindSessionExpired, "failed to decrypt response, usually an expired login: %v", err)
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(plain, &envelope); err != nil {
		return newError(KindSessionExpired, "failed to parse decrypted response: %v", err)
	}

	status := envelope.Status.String()
	if status != "0" {
		return classifyStatus(status, envelope.ErrMsg)
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return newError(KindUnknown, "unmarshal response data: %v", err)
		}
	}
	return nil
}

// SoftLogin recovers the session, preferring the cached token verified by a
// profile probe.
func (c *Client) SoftLogin(ctx context.Context) error {
	return c.session.SoftLogin(ctx, c.probeProfile)
}

// probeProfile is the lightweight authenticated call behind soft login. It
// bypasses the retry layer on purpose: a failed probe must fall through to a
// full login, not trigger recursive recovery.
func (c *Client) probeProfile(ctx context.Context) error {
	var profile ProfileDTO
	if err := c.callRaw(ctx, "getUserProfile", struct{}{}, &profile); err != nil {
		return err
	}
	if c.config.EmployeeID != "" && profile.EmployeeID != c.config.EmployeeID {
		return newError(KindSessionExpired, "cached token belongs to %s, expected %s", profile.EmployeeID, c.config.EmployeeID)
	}
	return nil
}

// sleepCtx waits for d or until the context is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// NAMED OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetUserProfile fetches the authenticated user's profile.
func (c *Client) GetUserProfile(ctx context.Context) (*ProfileDTO, error) {
	var profile ProfileDTO
	if err := c.call(ctx, "getUserProfile", struct{}{}, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// ListSemesterCourses fetches one page of the current term's catalog.
func (c *Client) ListSemesterCourses(ctx context.Context, pageNumber, pageSize int) (*CoursePageDTO, error) {
	payload := map[string]int{"pageNumber": pageNumber, "pageSize": pageSize}
	var page CoursePageDTO
	if err := c.call(ctx, "queryStudentSemesterCourseByPage", payload, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetCourse fetches a single course by id.
func (c *Client) GetCourse(ctx context.Context, courseID int64) (*CourseDTO, error) {
	payload := map[string]int64{"id": courseID}
	var dto CourseDTO
	if err := c.call(ctx, "queryCourseById", payload, &dto); err != nil {
		return nil, err
	}
	return &dto, nil
}

// GetAllConfig fetches the service configuration (campus, college, role,
// semester, term); semester boundaries drive the chosen-course queries.
func (c *Client) GetAllConfig(ctx context.Context) (*AllConfigDTO, error) {
	var cfg AllConfigDTO
	if err := c.call(ctx, "getAllConfig", struct{}{}, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ListChosenCourses fetches the chosen courses of the current semester.
func (c *Client) ListChosenCourses(ctx context.Context) (*ChosenListDTO, error) {
	cfg, err := c.GetAllConfig(ctx)
	if err != nil {
		return nil, err
	}
	if len(cfg.Semester) == 0 {
		return nil, newError(KindUnknown, "service reported no semesters")
	}
	return c.listChosenBetween(ctx, cfg.Semester[0].SemesterStartDate, cfg.Semester[0].SemesterEndDate)
}

// ListChosenCoursesBySemester fetches the chosen courses of a specific
// semester, resolved against the configuration listing.
func (c *Client) ListChosenCoursesBySemester(ctx context.Context, semesterID int64) (*ChosenListDTO, error) {
	cfg, err := c.GetAllConfig(ctx)
	if err != nil {
		return nil, err
	}
	for _, sem := range cfg.Semester {
		if sem.ID == semesterID {
			return c.listChosenBetween(ctx, sem.SemesterStartDate, sem.SemesterEndDate)
		}
	}
	return nil, newError(KindUnknown, "no such semester: %d", semesterID)
}

// ListChosenCoursesBetween fetches the chosen courses in an explicit range.
func (c *Client) ListChosenCoursesBetween(ctx context.Context, start, end time.Time) (*ChosenListDTO, error) {
	return c.listChosenBetween(ctx, timeutil.FormatCourseTime(start), timeutil.FormatCourseTime(end))
}

func (c *Client) listChosenBetween(ctx context.Context, startDate, endDate string) (*ChosenListDTO, error) {
	payload := map[string]string{"startDate": startDate, "endDate": endDate}
	var list ChosenListDTO
	if err := c.call(ctx, "queryChosenCourse", payload, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// ChooseCourse selects a course by id.
func (c *Client) ChooseCourse(ctx context.Context, courseID int64) (*ChooseResultDTO, error) {
	payload := map[string]int64{"courseId": courseID}
	var result ChooseResultDTO
	if err := c.call(ctx, "choseCourse", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DropCourse withdraws a previously chosen course by id.
func (c *Client) DropCourse(ctx context.Context, courseID int64) (*ChooseResultDTO, error) {
	payload := map[string]int64{"id": courseID}
	var result ChooseResultDTO
	if err := c.call(ctx, "delChosenCourse", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN-LEVEL HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// FetchCourseSnapshot fetches a course and maps it to a domain snapshot.
func (c *Client) FetchCourseSnapshot(ctx context.Context, courseID int64) (course.Snapshot, error) {
	dto, err := c.GetCourse(ctx, courseID)
	if err != nil {
		return course.Snapshot{}, err
	}
	return c.mapper.SnapshotFromCourse(*dto)
}

// FetchCatalogSnapshots pages through the whole semester catalog and maps it
// to domain snapshots.
func (c *Client) FetchCatalogSnapshots(ctx context.Context, pageSize int) ([]course.Snapshot, error) {
	if pageSize <= 0 {
		pageSize = 100
	}

	var snaps []course.Snapshot
	for pageNumber := 1; ; pageNumber++ {
		page, err := c.ListSemesterCourses(ctx, pageNumber, pageSize)
		if err != nil {
			return nil, err
		}
		mapped, err := c.mapper.SnapshotsFromPage(page)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, mapped...)

		if len(page.Content) < pageSize || (page.TotalPages > 0 && pageNumber >= page.TotalPages) {
			return snaps, nil
		}
	}
}

// FetchChosenSnapshots fetches the current semester's chosen courses and maps
// them to domain snapshots, every one carrying the selected flag.
func (c *Client) FetchChosenSnapshots(ctx context.Context) ([]course.Snapshot, error) {
	list, err := c.ListChosenCourses(ctx)
	if err != nil {
		return nil, err
	}
	return c.mapper.SnapshotsFromChosen(list)
}
