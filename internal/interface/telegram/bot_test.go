package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bykc-hub/bykc-assistant/internal/application/command"
	"github.com/bykc-hub/bykc-assistant/internal/domain/course"
	tgapi "github.com/bykc-hub/bykc-assistant/internal/infrastructure/external/telegram"
)

const operatorChat int64 = 1000

// ─────────────────────────────────────────────────────────────────────────────
// Test doubles
// ─────────────────────────────────────────────────────────────────────────────

// apiCall is one captured Bot API request.
type apiCall struct {
	method string
	body   map[string]any
}

// fakeBotAPI captures every Bot API call and answers ok.
type fakeBotAPI struct {
	mu    sync.Mutex
	calls []apiCall
}

func (f *fakeBotAPI) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(r.URL.Path, "/")
		method := parts[len(parts)-1]

		var body map[string]any
		if raw, err := io.ReadAll(r.Body); err == nil && len(raw) > 0 {
			_ = json.Unmarshal(raw, &body)
		}

		f.mu.Lock()
		f.calls = append(f.calls, apiCall{method: method, body: body})
		f.mu.Unlock()

		var result any = true
		if method == "sendMessage" {
			result = map[string]any{"message_id": 1, "chat": map[string]any{"id": operatorChat}}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
	}
}

func (f *fakeBotAPI) sent(method string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, c := range f.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

// botRepo is a map-backed Repository with real compare-and-set semantics.
type botRepo struct {
	mu      sync.Mutex
	records map[int64]*course.Record
}

func newBotRepo() *botRepo {
	return &botRepo{records: make(map[int64]*course.Record)}
}

func (r *botRepo) Get(ctx context.Context, id int64) (*course.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, course.ErrRecordNotFound
	}
	clone := *rec
	return &clone, nil
}

func (r *botRepo) Save(ctx context.Context, rec *course.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *rec
	if existing, ok := r.records[rec.ID]; ok {
		clone.Status = existing.Status
		clone.Notified = existing.Notified
	}
	r.records[rec.ID] = &clone
	return nil
}

func (r *botRepo) ListByStatus(ctx context.Context, status course.Status) ([]*course.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*course.Record
	for _, rec := range r.records {
		if rec.Status == status {
			clone := *rec
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *botRepo) TransitionStatus(ctx context.Context, id int64, from, to course.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return course.ErrRecordNotFound
	}
	if rec.Status != from {
		return course.ErrStatusConflict
	}
	rec.Status = to
	return nil
}

func (r *botRepo) SetNotified(ctx context.Context, id int64, notified bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[id]; ok {
		rec.Notified = notified
	}
	return nil
}

// botService answers every snapshot and choose with fixed values.
type botService struct {
	snap    course.Snapshot
	outcome command.ChooseOutcome
}

func (s *botService) Snapshot(ctx context.Context, courseID int64) (course.Snapshot, error) {
	snap := s.snap
	snap.ID = courseID
	return snap, nil
}

func (s *botService) Catalog(ctx context.Context) ([]course.Snapshot, error) {
	return []course.Snapshot{s.snap}, nil
}

func (s *botService) Chosen(ctx context.Context) ([]course.Snapshot, error) {
	return nil, nil
}

func (s *botService) Choose(ctx context.Context, courseID int64) (command.ChooseOutcome, error) {
	return s.outcome, nil
}

func (s *botService) Drop(ctx context.Context, courseID int64) error { return nil }

type noopNotifier struct{}

func (noopNotifier) NewCourse(ctx context.Context, rec *course.Record) error { return nil }
func (noopNotifier) StatusChanged(ctx context.Context, rec *course.Record, from, to course.Status) error {
	return nil
}

type noopArmer struct{}

func (noopArmer) Arm(courseID int64, selectStart time.Time) {}
func (noopArmer) Cancel(courseID int64)                     {}

// newTestBot wires a bot over a fake Bot API and in-memory collaborators.
func newTestBot(t *testing.T, repo *botRepo, svc *botService) (*Bot, *fakeBotAPI) {
	t.Helper()

	api := &fakeBotAPI{}
	server := httptest.NewServer(api.handler())
	t.Cleanup(server.Close)

	clientConfig := tgapi.DefaultClientConfig("test-token")
	clientConfig.BaseURL = server.URL
	client := tgapi.NewClient(clientConfig)

	observe := command.NewObserveSnapshotHandler(repo, noopNotifier{}, noopArmer{}, nil)
	choose := command.NewChooseCourseHandler(repo, svc, observe, noopArmer{}, noopNotifier{}, nil)
	cancel := command.NewCancelCourseHandler(repo, svc, noopArmer{}, noopNotifier{}, nil)

	return NewBot(DefaultBotConfig(operatorChat), client, repo, choose, cancel), api
}

func operatorMessage(text string) *tgapi.Update {
	return &tgapi.Update{
		UpdateID: 1,
		Message: &tgapi.Message{
			Chat: tgapi.Chat{ID: operatorChat},
			Text: text,
		},
	}
}

func openSnapshot(now time.Time) course.Snapshot {
	return course.Snapshot{
		Name:            "航天概论",
		Teacher:         "王老师",
		SelectStartDate: now.Add(-time.Hour),
		SelectEndDate:   now.Add(24 * time.Hour),
		CancelEndDate:   now.Add(48 * time.Hour),
		StartDate:       now.Add(72 * time.Hour),
		MaxCount:        100,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Tests
// ─────────────────────────────────────────────────────────────────────────────

func TestBot_ForeignChatIsDropped(t *testing.T) {
	bot, api := newTestBot(t, newBotRepo(), &botService{})

	bot.handleUpdate(context.Background(), &tgapi.Update{
		UpdateID: 1,
		Message: &tgapi.Message{
			Chat: tgapi.Chat{ID: operatorChat + 1},
			Text: "/list",
		},
	})

	assert.Empty(t, api.sent("sendMessage"))
}

func TestBot_ChooseCommandClaimsSeat(t *testing.T) {
	repo := newBotRepo()
	svc := &botService{snap: openSnapshot(time.Now()), outcome: command.ChooseOK}
	bot, api := newTestBot(t, repo, svc)

	bot.handleUpdate(context.Background(), operatorMessage("/choose 42"))

	sent := api.sent("sendMessage")
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].body["text"], "selected")

	rec, err := repo.Get(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, course.StatusSelected, rec.Status)
}

func TestBot_ChooseRejectsBadArguments(t *testing.T) {
	bot, api := newTestBot(t, newBotRepo(), &botService{})

	bot.handleUpdate(context.Background(), operatorMessage("/choose"))
	bot.handleUpdate(context.Background(), operatorMessage("/choose not-a-number"))

	sent := api.sent("sendMessage")
	require.Len(t, sent, 2)
	for _, call := range sent {
		assert.Contains(t, call.body["text"], "Usage")
	}
}

func TestBot_ListRendersHeldCourses(t *testing.T) {
	repo := newBotRepo()
	now := time.Now()
	repo.records[7] = &course.Record{
		ID:        7,
		Name:      "航天概论",
		StartDate: now,
		Status:    course.StatusSelected,
	}
	bot, api := newTestBot(t, repo, &botService{})

	bot.handleUpdate(context.Background(), operatorMessage("/list"))

	sent := api.sent("sendMessage")
	require.Len(t, sent, 1)
	text, _ := sent[0].body["text"].(string)
	assert.Contains(t, text, "航天概论")
	assert.Contains(t, text, "selected")
}

func TestBot_ListWithNothingTracked(t *testing.T) {
	bot, api := newTestBot(t, newBotRepo(), &botService{})

	bot.handleUpdate(context.Background(), operatorMessage("/list"))

	sent := api.sent("sendMessage")
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].body["text"], "Nothing held")
}

func TestBot_CallbackChoosesCourse(t *testing.T) {
	repo := newBotRepo()
	svc := &botService{snap: openSnapshot(time.Now()), outcome: command.ChooseOK}
	bot, api := newTestBot(t, repo, svc)

	bot.handleUpdate(context.Background(), &tgapi.Update{
		UpdateID: 1,
		CallbackQuery: &tgapi.CallbackQuery{
			ID:      "cb-1",
			Data:    "choose:42",
			Message: &tgapi.Message{Chat: tgapi.Chat{ID: operatorChat}},
		},
	})

	answered := api.sent("answerCallbackQuery")
	require.Len(t, answered, 1)
	assert.Contains(t, answered[0].body["text"], "selected")

	rec, err := repo.Get(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, course.StatusSelected, rec.Status)
}

func TestBot_CallbackFromForeignChatIsAnsweredBlank(t *testing.T) {
	bot, api := newTestBot(t, newBotRepo(), &botService{})

	bot.handleUpdate(context.Background(), &tgapi.Update{
		UpdateID: 1,
		CallbackQuery: &tgapi.CallbackQuery{
			ID:      "cb-1",
			Data:    "choose:42",
			Message: &tgapi.Message{Chat: tgapi.Chat{ID: operatorChat + 5}},
		},
	})

	answered := api.sent("answerCallbackQuery")
	require.Len(t, answered, 1)
	_, hasText := answered[0].body["text"]
	assert.False(t, hasText)
	assert.Empty(t, api.sent("sendMessage"))
}

func TestParseCourseID(t *testing.T) {
	id, err := parseCourseID([]string{"42"})
	require.NoError(t, err)
	assert.EqualValues(t, 42, id)

	_, err = parseCourseID(nil)
	assert.Error(t, err)
	_, err = parseCourseID([]string{"42", "43"})
	assert.Error(t, err)
}

func TestEscapeHTML(t *testing.T) {
	assert.Equal(t, "a &amp;&lt;b&gt;", escapeHTML("a &<b>"))
}
