package service

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/examcore/internal/config"
	"github.com/stemsi/examcore/internal/events"
	"github.com/stemsi/examcore/internal/model"
	"github.com/stemsi/examcore/internal/repository"
)

const (
	teacherID = 1
	studentID = 100
	otherID   = 101
)

var (
	teacher = Caller{UserID: teacherID, Role: model.RoleTeacher}
	student = Caller{UserID: studentID, Role: model.RoleStudent}
	other   = Caller{UserID: otherID, Role: model.RoleStudent}
)

// ---------------------------------------------------------------------------
// Clock
// ---------------------------------------------------------------------------

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// ---------------------------------------------------------------------------
// Exams and questions
// ---------------------------------------------------------------------------

type memExams struct {
	mu   sync.Mutex
	rows map[uuid.UUID]model.Exam
}

func (m *memExams) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &e, nil
}

func (m *memExams) ListByOwnerPaginated(_ context.Context, ownerID, limit, offset int) ([]model.Exam, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Exam, 0)
	for _, e := range m.rows {
		if ownerID == 0 || e.OwnerID == ownerID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	total := int64(len(out))
	if offset >= len(out) {
		return []model.Exam{}, total, nil
	}
	end := min(offset+limit, len(out))
	return out[offset:end], total, nil
}

func (m *memExams) Create(_ context.Context, e *model.Exam) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = uuid.New()
	m.rows[e.ID] = *e
	return nil
}

func (m *memExams) Update(_ context.Context, e *model.Exam) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[e.ID]; !ok {
		return pgx.ErrNoRows
	}
	m.rows[e.ID] = *e
	return nil
}

func (m *memExams) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(m.rows, id)
	return nil
}

type memQuestions struct {
	mu   sync.Mutex
	rows map[uuid.UUID]model.Question
}

func (m *memQuestions) GetByID(_ context.Context, id uuid.UUID) (*model.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &q, nil
}

func (m *memQuestions) ListByExam(_ context.Context, examID uuid.UUID) ([]model.Question, error) {
	return m.list(examID), nil
}

func (m *memQuestions) list(examID uuid.UUID) []model.Question {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Question, 0)
	for _, q := range m.rows {
		if q.ExamID == examID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderNum < out[j].OrderNum })
	return out
}

func (m *memQuestions) Create(_ context.Context, q *model.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q.ID = uuid.New()
	m.rows[q.ID] = *q
	return nil
}

func (m *memQuestions) Update(_ context.Context, q *model.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.rows[q.ID]
	if !ok || cur.ExamID != q.ExamID {
		return pgx.ErrNoRows
	}
	m.rows[q.ID] = *q
	return nil
}

func (m *memQuestions) Delete(_ context.Context, examID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.rows[id]
	if !ok || cur.ExamID != examID {
		return pgx.ErrNoRows
	}
	delete(m.rows, id)
	return nil
}

type memPaperCache struct {
	mu          sync.Mutex
	papers      map[uuid.UUID]model.ExamPaper
	hits        int
	invalidated int
}

func (c *memPaperCache) Get(_ context.Context, examID uuid.UUID) (*model.ExamPaper, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.papers[examID]
	if !ok {
		return nil, nil
	}
	c.hits++
	return &p, nil
}

func (c *memPaperCache) Set(_ context.Context, paper *model.ExamPaper, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.papers[paper.ExamID] = *paper
	return nil
}

func (c *memPaperCache) Invalidate(_ context.Context, examID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.papers, examID)
	c.invalidated++
	return nil
}

// ---------------------------------------------------------------------------
// Attempts
// ---------------------------------------------------------------------------

// memAttempts mirrors the guarantees of the Postgres store under one mutex:
// at most one in-progress attempt per (user, exam), status-guarded response
// writes and a conditional close.
type memAttempts struct {
	mu        sync.Mutex
	questions *memQuestions
	rows      map[uuid.UUID]*model.Attempt
	responses map[uuid.UUID][]model.Response
}

func (m *memAttempts) Create(_ context.Context, a *model.Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.UserID == a.UserID && row.ExamID == a.ExamID && row.Status == model.AttemptStatusInProgress {
			return repository.ErrActiveAttemptExists
		}
	}
	a.ID = uuid.New()
	a.Status = model.AttemptStatusInProgress
	a.Active = true
	a.CreatedAt = a.StartedAt
	row := *a
	m.rows[a.ID] = &row
	return nil
}

func (m *memAttempts) GetByID(_ context.Context, id uuid.UUID) (*model.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	a := *row
	return &a, nil
}

func (m *memAttempts) GetActive(_ context.Context, userID int, examID uuid.UUID) (*model.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.UserID == userID && row.ExamID == examID && row.Status == model.AttemptStatusInProgress {
			a := *row
			return &a, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memAttempts) ListByUser(_ context.Context, userID int) ([]model.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Attempt, 0)
	for _, row := range m.rows {
		if row.UserID == userID {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memAttempts) ListByExam(_ context.Context, examID uuid.UUID, f model.AttemptFilter, limit, offset int) ([]repository.AttemptResult, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]repository.AttemptResult, 0)
	for _, row := range m.rows {
		if row.ExamID != examID {
			continue
		}
		if f.Status != nil && row.Status != *f.Status {
			continue
		}
		if f.UserID != nil && row.UserID != *f.UserID {
			continue
		}
		out = append(out, repository.AttemptResult{Attempt: *row})
	}
	total := int64(len(out))
	if offset >= len(out) {
		return []repository.AttemptResult{}, total, nil
	}
	return out[offset:min(offset+limit, len(out))], total, nil
}

func (m *memAttempts) ListResponses(_ context.Context, attemptID uuid.UUID) ([]model.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Response{}, m.responses[attemptID]...), nil
}

func (m *memAttempts) UpsertResponses(_ context.Context, attemptID uuid.UUID, responses []model.Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[attemptID]
	if !ok {
		return pgx.ErrNoRows
	}
	if row.Status != model.AttemptStatusInProgress {
		return repository.ErrAttemptNotInProgress
	}

	stored := m.responses[attemptID]
	for i := range responses {
		resp := &responses[i]
		resp.AttemptID = attemptID
		replaced := false
		for j := range stored {
			if stored[j].QuestionID == resp.QuestionID {
				resp.ID = stored[j].ID
				stored[j] = *resp
				replaced = true
				break
			}
		}
		if !replaced {
			resp.ID = uuid.New()
			stored = append(stored, *resp)
		}
	}
	m.responses[attemptID] = stored
	return nil
}

func (m *memAttempts) Close(_ context.Context, id uuid.UUID, p repository.CloseParams, grade repository.GradeFunc) (*model.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	if row.Status != model.AttemptStatusInProgress {
		return nil, repository.ErrAttemptNotInProgress
	}

	endedAt, reason := p.EndedAt, p.Reason
	row.Status = model.AttemptStatusSubmitted
	row.Active = false
	row.EndedAt = &endedAt
	row.OverTime = p.OverTime
	row.SubmitReason = &reason

	if grade != nil {
		m.applyGrade(row, grade)
	}
	a := *row
	a.Responses = append([]model.Response{}, m.responses[id]...)
	return &a, nil
}

func (m *memAttempts) Regrade(_ context.Context, id uuid.UUID, grade repository.GradeFunc) (*model.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	if row.Status == model.AttemptStatusInProgress {
		return nil, repository.ErrAttemptInProgress
	}
	m.applyGrade(row, grade)
	a := *row
	a.Responses = append([]model.Response{}, m.responses[id]...)
	return &a, nil
}

func (m *memAttempts) applyGrade(row *model.Attempt, grade repository.GradeFunc) {
	responses := m.responses[row.ID]
	res := grade(row, m.questions.list(row.ExamID), append([]model.Response{}, responses...))
	for _, o := range res.Outcomes {
		for i := range responses {
			if responses[i].ID == o.ResponseID {
				correct, points := o.Correct, o.Points
				responses[i].IsCorrect = &correct
				responses[i].PointsEarned = &points
			}
		}
	}
	score := res.Score
	row.Status = model.AttemptStatusGraded
	row.Score = &score
}

func (m *memAttempts) ReleaseFeedback(_ context.Context, examID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, row := range m.rows {
		if row.ExamID == examID && row.Status == model.AttemptStatusGraded && !row.FeedbackReleased {
			row.FeedbackReleased = true
			n++
		}
	}
	return n, nil
}

func (m *memAttempts) ReleaseAttemptFeedback(_ context.Context, id uuid.UUID) (*model.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	if row.Status != model.AttemptStatusGraded {
		return nil, repository.ErrAttemptNotGraded
	}
	row.FeedbackReleased = true
	a := *row
	return &a, nil
}

func (m *memAttempts) CountClosed(_ context.Context, userID int, examID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, row := range m.rows {
		if row.UserID == userID && row.ExamID == examID && row.Status != model.AttemptStatusInProgress {
			n++
		}
	}
	return n, nil
}

func (m *memAttempts) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(m.rows, id)
	delete(m.responses, id)
	return nil
}

func (m *memAttempts) countInProgress(userID int, examID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, row := range m.rows {
		if row.UserID == userID && row.ExamID == examID && row.Status == model.AttemptStatusInProgress {
			n++
		}
	}
	return n
}

// ---------------------------------------------------------------------------
// Fraud logs and directory
// ---------------------------------------------------------------------------

type memFraudLogs struct {
	mu   sync.Mutex
	rows []model.FraudLog
}

func (m *memFraudLogs) Create(_ context.Context, l *model.FraudLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.ID = int64(len(m.rows) + 1)
	m.rows = append(m.rows, *l)
	return nil
}

func (m *memFraudLogs) CreateBatch(_ context.Context, logs []model.FraudLog) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range logs {
		l.ID = int64(len(m.rows) + 1)
		m.rows = append(m.rows, l)
	}
	return int64(len(logs)), nil
}

func (m *memFraudLogs) CountByAttempt(_ context.Context, attemptID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range m.rows {
		if l.AttemptID != nil && *l.AttemptID == attemptID {
			n++
		}
	}
	return n, nil
}

func (m *memFraudLogs) ListByAttempt(_ context.Context, attemptID uuid.UUID) ([]model.FraudLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.FraudLog, 0)
	for _, l := range m.rows {
		if l.AttemptID != nil && *l.AttemptID == attemptID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memFraudLogs) ListByExam(_ context.Context, examID uuid.UUID, limit, offset int) ([]model.FraudLog, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.FraudLog, 0)
	for _, l := range m.rows {
		if l.ExamID != nil && *l.ExamID == examID {
			out = append(out, l)
		}
	}
	total := int64(len(out))
	if offset >= len(out) {
		return []model.FraudLog{}, total, nil
	}
	return out[offset:min(offset+limit, len(out))], total, nil
}

type enrolment struct {
	userID int
	examID uuid.UUID
}

type memDirectory struct {
	mu       sync.Mutex
	users    map[int]model.User
	enrolled map[enrolment]bool
}

func (d *memDirectory) GetUserByID(_ context.Context, id int) (*model.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &u, nil
}

func (d *memDirectory) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (d *memDirectory) CreateUser(_ context.Context, u *model.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.users {
		if existing.Email == u.Email {
			return repository.ErrDuplicateEmail
		}
	}
	u.ID = len(d.users) + 1000
	d.users[u.ID] = *u
	return nil
}

func (d *memDirectory) IsEnrolled(_ context.Context, userID int, examID uuid.UUID) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enrolled[enrolment{userID, examID}], nil
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

type harness struct {
	clock     *fakeClock
	exams     *memExams
	questions *memQuestions
	cache     *memPaperCache
	attempts  *memAttempts
	logs      *memFraudLogs
	directory *memDirectory
	events    *events.Recorder

	catalog *ExamService
	svc     *AttemptService
	fraud   *FraudLogService
	proctor *ProctorService
}

func defaultAttemptConfig() config.AttemptConfig {
	return config.AttemptConfig{
		DuplicatePolicy: config.DuplicateResume,
		GradeOnSubmit:   true,
		ScoringPolicy:   config.ScoringPoints,
	}
}

func newHarness(t *testing.T, cfg config.AttemptConfig, pcfg config.ProctorConfig) *harness {
	t.Helper()
	log := zerolog.Nop()

	h := &harness{
		clock:     newFakeClock(),
		exams:     &memExams{rows: map[uuid.UUID]model.Exam{}},
		questions: &memQuestions{rows: map[uuid.UUID]model.Question{}},
		cache:     &memPaperCache{papers: map[uuid.UUID]model.ExamPaper{}},
		logs:      &memFraudLogs{},
		directory: &memDirectory{users: map[int]model.User{}, enrolled: map[enrolment]bool{}},
		events:    &events.Recorder{},
	}
	h.attempts = &memAttempts{
		questions: h.questions,
		rows:      map[uuid.UUID]*model.Attempt{},
		responses: map[uuid.UUID][]model.Response{},
	}

	h.catalog = NewExamService(h.exams, h.questions, h.cache, time.Minute, log)
	h.svc = NewAttemptService(h.attempts, h.catalog, h.directory, h.events, cfg, log)
	h.svc.now = h.clock.Now
	h.fraud = NewFraudLogService(h.logs, h.attempts, h.catalog, h.events, log)
	h.fraud.now = h.clock.Now
	h.proctor = NewProctorService(h.fraud, h.svc, pcfg, log)
	return h
}

type examOption func(*model.Exam)

func withTimeLimit(minutes int) examOption {
	return func(e *model.Exam) { e.TimeLimitMinutes = &minutes }
}

func withDeadline(d time.Time) examOption {
	return func(e *model.Exam) { e.Deadline = &d }
}

func withPolicy(p string) examOption {
	return func(e *model.Exam) { e.ScoringPolicy = &p }
}

func inactive() examOption {
	return func(e *model.Exam) { e.Active = false }
}

func (h *harness) exam(t *testing.T, opts ...examOption) *model.Exam {
	t.Helper()
	e := &model.Exam{OwnerID: teacherID, Title: "Algebra midterm", Active: true}
	for _, opt := range opts {
		opt(e)
	}
	if err := h.exams.Create(context.Background(), e); err != nil {
		t.Fatalf("create exam: %v", err)
	}
	return e
}

// mcQuestion adds a three-option multiple choice question.
func (h *harness) mcQuestion(t *testing.T, examID uuid.UUID, correct, points int) *model.Question {
	t.Helper()
	q := &model.Question{
		ExamID:        examID,
		Content:       "Pick one",
		QuestionType:  model.QuestionTypeMultipleChoice,
		Options:       json.RawMessage(`["a","b","c"]`),
		CorrectAnswer: mustJSON(t, correct),
		Points:        points,
		OrderNum:      len(h.questions.list(examID)),
	}
	if err := h.questions.Create(context.Background(), q); err != nil {
		t.Fatalf("create question: %v", err)
	}
	return q
}

func (h *harness) start(t *testing.T, c Caller, examID uuid.UUID) *model.Attempt {
	t.Helper()
	res, err := h.svc.Start(context.Background(), c, examID)
	if err != nil {
		t.Fatalf("start attempt: %v", err)
	}
	return res.Attempt
}

func (h *harness) answer(t *testing.T, c Caller, attemptID, questionID uuid.UUID, v any) {
	t.Helper()
	_, err := h.svc.RecordResponse(context.Background(), c, attemptID, model.RecordResponseRequest{
		QuestionID: questionID,
		Answer:     mustJSON(t, v),
	})
	if err != nil {
		t.Fatalf("record response: %v", err)
	}
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal %v: %v", v, err)
	}
	return b
}
