// Package memory provides an in-memory implementation of the store
// interfaces, used by unit tests and the STORE_DRIVER=memory dev mode.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/logpeak/logpeak/internal/models"
	"github.com/logpeak/logpeak/internal/store"
	"golang.org/x/crypto/bcrypt"
)

// Store is an in-memory store.Store. Safe for concurrent use. WithTx runs
// the function directly against the store; per-record writes are atomic
// under the mutex but there is no rollback, matching the weakest isolation
// the core is designed to tolerate.
type Store struct {
	mu sync.RWMutex

	apps      map[string]*models.App
	logs      map[string]*models.LogRecord
	summaries map[string]*models.LogSummary
	alerts    map[string]*models.AlertRule
	buckets   map[string]*models.MetricsBucket
	users     map[string]*memUser
}

type memUser struct {
	user store.User
	hash []byte
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		apps:      make(map[string]*models.App),
		logs:      make(map[string]*models.LogRecord),
		summaries: make(map[string]*models.LogSummary),
		alerts:    make(map[string]*models.AlertRule),
		buckets:   make(map[string]*models.MetricsBucket),
		users:     make(map[string]*memUser),
	}
}

func (s *Store) Apps() store.AppStore          { return (*appStore)(s) }
func (s *Store) Logs() store.LogStore          { return (*logStore)(s) }
func (s *Store) Summaries() store.SummaryStore { return (*summaryStore)(s) }
func (s *Store) Alerts() store.AlertStore      { return (*alertStore)(s) }
func (s *Store) Metrics() store.MetricsStore   { return (*metricsStore)(s) }
func (s *Store) Users() store.UserStore        { return (*userStore)(s) }

// WithTx executes fn against the store itself.
func (s *Store) WithTx(ctx context.Context, fn func(store.Store) error) error {
	return fn(s)
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// --- apps ---

type appStore Store

func (s *appStore) Create(ctx context.Context, app *models.App) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.apps {
		if existing.DeletedAt == nil && existing.OwnerID == app.OwnerID && existing.Name == app.Name {
			return store.ErrDuplicateName
		}
	}

	now := time.Now().UTC()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	if app.UpdatedAt.IsZero() {
		app.UpdatedAt = now
	}

	s.apps[app.ID] = cloneApp(app)
	return nil
}

func (s *appStore) Get(ctx context.Context, id string) (*models.App, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	app, ok := s.apps[id]
	if !ok || app.DeletedAt != nil {
		return nil, store.ErrNotFound
	}
	return cloneApp(app), nil
}

func (s *appStore) GetByAPIKey(ctx context.Context, apiKey string) (*models.App, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, app := range s.apps {
		if app.APIKey == apiKey && app.Active && app.DeletedAt == nil {
			return cloneApp(app), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *appStore) List(ctx context.Context, ownerID string) ([]*models.App, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var apps []*models.App
	for _, app := range s.apps {
		if app.OwnerID == ownerID && app.DeletedAt == nil {
			apps = append(apps, cloneApp(app))
		}
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].CreatedAt.After(apps[j].CreatedAt) })
	return apps, nil
}

func (s *appStore) ListActive(ctx context.Context) ([]*models.App, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var apps []*models.App
	for _, app := range s.apps {
		if app.Active && app.DeletedAt == nil {
			apps = append(apps, cloneApp(app))
		}
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].CreatedAt.Before(apps[j].CreatedAt) })
	return apps, nil
}

func (s *appStore) Update(ctx context.Context, app *models.App) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.apps[app.ID]
	if !ok || existing.DeletedAt != nil {
		return store.ErrNotFound
	}

	existing.Name = app.Name
	existing.Active = app.Active
	existing.FlagRules = append([]models.FlagRule(nil), app.FlagRules...)
	existing.UpdatedAt = time.Now().UTC()
	app.UpdatedAt = existing.UpdatedAt
	return nil
}

func (s *appStore) RotateAPIKey(ctx context.Context, id, newKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.apps[id]
	if !ok || app.DeletedAt != nil {
		return store.ErrNotFound
	}
	app.APIKey = newKey
	app.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *appStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.apps[id]
	if !ok || app.DeletedAt != nil {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	app.DeletedAt = &now
	app.UpdatedAt = now
	return nil
}

func (s *appStore) Restore(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.apps[id]
	if !ok || app.DeletedAt == nil {
		return store.ErrNotFound
	}
	app.DeletedAt = nil
	app.UpdatedAt = time.Now().UTC()
	return nil
}

// --- logs ---

type logStore Store

func (s *logStore) Create(ctx context.Context, rec *models.LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	s.logs[rec.ID] = cloneLog(rec)
	return nil
}

func (s *logStore) Get(ctx context.Context, id string) (*models.LogRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.logs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneLog(rec), nil
}

func (s *logStore) ListWindow(ctx context.Context, appID string, since time.Time) ([]*models.LogRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var recs []*models.LogRecord
	for _, rec := range s.logs {
		if rec.AppID == appID && !rec.Timestamp.Before(since) {
			recs = append(recs, cloneLog(rec))
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Timestamp.After(recs[j].Timestamp) })
	return recs, nil
}

func (s *logStore) DeleteOlderThan(ctx context.Context, cutoff time.Time, errorLevel bool, limit int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var eligible []*models.LogRecord
	for _, rec := range s.logs {
		isError := rec.Level == models.LevelError
		if isError == errorLevel && rec.Timestamp.Before(cutoff) {
			eligible = append(eligible, rec)
		}
	}
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].Timestamp.Before(eligible[j].Timestamp) })

	deleted := 0
	for _, rec := range eligible {
		if deleted >= limit {
			break
		}
		delete(s.logs, rec.ID)
		deleted++
	}

	return deleted, len(eligible) > deleted, nil
}

func (s *logStore) DeleteByApp(ctx context.Context, appID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, rec := range s.logs {
		if rec.AppID == appID {
			delete(s.logs, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *logStore) DeleteAll(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := int64(len(s.logs))
	s.logs = make(map[string]*models.LogRecord)
	return deleted, nil
}

// --- summaries ---

type summaryStore Store

func (s *summaryStore) Create(ctx context.Context, sum *models.LogSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.summaries[sum.ID] = cloneSummary(sum)
	return nil
}

// appDeleted reports whether the summary's app is soft-deleted. Callers
// hold the lock.
func (s *summaryStore) appDeleted(appID string) bool {
	if app, ok := s.apps[appID]; ok {
		return app.DeletedAt != nil
	}
	return false
}

func (s *summaryStore) ListTail(ctx context.Context, q store.TailQuery) ([]*models.LogSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sums []*models.LogSummary
	for _, sum := range s.summaries {
		if q.AppID != "" && sum.AppID != q.AppID {
			continue
		}
		if q.AppID == "" && s.appDeleted(sum.AppID) {
			continue
		}
		if q.MinLevelNum > 0 && sum.LevelNum < q.MinLevelNum {
			continue
		}
		if !q.Since.IsZero() && !sum.Timestamp.After(q.Since) {
			continue
		}
		sums = append(sums, cloneSummary(sum))
	}

	sortSummariesDesc(sums)
	if q.Limit > 0 && len(sums) > q.Limit {
		sums = sums[:q.Limit]
	}
	return sums, nil
}

func (s *summaryStore) ListPage(ctx context.Context, q store.PageQuery) ([]*models.LogSummary, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cursorTS time.Time
	var cursorID string
	if q.Cursor != "" {
		var err error
		cursorTS, cursorID, err = decodeCursor(q.Cursor)
		if err != nil {
			return nil, "", err
		}
	}

	var sums []*models.LogSummary
	for _, sum := range s.summaries {
		if q.AppID != "" && sum.AppID != q.AppID {
			continue
		}
		if q.AppID == "" && s.appDeleted(sum.AppID) {
			continue
		}
		if q.MinLevelNum > 0 && sum.LevelNum < q.MinLevelNum {
			continue
		}
		if !q.Before.IsZero() && !sum.Timestamp.Before(q.Before) {
			continue
		}
		if q.Cursor != "" && !beforeCursor(sum, cursorTS, cursorID) {
			continue
		}
		sums = append(sums, cloneSummary(sum))
	}

	sortSummariesDesc(sums)

	next := ""
	if q.PageSize > 0 && len(sums) >= q.PageSize {
		sums = sums[:q.PageSize]
		if len(sums) == q.PageSize {
			last := sums[len(sums)-1]
			next = encodeCursor(last.Timestamp, last.ID)
		}
	}

	return sums, next, nil
}

func (s *summaryStore) ListRange(ctx context.Context, appID string, start, end time.Time) ([]*models.LogSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sums []*models.LogSummary
	for _, sum := range s.summaries {
		if sum.AppID != appID {
			continue
		}
		if sum.Timestamp.Before(start) || !sum.Timestamp.Before(end) {
			continue
		}
		sums = append(sums, cloneSummary(sum))
	}
	sort.Slice(sums, func(i, j int) bool { return sums[i].Timestamp.Before(sums[j].Timestamp) })
	return sums, nil
}

func (s *summaryStore) CountWindow(ctx context.Context, appID string, since time.Time) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total, errCount := 0, 0
	for _, sum := range s.summaries {
		if sum.AppID != appID || sum.Timestamp.Before(since) {
			continue
		}
		total++
		if sum.LevelNum >= models.RankError {
			errCount++
		}
	}
	return total, errCount, nil
}

func (s *summaryStore) DeleteOlderThan(ctx context.Context, cutoff time.Time, errorLevel bool, limit int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var eligible []*models.LogSummary
	for _, sum := range s.summaries {
		isError := sum.Level == models.LevelError
		if isError == errorLevel && sum.Timestamp.Before(cutoff) {
			eligible = append(eligible, sum)
		}
	}
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].Timestamp.Before(eligible[j].Timestamp) })

	deleted := 0
	for _, sum := range eligible {
		if deleted >= limit {
			break
		}
		delete(s.summaries, sum.ID)
		deleted++
	}

	return deleted, len(eligible) > deleted, nil
}

func (s *summaryStore) DeleteOrphans(ctx context.Context, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, sum := range s.summaries {
		if deleted >= limit {
			break
		}
		if _, ok := s.logs[sum.LogID]; !ok {
			delete(s.summaries, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *summaryStore) DeleteByApp(ctx context.Context, appID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, sum := range s.summaries {
		if sum.AppID == appID {
			delete(s.summaries, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *summaryStore) DeleteAll(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := int64(len(s.summaries))
	s.summaries = make(map[string]*models.LogSummary)
	return deleted, nil
}

// --- alerts ---

type alertStore Store

func (s *alertStore) Create(ctx context.Context, rule *models.AlertRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	if rule.UpdatedAt.IsZero() {
		rule.UpdatedAt = now
	}
	s.alerts[rule.ID] = cloneAlert(rule)
	return nil
}

func (s *alertStore) Get(ctx context.Context, id string) (*models.AlertRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, ok := s.alerts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneAlert(rule), nil
}

func (s *alertStore) ListByApp(ctx context.Context, appID string) ([]*models.AlertRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rules []*models.AlertRule
	for _, rule := range s.alerts {
		if rule.AppID == appID {
			rules = append(rules, cloneAlert(rule))
		}
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].CreatedAt.Before(rules[j].CreatedAt) })
	return rules, nil
}

func (s *alertStore) ListActive(ctx context.Context) ([]*models.AlertRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rules []*models.AlertRule
	for _, rule := range s.alerts {
		if rule.Active {
			rules = append(rules, cloneAlert(rule))
		}
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].CreatedAt.Before(rules[j].CreatedAt) })
	return rules, nil
}

func (s *alertStore) Update(ctx context.Context, rule *models.AlertRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.alerts[rule.ID]
	if !ok {
		return store.ErrNotFound
	}

	existing.Name = rule.Name
	existing.Type = rule.Type
	existing.Threshold = rule.Threshold
	existing.WindowMinutes = rule.WindowMinutes
	existing.FunctionFilter = rule.FunctionFilter
	existing.Active = rule.Active
	existing.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *alertStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.alerts[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.alerts, id)
	return nil
}

func (s *alertStore) RecordTrigger(ctx context.Context, id string, firedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rule, ok := s.alerts[id]
	if !ok {
		return store.ErrNotFound
	}
	fired := firedAt.UTC()
	rule.LastTriggered = &fired
	rule.TriggerCount++
	return nil
}

// --- metrics ---

type metricsStore Store

func bucketKey(appID string, period models.MetricsPeriod, start time.Time) string {
	return appID + "|" + string(period) + "|" + start.UTC().Format(time.RFC3339)
}

func (s *metricsStore) Create(ctx context.Context, bucket *models.MetricsBucket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := bucketKey(bucket.AppID, bucket.Period, bucket.PeriodStart)
	if _, ok := s.buckets[key]; ok {
		return store.ErrDuplicateBucket
	}
	if bucket.CreatedAt.IsZero() {
		bucket.CreatedAt = time.Now().UTC()
	}
	b := *bucket
	s.buckets[key] = &b
	return nil
}

func (s *metricsStore) Exists(ctx context.Context, appID string, period models.MetricsPeriod, start time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.buckets[bucketKey(appID, period, start)]
	return ok, nil
}

func (s *metricsStore) ListRange(ctx context.Context, appID string, period models.MetricsPeriod, from time.Time) ([]*models.MetricsBucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var buckets []*models.MetricsBucket
	for _, b := range s.buckets {
		if b.AppID == appID && b.Period == period && !b.PeriodStart.Before(from) {
			clone := *b
			buckets = append(buckets, &clone)
		}
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].PeriodStart.Before(buckets[j].PeriodStart) })
	return buckets, nil
}

func (s *metricsStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for key, b := range s.buckets {
		if b.PeriodStart.Before(cutoff) {
			delete(s.buckets, key)
			deleted++
		}
	}
	return deleted, nil
}

// --- users ---

type userStore Store

func (s *userStore) Create(ctx context.Context, email, password string, role store.Role) (*store.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.user.Email == email {
			return nil, store.ErrDuplicateName
		}
	}

	user := store.User{
		ID:        uuid.NewString(),
		Email:     email,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	s.users[user.ID] = &memUser{user: user, hash: hash}

	out := user
	return &out, nil
}

func (s *userStore) GetByEmail(ctx context.Context, email string) (*store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.user.Email == email {
			out := u.user
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *userStore) GetByID(ctx context.Context, id string) (*store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := u.user
	return &out, nil
}

func (s *userStore) Authenticate(ctx context.Context, email, password string) (*store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.user.Email == email {
			if bcrypt.CompareHashAndPassword(u.hash, []byte(password)) != nil {
				return nil, store.ErrInvalidCredentials
			}
			out := u.user
			return &out, nil
		}
	}
	return nil, store.ErrInvalidCredentials
}

func (s *userStore) CountByRole(ctx context.Context, role store.Role) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, u := range s.users {
		if u.user.Role == role {
			count++
		}
	}
	return count, nil
}

// --- helpers ---

func cloneApp(app *models.App) *models.App {
	clone := *app
	clone.FlagRules = append([]models.FlagRule(nil), app.FlagRules...)
	if app.DeletedAt != nil {
		t := *app.DeletedAt
		clone.DeletedAt = &t
	}
	return &clone
}

func cloneLog(rec *models.LogRecord) *models.LogRecord {
	clone := *rec
	clone.Metadata = append([]byte(nil), rec.Metadata...)
	return &clone
}

func cloneSummary(sum *models.LogSummary) *models.LogSummary {
	clone := *sum
	return &clone
}

func cloneAlert(rule *models.AlertRule) *models.AlertRule {
	clone := *rule
	if rule.LastTriggered != nil {
		t := *rule.LastTriggered
		clone.LastTriggered = &t
	}
	return &clone
}

func sortSummariesDesc(sums []*models.LogSummary) {
	sort.Slice(sums, func(i, j int) bool {
		if sums[i].Timestamp.Equal(sums[j].Timestamp) {
			return sums[i].ID > sums[j].ID
		}
		return sums[i].Timestamp.After(sums[j].Timestamp)
	})
}

func beforeCursor(sum *models.LogSummary, ts time.Time, id string) bool {
	if sum.Timestamp.Before(ts) {
		return true
	}
	return sum.Timestamp.Equal(ts) && sum.ID < id
}

func encodeCursor(ts time.Time, id string) string {
	return ts.UTC().Format(time.RFC3339Nano) + "|" + id
}

func decodeCursor(cursor string) (time.Time, string, error) {
	for i := 0; i < len(cursor); i++ {
		if cursor[i] == '|' {
			ts, err := time.Parse(time.RFC3339Nano, cursor[:i])
			if err != nil {
				return time.Time{}, "", err
			}
			return ts, cursor[i+1:], nil
		}
	}
	ts, err := time.Parse(time.RFC3339Nano, cursor)
	return ts, "", err
}
