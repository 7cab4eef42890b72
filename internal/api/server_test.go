package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/zamasskin/datashift/internal/api/handlers"
	"github.com/zamasskin/datashift/internal/api/middleware"
	"github.com/zamasskin/datashift/internal/services"
	"github.com/zamasskin/datashift/pkg/database"
	"github.com/zamasskin/datashift/pkg/models"
	"github.com/zamasskin/datashift/pkg/pipeline"
	"github.com/zamasskin/datashift/pkg/sqlexec"
	"github.com/zamasskin/datashift/pkg/stage"
	"github.com/zamasskin/datashift/pkg/types"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type apiEnv struct {
	server *Server
	store  *database.Store
	runner *services.MigrationRunner
	token  string
	source int64

	mu     sync.Mutex
	events []services.MigrationEvent
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	db, err := database.New(&database.Config{Driver: database.DriverSQLite, Path: filepath.Join(t.TempDir(), "app.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())

	store := database.NewStore(db)
	exec := sqlexec.New()
	engine := pipeline.New(stage.NewDispatcher(store, exec))
	runner := services.NewMigrationRunner(services.RunnerConfig{
		Store:    store,
		Sources:  store,
		Engine:   engine,
		Saver:    exec,
		Reporter: services.NewNotifier(store, services.NotifierConfig{}),
	})
	t.Cleanup(runner.Wait)

	bus := services.NewLocalEventBus()
	env := &apiEnv{store: store, runner: runner}
	bus.Subscribe(func(e services.MigrationEvent) {
		env.mu.Lock()
		defer env.mu.Unlock()
		env.events = append(env.events, e)
	})

	env.server = NewServer(Config{
		Store:     store,
		Runner:    runner,
		Previewer: engine,
		Bus:       bus,
		Health:    db,
		JWTSecret: testSecret,
	})

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	env.token = token

	path := filepath.Join(t.TempDir(), "source.db")
	conn, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	for _, stmt := range []string{
		"CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)",
		"INSERT INTO users (id, name) VALUES (1, 'alice'), (2, 'bob')",
	} {
		_, err := conn.Exec(stmt)
		require.NoError(t, err)
	}
	require.NoError(t, conn.Close())

	ds := &models.DataSource{Name: "source", Type: "sqlite", Config: models.MustJSON(map[string]any{"file": path})}
	require.NoError(t, store.CreateDataSource(context.Background(), ds))
	env.source = ds.ID

	return env
}

func (e *apiEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.token)
	w := httptest.NewRecorder()
	e.server.Router().ServeHTTP(w, req)
	return w
}

func (e *apiEnv) eventTypes() []services.MigrationEventType {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]services.MigrationEventType, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Type)
	}
	return out
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) middleware.APIResponse[T] {
	t.Helper()
	var resp middleware.APIResponse[T]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func (e *apiEnv) migrationBody(name string) map[string]any {
	return map[string]any{
		"name": name,
		"fetchConfigs": []any{
			map[string]any{"id": "s1", "type": "sql", "params": map[string]any{"sourceId": e.source, "query": "SELECT id, name FROM users ORDER BY id"}},
			map[string]any{"id": 2, "type": "modification", "params": map[string]any{
				"datasetId":   "s1",
				"dropColumns": []string{"id"},
			}},
		},
		"params":         []any{map[string]any{"key": "limit", "type": "number", "value": 10}},
		"cronExpression": map[string]any{"type": "interval", "count": 5, "units": "m"},
	}
}

func (e *apiEnv) createMigration(t *testing.T) int64 {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/migrations", e.migrationBody("users"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[models.Migration](t, w).Data.ID
}

func TestMigrationCRUD(t *testing.T) {
	env := newAPIEnv(t)

	id := env.createMigration(t)
	require.NotZero(t, id)

	w := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/migrations/%d", id), nil)
	require.Equal(t, http.StatusOK, w.Code)
	m := decode[models.Migration](t, w).Data
	assert.Equal(t, "users", m.Name)
	assert.True(t, m.IsActive)
	stages, err := m.Stages()
	require.NoError(t, err)
	require.Len(t, stages, 2)
	assert.Equal(t, types.ID("2"), stages[1].ID)
	cron, err := m.Cron()
	require.NoError(t, err)
	require.NotNil(t, cron)
	assert.Equal(t, types.CronInterval, cron.Type)

	body := env.migrationBody("renamed")
	body["isActive"] = false
	body["cronExpression"] = nil
	w = env.do(t, http.MethodPut, fmt.Sprintf("/api/v1/migrations/%d", id), body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	stored, err := env.store.GetMigration(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "renamed", stored.Name)
	assert.False(t, stored.IsActive)
	cron, err = stored.Cron()
	require.NoError(t, err)
	assert.Nil(t, cron)

	w = env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/migrations/%d", id), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/migrations/%d", id), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/migrations/%d", id), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	assert.Equal(t, []services.MigrationEventType{
		services.MigrationCreated,
		services.MigrationUpdated,
		services.MigrationRemoved,
	}, env.eventTypes())
}

func TestCreateMigrationValidation(t *testing.T) {
	env := newAPIEnv(t)

	tests := []struct {
		name  string
		body  any
		field string
	}{
		{name: "not json", body: "{", field: "body"},
		{name: "missing name", body: map[string]any{"fetchConfigs": []any{}}, field: "name"},
		{
			name: "unknown stage type",
			body: map[string]any{"name": "x", "fetchConfigs": []any{
				map[string]any{"id": "a", "type": "nosql", "params": map[string]any{}},
			}},
			field: "fetchConfigs.0.type",
		},
		{
			name: "duplicate stage id",
			body: map[string]any{"name": "x", "fetchConfigs": []any{
				map[string]any{"id": "a", "type": "sql", "params": map[string]any{"sourceId": 1, "query": "SELECT 1"}},
				map[string]any{"id": "a", "type": "sql", "params": map[string]any{"sourceId": 1, "query": "SELECT 2"}},
			}},
			field: "fetchConfigs.1.id",
		},
		{
			name: "unknown mapping dataset",
			body: map[string]any{
				"name":         "x",
				"fetchConfigs": []any{},
				"saveMappings": []any{map[string]any{
					"id": "m", "sourceId": 1, "datasetId": "zzz", "table": "t",
					"savedMapping": []any{map[string]any{"tableColumn": "a", "resultColumn": "b"}},
				}},
			},
			field: "saveMappings.0.datasetId",
		},
		{
			name:  "bad cron clock",
			body:  map[string]any{"name": "x", "fetchConfigs": []any{}, "cronExpression": map[string]any{"type": "time", "time": "99:00"}},
			field: "cronExpression",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/migrations", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

			resp := decode[any](t, w)
			require.NotNil(t, resp.Error)
			assert.Equal(t, middleware.ErrCodeValidationFailed, resp.Error.Code)
			assert.Contains(t, resp.Error.Details, tt.field)
		})
	}

	assert.Empty(t, env.eventTypes())
}

func TestRunAndReadRun(t *testing.T) {
	env := newAPIEnv(t)
	id := env.createMigration(t)

	w := env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/migrations/%d/run", id), nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	started := decode[handlers.RunResponse](t, w).Data
	assert.Equal(t, "manual", started.Trigger)
	assert.Equal(t, "running", started.Status)

	env.runner.Wait()

	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/runs/%d", started.RunID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	detail := decode[map[string]any](t, w).Data
	assert.Equal(t, "success", detail["status"])
	assert.Equal(t, []any{50.0, 100.0}, detail["progressList"])

	// 끝난 실행은 중지할 수 없음
	w = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/runs/%d/stop", started.RunID), nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/runs/999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/migrations/999/run", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRunConflictAndStop(t *testing.T) {
	env := newAPIEnv(t)
	ctx := context.Background()
	id := env.createMigration(t)

	run, err := env.store.ReserveRun(ctx, id, types.TriggerAPI, "elsewhere", nil)
	require.NoError(t, err)

	w := env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/hooks/migrations/%d/run", id), nil)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, middleware.ErrCodeAlreadyRunning, decode[any](t, w).Error.Code)

	w = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/runs/%d/stop", run.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	status, err := env.store.RunStatus(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RunStatusCanceled, status)
}

func TestPreview(t *testing.T) {
	env := newAPIEnv(t)
	id := env.createMigration(t)

	w := env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/migrations/%d/preview?stage=2", id), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	preview := decode[handlers.PreviewResponse](t, w).Data
	assert.Equal(t, types.ID("2"), preview.DatasetID)
	assert.Equal(t, []string{"name"}, preview.Columns)
	require.Len(t, preview.Rows, 2)
	assert.Equal(t, "alice", preview.Rows[0]["name"])
	assert.Equal(t, 1, preview.Page)

	w = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/migrations/%d/preview?stage=s1&page=2", id), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[handlers.PreviewResponse](t, w).Data.Rows)

	w = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/migrations/%d/preview?stage=missing", id), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/migrations/%d/preview", id), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/migrations/%d/preview?stage=s1&page=0", id), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 미리보기는 실행 기록을 남기지 않음
	running, err := env.store.HasRunning(context.Background(), id, types.TriggerManual)
	require.NoError(t, err)
	assert.False(t, running)
}

func TestHealthAndAuth(t *testing.T) {
	env := newAPIEnv(t)

	for _, path := range []string{"/health", "/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
		w := httptest.NewRecorder()
		env.server.Router().ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/1", http.NoBody)
	w := httptest.NewRecorder()
	env.server.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/runs/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
