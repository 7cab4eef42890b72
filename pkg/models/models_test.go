package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zamasskin/datashift/pkg/types"
)

func TestTableNames(t *testing.T) {
	tests := []struct {
		name  string
		table interface{ TableName() string }
		want  string
	}{
		{"data source", DataSource{}, "data_sources"},
		{"migration", Migration{}, "migrations"},
		{"run", MigrationRun{}, "migration_runs"},
		{"lock", MigrationRunLock{}, "migration_run_locks"},
		{"error log", ErrorLog{}, "error_logs"},
		{"event", Event{}, "events"},
		{"user", User{}, "users"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.table.TableName())
		})
	}
}

func TestMigrationDecoding(t *testing.T) {
	m := Migration{
		FetchConfigs:   []byte(`[{"id":"s1","type":"sql","params":{"sourceId":1,"query":"SELECT 1"}}]`),
		SaveMappings:   []byte(`[{"id":"m1","sourceId":2,"table":"t","savedMapping":[{"tableColumn":"a","resultColumn":"b"}]}]`),
		Params:         []byte(`[{"key":"limit","type":"number","value":10}]`),
		CronExpression: []byte(`{"type":"interval","count":5,"units":"m"}`),
	}

	stages, err := m.Stages()
	require.NoError(t, err)
	require.Len(t, stages, 1)
	assert.Equal(t, types.StageTypeSQL, stages[0].Type)
	assert.Equal(t, "SELECT 1", stages[0].SQL.Query)

	mappings, err := m.Mappings()
	require.NoError(t, err)
	require.Len(t, mappings, 1)
	assert.Equal(t, "t", mappings[0].Table)

	params, err := m.ParamList()
	require.NoError(t, err)
	require.Len(t, params, 1)
	assert.Equal(t, "limit", params[0].Key)

	cron, err := m.Cron()
	require.NoError(t, err)
	require.NotNil(t, cron)
	assert.Equal(t, types.CronInterval, cron.Type)
}

func TestMigrationWithoutCron(t *testing.T) {
	for _, raw := range []string{"", "null"} {
		m := Migration{CronExpression: []byte(raw)}
		cron, err := m.Cron()
		require.NoError(t, err)
		assert.Nil(t, cron)
	}
}

func TestJSONHelpers(t *testing.T) {
	data, err := JSON(nil)
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))

	run := MigrationRun{Progress: MustJSON([]int{50, 100})}
	progress, err := run.ProgressList()
	require.NoError(t, err)
	assert.Equal(t, []int{50, 100}, progress)

	encoded, err := json.Marshal(run)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"progress":[50,100]`)
}

func TestDataSourceToType(t *testing.T) {
	ds := DataSource{ID: 3, Name: "local", Type: "sqlite", Config: MustJSON(map[string]any{"file": "/tmp/x.db"})}
	out, err := ds.ToType()
	require.NoError(t, err)
	assert.Equal(t, types.SourceTypeSQLite, out.Type)
	assert.Equal(t, "/tmp/x.db", out.Config["file"])
}
