package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/attrition/internal/config"
	"github.com/kiranshivaraju/attrition/internal/store"
)

const (
	testPipeline = "../model/testdata/pipeline.json"
	testMetadata = "../model/testdata/feature_metadata.json"
	testEmployee = "../model/testdata/employee.json"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DATABASE_URL", "REDIS_URL", "API_KEY_HASH", "RETENTION_DAYS",
		"MODEL_PATH", "MODEL_METADATA_PATH", "MIGRATIONS_PATH",
	} {
		t.Setenv(key, "")
	}
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// fakeStore is an in-memory auditStore.
type fakeStore struct {
	days    []int
	deleted int64
	err     error
	stats   *store.AuditStats
}

func (f *fakeStore) DeleteRequestsOlderThan(_ context.Context, days int) (int64, error) {
	f.days = append(f.days, days)
	if f.err != nil {
		return 0, f.err
	}
	n := f.deleted
	f.deleted = 0
	return n, nil
}

func (f *fakeStore) Stats(context.Context) (*store.AuditStats, error) {
	return f.stats, f.err
}

func useStore(t *testing.T, fs *fakeStore) *config.DatabaseConfig {
	t.Helper()
	var got config.DatabaseConfig
	orig := openStore
	openStore = func(_ context.Context, cfg config.DatabaseConfig) (auditStore, func(), error) {
		got = cfg
		return fs, func() {}, nil
	}
	t.Cleanup(func() { openStore = orig })
	return &got
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "attritionctl", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"cleanup"}, {"migrate", "up"}, {"migrate", "version"},
		{"audit", "stats"}, {"model", "inspect"}, {"predict"},
	}

	for _, path := range commands {
		t.Run(strings.Join(path, " "), func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err)
			require.NotNil(t, subCmd)
			assert.Equal(t, path[len(path)-1], subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("database-url"))
}

func TestInvalidFormat(t *testing.T) {
	clearEnv(t)
	_, err := execute(t, "", "--format", "yaml", "model", "inspect")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCleanup(t *testing.T) {
	clearEnv(t)
	fs := &fakeStore{deleted: 7}
	got := useStore(t, fs)

	out, err := execute(t, "", "--database-url", "postgres://localhost/audit", "cleanup", "--days", "30")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted 7 audit request(s) older than 30 day(s)")
	assert.Equal(t, []int{30}, fs.days)
	assert.Equal(t, "postgres://localhost/audit", got.URL)

	out, err = execute(t, "", "--database-url", "postgres://localhost/audit", "cleanup", "--days", "30")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted 0 audit request(s)")
}

func TestCleanup_DefaultsToRetentionDays(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/audit")
	t.Setenv("RETENTION_DAYS", "90")
	fs := &fakeStore{}
	useStore(t, fs)

	out, err := execute(t, "", "--format", "json", "cleanup")
	require.NoError(t, err)
	assert.Equal(t, []int{90}, fs.days)

	var res CleanupResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, CleanupResult{RetentionDays: 90, Deleted: 0}, res)
}

func TestCleanup_Errors(t *testing.T) {
	clearEnv(t)
	useStore(t, &fakeStore{err: errors.New("relation does not exist")})

	_, err := execute(t, "", "cleanup")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err), "no database configured")

	_, err = execute(t, "", "--database-url", "postgres://localhost/audit", "cleanup", "--days", "-1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, "", "--database-url", "postgres://localhost/audit", "cleanup", "--days", "1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "relation does not exist")
}

func TestAuditStats(t *testing.T) {
	clearEnv(t)
	oldest := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	newest := oldest.Add(48 * time.Hour)
	useStore(t, &fakeStore{stats: &store.AuditStats{
		Requests: 12, Predictions: 40, OldestRequest: &oldest, NewestRequest: &newest,
	}})

	out, err := execute(t, "", "--database-url", "postgres://localhost/audit", "audit", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Requests:    12")
	assert.Contains(t, out, "Predictions: 40")
	assert.Contains(t, out, "2025-01-02T03:04:05Z .. 2025-01-04T03:04:05Z")
}

func TestMigrate(t *testing.T) {
	clearEnv(t)
	var applied []string
	origRun, origVersion := runMigrations, migrationVersion
	runMigrations = func(url, dir string) error {
		applied = append(applied, dir)
		return nil
	}
	migrationVersion = func(url, dir string) (uint, bool, error) { return 1, false, nil }
	t.Cleanup(func() { runMigrations, migrationVersion = origRun, origVersion })

	out, err := execute(t, "", "--database-url", "postgres://localhost/audit", "migrate", "up", "--path", "db/migrations")
	require.NoError(t, err)
	assert.Equal(t, []string{"db/migrations"}, applied)
	assert.Contains(t, out, "Schema version 1 (clean)")

	out, err = execute(t, "", "--database-url", "postgres://localhost/audit", "--format", "json", "migrate", "version")
	require.NoError(t, err)
	var status MigrationStatus
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, MigrationStatus{Version: 1}, status)
}

func TestModelInspect(t *testing.T) {
	clearEnv(t)

	out, err := execute(t, "", "--format", "json", "model", "inspect",
		"--model", testPipeline, "--metadata", testMetadata)
	require.NoError(t, err)

	var s ModelSummary
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.Equal(t, "xgb_test_v1", s.ModelVersion)
	assert.Equal(t, 3, s.Trees)
	assert.Equal(t, 20, s.NumericFeatures)
	assert.Equal(t, 6, s.CategoricalFeatures)
	assert.Equal(t, 47, s.EncodedColumns)
	assert.True(t, s.ExplainerAvailable)
	require.NotNil(t, s.ExpectedValue)
	assert.InDelta(t, -1.035, *s.ExpectedValue, 1e-9)
}

func TestModelInspect_FromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("MODEL_PATH", testPipeline)
	t.Setenv("MODEL_METADATA_PATH", testMetadata)

	out, err := execute(t, "", "model", "inspect")
	require.NoError(t, err)
	assert.Contains(t, out, "Model:     xgb_test_v1")
	assert.Contains(t, out, "Explainer: available")
}

func TestModelInspect_MissingArtifact(t *testing.T) {
	clearEnv(t)

	_, err := execute(t, "", "model", "inspect", "--model", "nope.json", "--metadata", testMetadata)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestPredict_File(t *testing.T) {
	clearEnv(t)

	out, err := execute(t, "", "predict", testEmployee, "--model", testPipeline, "--metadata", testMetadata)
	require.NoError(t, err)
	assert.Contains(t, out, "risk=low")
	assert.Contains(t, out, "will_leave=false")
	assert.Contains(t, out, "model=xgb_test_v1")
}

func TestPredict_BatchFromStdin(t *testing.T) {
	clearEnv(t)
	record, err := os.ReadFile(testEmployee)
	require.NoError(t, err)
	batch := `{"employees": [` + string(record) + `, {"employee_id": "BAD", "age": 17}]}`

	out, err := execute(t, batch, "--format", "json", "predict", "-",
		"--model", testPipeline, "--metadata", testMetadata)
	require.NoError(t, err)

	var res struct {
		Predictions []struct {
			EmployeeID *string `json:"employee_id"`
			Error      *struct {
				Code string `json:"code"`
			} `json:"error"`
		} `json:"predictions"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Predictions, 2)
	assert.Nil(t, res.Predictions[0].Error)
	require.NotNil(t, res.Predictions[1].Error)
	assert.Equal(t, "VALIDATION_ERROR", res.Predictions[1].Error.Code)
	assert.Equal(t, "BAD", *res.Predictions[1].EmployeeID)
}

func TestPredict_Explain(t *testing.T) {
	clearEnv(t)

	out, err := execute(t, "", "predict", testEmployee, "--explain",
		"--model", testPipeline, "--metadata", testMetadata)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "heure_supplementaires_Yes"))
	assert.Contains(t, lines[0], "decreases risk")
}

func TestPredict_InvalidRecord(t *testing.T) {
	clearEnv(t)

	_, err := execute(t, `{"age": 17}`, "predict", "-", "--model", testPipeline, "--metadata", testMetadata)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "validation failed")
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "wrapped", errors.New("inner"))))
}
