package mongo

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/fgeck/mongo-s3-backup/internal/models"
	"github.com/fgeck/mongo-s3-backup/internal/services/process"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRunner struct {
	runFunc func(ctx context.Context, cmd process.Command) error
	calls   []process.Command
}

func (m *mockRunner) Run(ctx context.Context, cmd process.Command) error {
	m.calls = append(m.calls, cmd)
	if m.runFunc != nil {
		return m.runFunc(ctx, cmd)
	}
	return nil
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func testConfig() models.MongoConfig {
	return models.MongoConfig{
		Host:     "db.local",
		Port:     27017,
		Username: "backup",
		Password: "secret",
		Database: "app",
	}
}

func TestDumpArgs_WithCredentials(t *testing.T) {
	args := DumpArgs(testConfig(), "/tmp/mongo-s3-backup")

	assert.Equal(t, []string{
		"-h", "db.local:27017",
		"-d", "app",
		"-o", "/tmp/mongo-s3-backup",
		"-u", "backup",
		"-p", "secret",
	}, args)
}

func TestRestoreArgs_WithCredentials(t *testing.T) {
	args := RestoreArgs(testConfig(), "/tmp/mongo-s3-backup/app")

	assert.Equal(t, []string{
		"-h", "db.local:27017",
		"-d", "app",
		"--drop", "/tmp/mongo-s3-backup/app",
		"-u", "backup",
		"-p", "secret",
	}, args)
}

func TestArgs_IncompleteCredentials(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
	}{
		{name: "username only", username: "backup"},
		{name: "password only", password: "secret"},
		{name: "neither"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Username = tt.username
			cfg.Password = tt.password

			for _, args := range [][]string{DumpArgs(cfg, "/out"), RestoreArgs(cfg, "/in")} {
				assert.NotContains(t, args, "-u")
				assert.NotContains(t, args, "-p")
				assert.Len(t, args, 6)
			}
		})
	}
}

func TestDump_RunsConfiguredTool(t *testing.T) {
	runner := &mockRunner{}
	svc := NewWithRunner(testLogger(), runner, models.ToolSettings{Mongodump: "/opt/mongo/bin/mongodump"})

	err := svc.Dump(context.Background(), testConfig(), "/staging")

	require.NoError(t, err)
	require.Len(t, runner.calls, 1)
	assert.Equal(t, "/opt/mongo/bin/mongodump", runner.calls[0].Name)
	assert.Empty(t, runner.calls[0].Dir)
	assert.Equal(t, DumpArgs(testConfig(), "/staging"), runner.calls[0].Args)
}

func TestDump_DefaultToolNames(t *testing.T) {
	runner := &mockRunner{}
	svc := NewWithRunner(testLogger(), runner, models.ToolSettings{})

	require.NoError(t, svc.Dump(context.Background(), testConfig(), "/staging"))
	require.NoError(t, svc.Restore(context.Background(), testConfig(), "/staging/app"))

	require.Len(t, runner.calls, 2)
	assert.Equal(t, DefaultDumpTool, runner.calls[0].Name)
	assert.Equal(t, DefaultRestoreTool, runner.calls[1].Name)
}

func TestDump_ExitError(t *testing.T) {
	runner := &mockRunner{
		runFunc: func(ctx context.Context, cmd process.Command) error {
			return &process.ExitError{Name: cmd.Name, Code: 1}
		},
	}
	svc := NewWithRunner(testLogger(), runner, models.ToolSettings{})

	err := svc.Dump(context.Background(), testConfig(), "/staging")

	require.Error(t, err)
	var exitErr *process.ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 1, exitErr.Code)
	assert.Contains(t, err.Error(), "mongodump exited with code 1")
}

func TestRestore_Error(t *testing.T) {
	runner := &mockRunner{
		runFunc: func(ctx context.Context, cmd process.Command) error {
			return errors.New("failed to start mongorestore: executable file not found in $PATH")
		},
	}
	svc := NewWithRunner(testLogger(), runner, models.ToolSettings{})

	err := svc.Restore(context.Background(), testConfig(), "/staging/app")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "restore of app failed")
	assert.Contains(t, err.Error(), "executable file not found")
}
