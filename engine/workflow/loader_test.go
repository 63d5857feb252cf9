package workflow_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsai/opsflow/engine/workflow"
	"github.com/opsai/opsflow/pkg/logger"
)

const sampleYAML = `
name: project_completion
tenant_id: acme
trigger:
  type: api_call
  endpoint: /projects/complete
steps:
  - name: update_status
    type: database_update
    config:
      table: projects
  - name: send_email
    type: notification
    config:
      to: "{{managerEmail}}"
`

func TestLoadDir(t *testing.T) {
	ctx := logger.ContextWithLogger(context.Background(), logger.NewLogger(logger.TestConfig()))

	t.Run("Should register every definition in the directory", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "project.yaml"), []byte(sampleYAML), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

		defs := workflow.NewMemoryStore()
		loaded, err := workflow.LoadDir(ctx, defs, dir)
		require.NoError(t, err)
		require.Len(t, loaded, 1)

		def, err := defs.GetByName(ctx, "project_completion", "acme")
		require.NoError(t, err)
		assert.True(t, def.Active)
		assert.Len(t, def.Steps, 2)
	})
	t.Run("Should abort on an invalid definition", func(t *testing.T) {
		dir := t.TempDir()
		broken := "name: broken\ntrigger:\n  type: api_call\nsteps: []\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte(broken), 0o644))

		_, err := workflow.LoadDir(ctx, workflow.NewMemoryStore(), dir)
		assert.Error(t, err)
	})
	t.Run("Should fail for a missing directory", func(t *testing.T) {
		_, err := workflow.LoadDir(ctx, workflow.NewMemoryStore(), "/does/not/exist")
		assert.Error(t, err)
	})
}
