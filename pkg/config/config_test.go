package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, c.Validate())

	assert.Equal(t, "emulator-5554", c.Device.Serial)
	assert.Equal(t, "gemini", c.Model.Provider)
	assert.Equal(t, 30, c.Run.MaxSteps)
	assert.Equal(t, 10*time.Minute, c.Run.Timeout)
	assert.Equal(t, -0.05, c.Reward.StepPenalty)
	assert.Equal(t, 0.7, c.Supervisor.Threshold)
	assert.Equal(t, "artifacts", c.Artifacts.Dir)
	assert.Empty(t, c.Monitor.Addr, "servers are off by default")
}

func TestValidate(t *testing.T) {
	c := DefaultConfig()
	c.Device.Serial = ""
	c.Model.Provider = "claude"
	c.Supervisor.Threshold = 1.5
	c.Logging.Level = "loud"
	c.Run.MaxSteps = -1

	err := c.Validate()
	require.Error(t, err)
	for _, want := range []string{"device.serial", "model.provider", "supervisor.threshold", "logging.level", "run: max_steps"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mobileqa.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
device:
  serial: R58M123
model:
  provider: openai
  name: gpt-4o
run:
  max_steps: 12
  timeout: 90s
  reset_app: true
reward:
  subgoal_reward: 0.25
executor:
  dialog_texts: ["Got it"]
`), 0644))

	c, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "R58M123", c.Device.Serial)
	assert.Equal(t, 12, c.Run.MaxSteps)
	assert.Equal(t, 90*time.Second, c.Run.Timeout)
	assert.True(t, c.Run.ResetApp)
	assert.Zero(t, c.Run.StuckWindow, "only keys in the file are set")

	merged := DefaultConfig()
	merged.Merge(c)
	require.NoError(t, merged.Validate())
	assert.Equal(t, "openai", merged.Model.Provider)
	assert.Equal(t, "gpt-4o", merged.Model.Name)
	assert.Equal(t, 3, merged.Run.StuckWindow)
	assert.Equal(t, 0.25, merged.Reward.SubgoalReward)
	assert.Equal(t, -0.05, merged.Reward.StepPenalty)
	assert.Equal(t, []string{"Got it"}, merged.Executor.DialogTexts)
	assert.Equal(t, 3, merged.Executor.MaxAttempts)
}

func TestLoadFromFile_Errors(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/mobileqa.yaml")
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("run: [oops"), 0644))
	_, err = LoadFromFile(path)
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestMerge_Nil(t *testing.T) {
	c := DefaultConfig()
	c.Merge(nil)
	assert.Equal(t, DefaultConfig(), c)
}

func TestSaveToFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	c := DefaultConfig()
	c.Monitor.Addr = ":8090"
	require.NoError(t, c.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, c, loaded)
}

func TestInferenceConfig(t *testing.T) {
	c := DefaultConfig()
	c.Model.MaxAttempts = 5
	ic := c.InferenceConfig("secret")
	assert.Equal(t, "gemini", ic.Provider)
	assert.Equal(t, "gemini-2.0-flash", ic.Model)
	assert.Equal(t, "secret", ic.APIKey)
	assert.Equal(t, 5, ic.Retry.MaxAttempts)
	assert.Equal(t, 60*time.Second, ic.Timeout)
}
