package scripting_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cory-johannsen/darklord/internal/scripting"
)

func writeHook(t *testing.T, name, body string) (string, []string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	return dir, []string{name}
}

func TestEvalUse_ReturnsDeltas(t *testing.T) {
	dir, names := writeHook(t, "choke.lua", `
function on_ability_use(e)
  if e.ability == "force_choke" and e.killed then
    return {
      {target = "darkness", delta = 3},
      {target = "rage", delta = 1},
    }
  end
end
`)
	m, err := scripting.NewHookManager(dir, names, 0, zap.NewNop())
	require.NoError(t, err)
	defer m.Close()

	deltas := m.EvalUse(scripting.UseEvent{AbilityID: "force_choke", Killed: true})
	require.Len(t, deltas, 2)
	assert.Equal(t, scripting.EffectDelta{Target: "darkness", Delta: 3}, deltas[0])
	assert.Equal(t, scripting.EffectDelta{Target: "rage", Delta: 1}, deltas[1])

	assert.Empty(t, m.EvalUse(scripting.UseEvent{AbilityID: "saber_strike"}))
}

func TestEvalUse_ReadsTags(t *testing.T) {
	dir, names := writeHook(t, "mercy.lua", `
function on_ability_use(e)
  for _, tag in ipairs(e.tags) do
    if tag == "merciful" then
      return {{target = "darkness", delta = -1}}
    end
  end
end
`)
	m, err := scripting.NewHookManager(dir, names, 0, zap.NewNop())
	require.NoError(t, err)
	defer m.Close()

	deltas := m.EvalUse(scripting.UseEvent{AbilityID: "spare", Tags: []string{"merciful"}})
	require.Len(t, deltas, 1)
	assert.Equal(t, -1, deltas[0].Delta)
}

func TestEvalUse_NoHookDefined(t *testing.T) {
	dir, names := writeHook(t, "empty.lua", `local unused = 1`)
	m, err := scripting.NewHookManager(dir, names, 0, zap.NewNop())
	require.NoError(t, err)
	defer m.Close()

	assert.Empty(t, m.EvalUse(scripting.UseEvent{AbilityID: "anything"}))
}

func TestEvalUse_RuntimeErrorYieldsNothing(t *testing.T) {
	dir, names := writeHook(t, "broken.lua", `
function on_ability_use(e)
  error("hook blew up")
end
`)
	m, err := scripting.NewHookManager(dir, names, 0, zap.NewNop())
	require.NoError(t, err)
	defer m.Close()

	assert.Empty(t, m.EvalUse(scripting.UseEvent{AbilityID: "x"}))
}

func TestEvalUse_InstructionLimit(t *testing.T) {
	dir, names := writeHook(t, "spin.lua", `
function on_ability_use(e)
  while true do end
end
`)
	m, err := scripting.NewHookManager(dir, names, 1000, zap.NewNop())
	require.NoError(t, err)
	defer m.Close()

	// The runaway loop is cut off at the opcode budget and treated as a
	// runtime error.
	assert.Empty(t, m.EvalUse(scripting.UseEvent{AbilityID: "x"}))

	// The VM stays usable for later events.
	assert.Empty(t, m.EvalUse(scripting.UseEvent{AbilityID: "y"}))
}

func TestNewHookManager_LoadError(t *testing.T) {
	dir, names := writeHook(t, "bad.lua", `this is not lua`)
	_, err := scripting.NewHookManager(dir, names, 0, zap.NewNop())
	assert.Error(t, err)
}

func TestSandboxStripsDangerousGlobals(t *testing.T) {
	dir, names := writeHook(t, "probe.lua", `
function on_ability_use(e)
  if dofile == nil and loadfile == nil and load == nil and require == nil then
    return {{target = "control", delta = 1}}
  end
end
`)
	m, err := scripting.NewHookManager(dir, names, 0, zap.NewNop())
	require.NoError(t, err)
	defer m.Close()

	deltas := m.EvalUse(scripting.UseEvent{AbilityID: "x"})
	require.Len(t, deltas, 1, "os/io style globals must be absent in the sandbox")
}
