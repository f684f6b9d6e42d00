package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// useHookName is the Lua global a hook script defines to observe ability
// usage. It receives an event table and may return an array of
// {target=..., delta=...} tables.
const useHookName = "on_ability_use"

// UseEvent is the snapshot of one resolved ability use passed to Lua hooks.
type UseEvent struct {
	AbilityID  string
	ActorID    string
	TargetID   string
	TargetType string
	Finisher   string
	Tags       []string
	Damage     int
	Killed     bool
}

// EffectDelta is one (target, delta) pair returned by a hook. The caller
// validates targets; the manager only shapes the Lua values.
type EffectDelta struct {
	Target string
	Delta  int
}

// HookManager owns one sandboxed VM loaded with an encounter's reaction
// scripts. Each EvalUse call runs under a fresh instruction budget.
//
// HookManager is not safe for concurrent use; one manager serves one
// encounter run.
type HookManager struct {
	state     *lua.LState
	instLimit int
	logger    *zap.Logger
}

// NewHookManager creates a sandboxed VM and executes the named scripts from
// dir in lexicographic order.
//
// Precondition: logger non-nil; instLimit >= 0 (0 uses the default).
// Postcondition: the caller must Close the manager when the run ends.
func NewHookManager(dir string, names []string, instLimit int, logger *zap.Logger) (*HookManager, error) {
	if instLimit <= 0 {
		instLimit = DefaultInstructionLimit
	}

	L := NewSandboxedState()

	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
	}
	sort.Strings(paths)

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			L.Close()
			return nil, fmt.Errorf("scripting: reading hook %q: %w", path, err)
		}
		ctx, cancel := newCountingContext(instLimit)
		L.SetContext(ctx)
		if err := L.DoString(string(data)); err != nil {
			cancel()
			L.Close()
			return nil, fmt.Errorf("scripting: loading hook %q: %w", path, err)
		}
		cancel()
	}

	return &HookManager{state: L, instLimit: instLimit, logger: logger}, nil
}

// EvalUse invokes the on_ability_use hook with the event and collects any
// returned effect deltas. Lua runtime errors are logged at Warn level and
// yield no deltas; a broken hook never aborts combat.
func (m *HookManager) EvalUse(event UseEvent) []EffectDelta {
	fn := m.state.GetGlobal(useHookName)
	if fn == lua.LNil {
		return nil
	}

	ctx, cancel := newCountingContext(m.instLimit)
	m.state.SetContext(ctx)
	defer cancel()

	err := m.state.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, m.eventTable(event))
	if err != nil {
		m.logger.Warn("hook runtime error",
			zap.String("hook", useHookName),
			zap.String("ability_id", event.AbilityID),
			zap.Error(err),
		)
		return nil
	}

	ret := m.state.Get(-1)
	m.state.Pop(1)
	return m.decodeDeltas(ret)
}

// Close releases the VM.
func (m *HookManager) Close() {
	m.state.Close()
}

// eventTable shapes a UseEvent into the Lua table hooks receive.
func (m *HookManager) eventTable(event UseEvent) *lua.LTable {
	t := m.state.NewTable()
	t.RawSetString("ability", lua.LString(event.AbilityID))
	t.RawSetString("actor", lua.LString(event.ActorID))
	t.RawSetString("target", lua.LString(event.TargetID))
	t.RawSetString("target_type", lua.LString(event.TargetType))
	t.RawSetString("finisher", lua.LString(event.Finisher))
	t.RawSetString("damage", lua.LNumber(event.Damage))
	t.RawSetString("killed", lua.LBool(event.Killed))

	tags := m.state.NewTable()
	for i, tag := range event.Tags {
		tags.RawSetInt(i+1, lua.LString(tag))
	}
	t.RawSetString("tags", tags)
	return t
}

// decodeDeltas converts a hook return value into effect deltas. Anything that
// is not an array of {target, delta} tables is ignored with a warning.
func (m *HookManager) decodeDeltas(v lua.LValue) []EffectDelta {
	table, ok := v.(*lua.LTable)
	if !ok {
		if v != lua.LNil {
			m.logger.Warn("hook returned a non-table value", zap.String("type", v.Type().String()))
		}
		return nil
	}

	var deltas []EffectDelta
	table.ForEach(func(_, entry lua.LValue) {
		et, ok := entry.(*lua.LTable)
		if !ok {
			m.logger.Warn("hook effect entry is not a table", zap.String("type", entry.Type().String()))
			return
		}
		target, ok := et.RawGetString("target").(lua.LString)
		if !ok {
			m.logger.Warn("hook effect entry missing target")
			return
		}
		delta, ok := et.RawGetString("delta").(lua.LNumber)
		if !ok {
			m.logger.Warn("hook effect entry missing delta", zap.String("target", string(target)))
			return
		}
		deltas = append(deltas, EffectDelta{Target: string(target), Delta: int(delta)})
	})
	return deltas
}
