package scripting_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/mimic/internal/scripting"
)

func TestNewSandboxedState_UnsafeLibsNil(t *testing.T) {
	L := scripting.NewSandboxedState()
	require.NotNil(t, L)
	defer L.Close()
	for _, name := range []string{"os", "io", "debug"} {
		assert.Equal(t, lua.LNil, L.GetGlobal(name), "expected %s to be nil", name)
	}
}

func TestNewSandboxedState_DangerousGlobalsNil(t *testing.T) {
	L := scripting.NewSandboxedState()
	require.NotNil(t, L)
	defer L.Close()
	for _, name := range []string{"dofile", "loadfile", "load", "collectgarbage", "require"} {
		assert.Equal(t, lua.LNil, L.GetGlobal(name), "expected %s to be nil", name)
	}
}

func TestSandbox_SafeLibsAvailable(t *testing.T) {
	sb := scripting.NewSandbox(0)
	defer sb.Close()
	err := sb.DoString(`
		local x = math.sqrt(4)
		assert(x == 2.0, "math.sqrt failed")
		local s = string.upper("hello")
		assert(s == "HELLO", "string.upper failed")
	`)
	assert.NoError(t, err)
}

func TestSandbox_InstructionLimitExceeded(t *testing.T) {
	sb := scripting.NewSandbox(10)
	defer sb.Close()
	assert.Error(t, sb.DoString(`while true do end`), "expected instruction limit error")
}

func TestSandbox_BudgetIsPerCall(t *testing.T) {
	sb := scripting.NewSandbox(1000)
	defer sb.Close()
	require.NoError(t, sb.DoString(`function step(n) local s = 0 for i = 1, n do s = s + i end return s end`))

	// Each call fits the budget on its own; together they would not.
	for i := 0; i < 20; i++ {
		ret, err := sb.Call("step", lua.LNumber(50))
		require.NoError(t, err, "call %d", i)
		assert.Equal(t, lua.LNumber(1275), ret)
	}
}

func TestSandbox_UsableAfterLimitHit(t *testing.T) {
	sb := scripting.NewSandbox(200)
	defer sb.Close()
	require.NoError(t, sb.DoString(`
		function spin() while true do end end
		function ok() return "fine" end
	`))

	_, err := sb.Call("spin")
	require.Error(t, err)

	ret, err := sb.Call("ok")
	require.NoError(t, err)
	assert.Equal(t, lua.LString("fine"), ret)
}

func TestSandbox_CallUndefined(t *testing.T) {
	sb := scripting.NewSandbox(0)
	defer sb.Close()
	ret, err := sb.Call("nope")
	require.NoError(t, err)
	assert.Equal(t, lua.LNil, ret)
}

func TestSandbox_ConcurrentCalls(t *testing.T) {
	sb := scripting.NewSandbox(0)
	defer sb.Close()
	require.NoError(t, sb.DoString(`function double(x) return x * 2 end`))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ret, err := sb.Call("double", lua.LNumber(i))
			assert.NoError(t, err)
			assert.Equal(t, lua.LNumber(2*i), ret)
		}(i)
	}
	wg.Wait()
}

func TestProperty_InstructionLimitAlwaysErrors(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		limit := rapid.IntRange(1, 50).Draw(t, "limit")
		sb := scripting.NewSandbox(limit)
		defer sb.Close()
		if err := sb.DoString(`while true do end`); err == nil {
			t.Fatalf("expected error with limit=%d but got nil", limit)
		}
	})
}
