package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// HintFunction is the global every hint script set may define:
//
//	function hint(guess, emoji, name) return "text" or nil end
const HintFunction = "hint"

// HintEngine asks Lua scripts for hints on wrong guesses.
//
// HintEngine is safe for concurrent use; calls are serialized on one VM.
type HintEngine struct {
	sandbox *Sandbox
	lookup  NameLookup
	logger  *zap.Logger
}

// NewHintEngine creates a VM, registers the mimic.* helpers, then executes
// every *.lua file in scriptDir in lexicographic order.
//
// Precondition: scriptDir must be a readable directory; logger must be non-nil.
// Postcondition: Returns a ready engine, or an error on any Lua load failure.
func NewHintEngine(scriptDir string, instLimit int, lookup NameLookup, logger *zap.Logger) (*HintEngine, error) {
	entries, err := os.ReadDir(scriptDir)
	if err != nil {
		return nil, fmt.Errorf("scripting: reading script dir %q: %w", scriptDir, err)
	}
	var luaFiles []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".lua" {
			luaFiles = append(luaFiles, filepath.Join(scriptDir, e.Name()))
		}
	}
	sort.Strings(luaFiles)

	sb := NewSandbox(instLimit)
	sb.Setup(func(L *lua.LState) { RegisterModules(L, lookup) })
	for _, path := range luaFiles {
		if err := sb.DoFile(path); err != nil {
			sb.Close()
			return nil, err
		}
	}

	logger.Info("hint scripts loaded",
		zap.String("dir", scriptDir),
		zap.Int("files", len(luaFiles)),
	)
	return &HintEngine{sandbox: sb, lookup: lookup, logger: logger}, nil
}

// Hint calls the scripts' hint function. Missing functions, non-string
// results, and Lua errors all yield "". Errors are logged at Warn.
func (e *HintEngine) Hint(guess, emoji string) string {
	name := ""
	if e.lookup != nil {
		name, _ = e.lookup(emoji)
	}
	ret, err := e.sandbox.Call(HintFunction, lua.LString(guess), lua.LString(emoji), lua.LString(name))
	if err != nil {
		e.logger.Warn("hint script failed", zap.Error(err))
		return ""
	}
	s, ok := ret.(lua.LString)
	if !ok {
		return ""
	}
	return string(s)
}

// Close releases the VM.
func (e *HintEngine) Close() {
	e.sandbox.Close()
}
