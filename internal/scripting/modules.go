package scripting

import (
	"github.com/agnivade/levenshtein"
	lua "github.com/yuin/gopher-lua"
)

// NameLookup resolves a symbol to its catalog name.
type NameLookup func(emoji string) (string, bool)

// RegisterModules registers the mimic.* helper table into L:
//
//	mimic.name_of(emoji)  -> catalog name or nil
//	mimic.distance(a, b)  -> edit distance between two strings
//
// Precondition: L must be from NewSandboxedState; lookup may be nil.
// Postcondition: mimic global is defined in L.
func RegisterModules(L *lua.LState, lookup NameLookup) {
	mod := L.NewTable()
	L.SetField(mod, "name_of", L.NewFunction(func(L *lua.LState) int {
		emoji := L.CheckString(1)
		if lookup == nil {
			L.Push(lua.LNil)
			return 1
		}
		name, ok := lookup(emoji)
		if !ok {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LString(name))
		return 1
	}))
	L.SetField(mod, "distance", L.NewFunction(func(L *lua.LState) int {
		a := L.CheckString(1)
		b := L.CheckString(2)
		L.Push(lua.LNumber(levenshtein.ComputeDistance(a, b)))
		return 1
	}))
	L.SetGlobal("mimic", mod)
}
