package manifest

import (
	lua "github.com/yuin/gopher-lua"
)

// sandboxLuaVM configures a Lua VM to run in a restricted sandbox.
// This disables functions that could:
// - Execute system commands (os.execute, os.exit)
// - Access the filesystem (io.open, io.popen)
// - Load external code (require, dofile, loadfile)
//
// string, table and math are preserved.
func sandboxLuaVM(L *lua.LState) {
	L.SetGlobal("os", lua.LNil)
	L.SetGlobal("io", lua.LNil)

	L.SetGlobal("require", lua.LNil)
	L.SetGlobal("module", lua.LNil)
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("loadfile", lua.LNil)
	L.SetGlobal("load", lua.LNil)
	L.SetGlobal("loadstring", lua.LNil)
	L.SetGlobal("package", lua.LNil)

	L.SetGlobal("debug", lua.LNil)
	L.SetGlobal("collectgarbage", lua.LNil)
	L.SetGlobal("getfenv", lua.LNil)
	L.SetGlobal("setfenv", lua.LNil)
}

// injectConstants exposes the OS and kind enumerations as read-only tables so
// formulas can write `os = OS.macos` and `kind = kind.man_page`.
func injectConstants(L *lua.LState) {
	osTable := L.NewTable()
	L.SetField(osTable, "macos", lua.LString(OSMacOS))
	L.SetField(osTable, "linux", lua.LString(OSLinux))
	L.SetGlobal("OS", makeReadOnly(L, osTable, "OS"))

	kindTable := L.NewTable()
	for _, k := range Kinds() {
		L.SetField(kindTable, k.String(), lua.LString(k))
	}
	L.SetGlobal("kind", makeReadOnly(L, kindTable, "kind"))
}

// makeReadOnly returns a proxy that redirects reads to table and rejects writes.
func makeReadOnly(L *lua.LState, table *lua.LTable, name string) *lua.LTable {
	mt := L.NewTable()
	L.SetField(mt, "__index", table)
	L.SetField(mt, "__newindex", L.NewFunction(func(L *lua.LState) int {
		L.RaiseError("%s table is read-only and cannot be modified", name)
		return 0
	}))
	L.SetField(mt, "__metatable", lua.LString("protected"))

	proxy := L.NewTable()
	L.SetMetatable(proxy, mt)
	return proxy
}

// newSandboxedVM creates a Lua VM with sandboxing and formula constants applied.
func newSandboxedVM() *lua.LState {
	L := lua.NewState(lua.Options{
		CallStackSize:       256,
		RegistrySize:        1024 * 8,
		IncludeGoStackTrace: false,
	})
	sandboxLuaVM(L)
	injectConstants(L)
	return L
}
