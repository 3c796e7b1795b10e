package activity

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/Shopify/go-lua"

	"github.com/tessera-flow/tessera/engine/pkg/api"
)

type (
	// LuaActivity runs a sandboxed Lua script per attempt. The script sees
	// the globals params, inputs and config. A returned table becomes the
	// result, and any other value is wrapped as {result = value}
	LuaActivity struct {
		cache     *compileCache[[]byte]
		statePool chan *lua.State
	}
)

const (
	luaConfigScript = "script"

	luaCacheSize        = 1024
	luaStatePoolSize    = 10
	luaGlobalTableIndex = -2
	luaTableSetIndex    = -3
	luaGlobalTableName  = "_G"
	luaChunkName        = "task"

	luaGlobalParams = "params"
	luaGlobalInputs = "inputs"
	luaGlobalConfig = "config"
)

var (
	ErrNoScript     = errors.New("lua activity requires a script")
	ErrLuaLoad      = errors.New("lua load error")
	ErrLuaExecution = errors.New("lua execution error")
)

var luaExclude = [...]string{
	"io", "os", "debug", "package", "require", "dofile", "loadfile", "load",
}

// NewLuaActivity creates a Lua activity with a compiled script cache and a
// pool of interpreter states
func NewLuaActivity() *LuaActivity {
	return &LuaActivity{
		cache:     newCompileCache(luaCacheSize, compileLua),
		statePool: make(chan *lua.State, luaStatePoolSize),
	}
}

// Invoke runs the configured script. Scripts that fail to compile are
// permanent failures, while errors raised during execution are retryable
func (a *LuaActivity) Invoke(
	ctx context.Context, req *api.ActivityRequest,
) (api.Args, error) {
	src := req.Config.GetString(luaConfigScript, "")
	if src == "" {
		return nil, api.PermanentError(ErrNoScript)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bytecode, err := a.cache.Get(src)
	if err != nil {
		return nil, api.PermanentError(fmt.Errorf("%w: %w", ErrLuaLoad, err))
	}

	L := a.getState()
	defer a.returnState(L)

	setupSandbox(L)
	setGlobal(L, luaGlobalParams, map[string]any(req.Parameters))
	setGlobal(L, luaGlobalInputs, map[string]any(req.InputArgs()))
	setGlobal(L, luaGlobalConfig, map[string]any(req.Config))

	if err := L.Load(bytes.NewReader(bytecode), luaChunkName, "b"); err != nil {
		return nil, api.PermanentError(fmt.Errorf("%w: %w", ErrLuaLoad, err))
	}
	if err := L.ProtectedCall(0, 1, 0); err != nil {
		return nil, api.RetryableError(
			fmt.Errorf("%w: %w", ErrLuaExecution, err),
		)
	}

	var res api.Args
	if L.IsTable(-1) {
		res = luaTableToArgs(L, -1)
	} else {
		res = api.Args{"result": luaToGo(L, -1)}
	}
	L.Pop(1)
	return res, nil
}

// Validate reports whether the script compiles
func (a *LuaActivity) Validate(src string) error {
	if _, err := a.cache.Get(src); err != nil {
		return fmt.Errorf("%w: %w", ErrLuaLoad, err)
	}
	return nil
}

func compileLua(src string) ([]byte, error) {
	L := lua.NewState()
	setupSandbox(L)
	if err := lua.LoadString(L, src); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := L.Dump(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func setupSandbox(L *lua.State) {
	lua.OpenLibraries(L)
	L.Global(luaGlobalTableName)
	for _, name := range luaExclude {
		L.PushNil()
		L.SetField(luaGlobalTableIndex, name)
	}
	L.Pop(1)
}

func setGlobal(L *lua.State, name string, value map[string]any) {
	if value == nil {
		value = map[string]any{}
	}
	pushLuaMap(L, value)
	L.SetGlobal(name)
}

func (a *LuaActivity) getState() *lua.State {
	select {
	case L := <-a.statePool:
		return L
	default:
		return lua.NewState()
	}
}

func (a *LuaActivity) returnState(L *lua.State) {
	L.SetTop(0)
	select {
	case a.statePool <- L:
	default:
	}
}
