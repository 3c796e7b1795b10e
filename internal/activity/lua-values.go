package activity

import (
	"fmt"

	"github.com/Shopify/go-lua"

	"github.com/tessera-flow/tessera/engine/pkg/api"
)

func goToLua(L *lua.State, value any) {
	switch v := value.(type) {
	case string:
		L.PushString(v)
	case bool:
		L.PushBoolean(v)
	case int:
		L.PushInteger(v)
	case int64:
		L.PushInteger(int(v))
	case float64:
		L.PushNumber(v)
	case []any:
		pushLuaArray(L, v)
	case map[string]any:
		pushLuaMap(L, v)
	case api.Args:
		pushLuaMap(L, v)
	case nil:
		L.PushNil()
	default:
		L.PushString(fmt.Sprintf("%v", v))
	}
}

func pushLuaArray(L *lua.State, arr []any) {
	L.CreateTable(len(arr), 0)
	for i, item := range arr {
		L.PushInteger(i + 1)
		goToLua(L, item)
		L.SetTable(luaTableSetIndex)
	}
}

func pushLuaMap(L *lua.State, m map[string]any) {
	L.CreateTable(0, len(m))
	for k, v := range m {
		L.PushString(k)
		goToLua(L, v)
		L.SetTable(luaTableSetIndex)
	}
}

func luaToGo(L *lua.State, index int) any {
	switch L.TypeOf(index) {
	case lua.TypeBoolean:
		return L.ToBoolean(index)
	case lua.TypeNumber:
		num, _ := L.ToNumber(index)
		if num == float64(int(num)) {
			return int(num)
		}
		return num
	case lua.TypeString:
		s, _ := L.ToString(index)
		return s
	case lua.TypeTable:
		return luaTableToAny(L, index)
	default:
		return nil
	}
}

func luaTableToArgs(L *lua.State, index int) api.Args {
	res := api.Args{}
	L.PushNil()
	for L.Next(index - 1) {
		if L.TypeOf(-2) == lua.TypeString {
			key, _ := L.ToString(-2)
			res[key] = luaToGo(L, -1)
		}
		L.Pop(1)
	}
	return res
}

// luaTableToAny converts a table with only numeric keys to a slice, and
// any other table to a map
func luaTableToAny(L *lua.State, index int) any {
	abs := L.AbsIndex(index)
	length := 0
	isArray := true

	L.PushNil()
	for L.Next(abs) {
		L.Pop(1)
		if L.TypeOf(-1) != lua.TypeNumber {
			isArray = false
			L.Pop(1)
			break
		}
		length++
	}

	if isArray && length > 0 {
		arr := make([]any, length)
		for i := 1; i <= length; i++ {
			L.RawGetInt(abs, i)
			arr[i-1] = luaToGo(L, -1)
			L.Pop(1)
		}
		return arr
	}

	res := map[string]any{}
	L.PushNil()
	for L.Next(abs) {
		var key string
		if L.TypeOf(-2) == lua.TypeString {
			key, _ = L.ToString(-2)
		} else {
			key = fmt.Sprintf("%v", luaToGo(L, -2))
		}
		res[key] = luaToGo(L, -1)
		L.Pop(1)
	}
	return res
}
