package resp

import (
	"context"
)

// Executor is the command target: whatever backs SET/GET/DEL. The reactor
// wires this to *db.DB; keeping it as an interface here lets command
// dispatch be tested without a real disk store.
type Executor interface {
	Set(ctx context.Context, key string, value []byte)
	Get(ctx context.Context, key string) ([]byte, bool)
	Del(key string) bool
}

// Dispatch executes one decoded command against exec and returns the
// encoded reply plus whether the connection should close after it is
// flushed (true only for QUIT).
func Dispatch(ctx context.Context, exec Executor, args [][]byte) (reply []byte, shouldClose bool) {
	if len(args) == 0 {
		return FormatError("ERR unknown command"), false
	}

	name := upperASCII(args[0])

	switch name {
	case "PING":
		switch len(args) {
		case 1:
			return FormatSimpleString("PONG"), false
		case 2:
			return FormatSimpleString(string(args[1])), false
		default:
			return FormatError("ERR wrong number of arguments for 'ping'"), false
		}

	case "SET":
		if len(args) != 3 {
			return FormatError("ERR wrong number of arguments for 'set'"), false
		}
		exec.Set(ctx, string(args[1]), args[2])
		return FormatSimpleString("OK"), false

	case "GET":
		if len(args) != 2 {
			return FormatError("ERR wrong number of arguments for 'get'"), false
		}
		value, ok := exec.Get(ctx, string(args[1]))
		if !ok {
			return FormatNullBulk(), false
		}
		return FormatBulkString(value), false

	case "DEL":
		if len(args) != 2 {
			return FormatError("ERR wrong number of arguments for 'del'"), false
		}
		if exec.Del(string(args[1])) {
			return FormatInteger(1), false
		}
		return FormatInteger(0), false

	case "QUIT":
		return FormatSimpleString("OK"), true

	default:
		return FormatError("ERR unknown command"), false
	}
}

// upperASCII uppercases only ASCII letters, matching RESP command names
// being case-insensitive without pulling in locale-aware casing rules.
func upperASCII(b []byte) string {
	out := make([]byte, len(b))
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

// CommandName extracts and upper-cases args[0] with the same ASCII-only
// casing Dispatch uses. Nothing in this module currently calls it.
func CommandName(args [][]byte) string {
	if len(args) == 0 {
		return ""
	}
	return upperASCII(args[0])
}
