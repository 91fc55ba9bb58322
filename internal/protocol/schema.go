package protocol

import (
	"fmt"
	"strings"
)

// Kind is the type of a single argument or value chunk
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindBytes
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBytes:
		return "bytes"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

var argSchemas = map[Command][]Kind{
	CmdSetPosition:    {KindFloat},
	CmdSetVolume:      {KindFloat},
	CmdGetSequence:    {KindInt},
	CmdRemoveSequence: {KindInt},
	CmdAppendSequence: {KindInt, KindInt, KindInt, KindBytes},
}

var valueKinds = map[Command]Kind{
	CmdGetPosition:     KindFloat,
	CmdGetDuration:     KindFloat,
	CmdGetVolume:       KindFloat,
	CmdGetStatus:       KindInt,
	CmdGetNumSequences: KindInt,
	CmdGetSequence:     KindBytes,
}

// Arguments returns the argument kinds of cmd, in order
func Arguments(cmd Command) []Kind {
	return argSchemas[cmd]
}

// ValueKind returns the kind of value cmd responds with, if any
func ValueKind(cmd Command) (Kind, bool) {
	k, ok := valueKinds[cmd]
	return k, ok
}

// Encode encodes v as a chunk of the given kind.
// Ints are passed as int, floats as float64 and bytes as []byte.
func Encode(kind Kind, v any) ([]byte, error) {
	switch kind {
	case KindInt:
		i, ok := v.(int)
		if !ok {
			return nil, fmt.Errorf("%w: want int, got %T", ErrFormat, v)
		}
		return EncodeInt(i)
	case KindFloat:
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("%w: want float64, got %T", ErrFormat, v)
		}
		return EncodeFloat(f)
	case KindBytes:
		b, ok := v.([]byte)
		if !ok {
			return nil, fmt.Errorf("%w: want []byte, got %T", ErrFormat, v)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %v", ErrFormat, kind)
	}
}

// Decode decodes a chunk of the given kind
func Decode(kind Kind, b []byte) (any, error) {
	switch kind {
	case KindInt:
		return DecodeInt(b)
	case KindFloat:
		return DecodeFloat(b)
	case KindBytes:
		return b, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %v", ErrFormat, kind)
	}
}

// EncodeRequest encodes cmd and its arguments into the chunks of one message
func EncodeRequest(cmd Command, args ...any) ([][]byte, error) {
	kinds := Arguments(cmd)
	if len(args) != len(kinds) {
		return nil, fmt.Errorf("%w: %v takes %d arguments, got %d", ErrFormat, cmd, len(kinds), len(args))
	}

	head, err := EncodeInt(int(cmd))
	if err != nil {
		return nil, err
	}

	chunks := [][]byte{head}
	for i, k := range kinds {
		c, err := Encode(k, args[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d of %v: %w", i, cmd, err)
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// DecodeCommand decodes the command code in the first chunk of a request
func DecodeCommand(chunk []byte) (Command, error) {
	code, err := DecodeInt(chunk)
	if err != nil {
		return 0, err
	}
	cmd := Command(code)
	if !cmd.Known() {
		return cmd, fmt.Errorf("%w: unknown command %d", ErrFormat, code)
	}
	return cmd, nil
}

// DecodeArguments decodes the argument chunks of cmd against its schema
func DecodeArguments(cmd Command, chunks [][]byte) ([]any, error) {
	kinds := Arguments(cmd)
	if len(chunks) != len(kinds) {
		return nil, fmt.Errorf("%w: %v takes %d arguments, got %d", ErrFormat, cmd, len(kinds), len(chunks))
	}

	args := make([]any, len(kinds))
	for i, k := range kinds {
		v, err := Decode(k, chunks[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d of %v: %w", i, cmd, err)
		}
		args[i] = v
	}
	return args, nil
}

// Format renders a request for logs; byte arguments are elided
func Format(cmd Command, args []any) string {
	parts := make([]string, len(args))
	for i, a := range args {
		if b, ok := a.([]byte); ok {
			parts[i] = fmt.Sprintf("<%d bytes>", len(b))
			continue
		}
		parts[i] = fmt.Sprint(a)
	}
	return fmt.Sprintf("%v(%s)", cmd, strings.Join(parts, ", "))
}
