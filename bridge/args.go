package bridge

import (
	"fmt"
	"strings"

	"github.com/mattn/go-shellwords"
)

// Arg is one --key value flag of an entry point call.
type Arg struct {
	Key   string
	Value string
}

// Invocation is a parsed entry point call.
type Invocation struct {
	// Program holds the tokens before the operation: the interpreter and the
	// entry point script.
	Program   []string
	Operation string
	Args      []Arg
}

// Get returns the value of the flag key.
func (inv Invocation) Get(key string) (string, bool) {
	for _, a := range inv.Args {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// Argv returns operation followed by the flags, one token per element, the
// way the child receives them.
func Argv(operation string, args []Arg) []string {
	out := make([]string, 0, 1+2*len(args))
	out = append(out, operation)
	for _, a := range args {
		out = append(out, "--"+a.Key, a.Value)
	}
	return out
}

// RenderCommandLine renders a call as a single shell line:
//
//	"program" "entry" operation --key "value" ...
func RenderCommandLine(program []string, operation string, args []Arg) string {
	var sb strings.Builder
	for _, p := range program {
		sb.WriteString(Quote(p))
		sb.WriteByte(' ')
	}
	sb.WriteString(operation)
	for _, a := range args {
		sb.WriteString(" --")
		sb.WriteString(a.Key)
		sb.WriteByte(' ')
		sb.WriteString(Quote(a.Value))
	}
	return sb.String()
}

// Quote wraps s in double quotes, escaping the characters a POSIX shell
// interprets inside them.
func Quote(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 2)
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"', '\\', '$', '`':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	sb.WriteByte('"')
	return sb.String()
}

// ParseCommandLine parses a line produced by RenderCommandLine.
func ParseCommandLine(line string) (Invocation, error) {
	tokens, err := shellwords.Parse(line)
	if err != nil {
		return Invocation{}, fmt.Errorf("parsing command line: %w", err)
	}
	return ParseArgv(tokens)
}

// ParseArgv parses tokens of the form [program...] operation --key value ...
// The operation is the last token before the first flag.
func ParseArgv(tokens []string) (Invocation, error) {
	first := len(tokens)
	for i, t := range tokens {
		if strings.HasPrefix(t, "--") {
			first = i
			break
		}
	}
	if first == 0 {
		return Invocation{}, fmt.Errorf("no operation in %q", tokens)
	}
	inv := Invocation{
		Program:   tokens[:first-1],
		Operation: tokens[first-1],
	}
	rest := tokens[first:]
	for i := 0; i < len(rest); i += 2 {
		key, ok := strings.CutPrefix(rest[i], "--")
		if !ok || key == "" {
			return Invocation{}, fmt.Errorf("expected flag, got %q", rest[i])
		}
		if i+1 >= len(rest) {
			return Invocation{}, fmt.Errorf("flag --%s has no value", key)
		}
		inv.Args = append(inv.Args, Arg{Key: key, Value: rest[i+1]})
	}
	return inv, nil
}

// VerifyCommandLine parses line back and checks that it carries operation
// and exactly args, in order.
func VerifyCommandLine(line, operation string, args []Arg) error {
	inv, err := ParseCommandLine(line)
	if err != nil {
		return err
	}
	if inv.Operation != operation {
		return fmt.Errorf("command line runs %q, want %q", inv.Operation, operation)
	}
	if len(inv.Args) != len(args) {
		return fmt.Errorf("command line has %d flags, want %d", len(inv.Args), len(args))
	}
	for i, a := range args {
		if inv.Args[i] != a {
			return fmt.Errorf("flag %d reads back as --%s %q, want --%s %q", i, inv.Args[i].Key, inv.Args[i].Value, a.Key, a.Value)
		}
	}
	return nil
}
