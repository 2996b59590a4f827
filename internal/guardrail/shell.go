package guardrail

import (
	"slices"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

const maxShellDepth = 3

var shellInterpreters = map[string]bool{
	"sh": true, "bash": true, "zsh": true, "dash": true, "ksh": true,
}

// Segments splits a shell command into its simple commands using a bash
// parser: pipelines, lists, subshells, command substitutions and the inline
// script of "sh -c" are all flattened. Words are unquoted so that
// 'reboot' and "reboot" read the same as reboot, and each segment starts at
// the command that actually runs (see commandWords). When the command does
// not parse, it falls back to splitting on control operators.
func Segments(command string) []string {
	return segmentsAt(command, 0)
}

func segmentsAt(command string, depth int) []string {
	if depth >= maxShellDepth {
		return nil
	}

	parser := syntax.NewParser(syntax.KeepComments(false), syntax.Variant(syntax.LangBash))
	file, err := parser.Parse(strings.NewReader(command), "")
	if err != nil {
		return fallbackSegments(command)
	}

	var out []string
	syntax.Walk(file, func(node syntax.Node) bool {
		call, ok := node.(*syntax.CallExpr)
		if !ok || len(call.Args) == 0 {
			return true
		}

		words := make([]string, 0, len(call.Args))
		for _, w := range call.Args {
			words = append(words, wordString(w))
		}
		words = commandWords(words)
		out = append(out, strings.Join(words, " "))

		if inner := inlineScript(words); inner != "" {
			out = append(out, segmentsAt(inner, depth+1)...)
		}
		return true
	})
	return out
}

// inlineScript returns the script passed to "sh -c", with any sudo prefix
// skipped.
func inlineScript(words []string) string {
	for len(words) > 0 && (words[0] == "sudo" || strings.HasPrefix(words[0], "-")) {
		words = words[1:]
	}
	if len(words) < 3 || !shellInterpreters[baseName(words[0])] {
		return ""
	}
	for i := 1; i < len(words)-1; i++ {
		if strings.HasPrefix(words[i], "-") && strings.Contains(words[i], "c") && !strings.HasPrefix(words[i], "--") {
			return words[i+1]
		}
	}
	return ""
}

func baseName(exe string) string {
	if i := strings.LastIndexByte(exe, '/'); i >= 0 {
		return exe[i+1:]
	}
	return exe
}

func wordString(w *syntax.Word) string {
	var sb strings.Builder
	for _, part := range w.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, inner := range p.Parts {
				if lit, ok := inner.(*syntax.Lit); ok {
					sb.WriteString(lit.Value)
				} else {
					printNode(&sb, inner)
				}
			}
		default:
			printNode(&sb, part)
		}
	}
	return sb.String()
}

func printNode(sb *strings.Builder, node syntax.Node) {
	_ = syntax.NewPrinter().Print(sb, node)
}

func fallbackSegments(command string) []string {
	var out []string
	f := func(r rune) bool { return r == '|' || r == '&' || r == ';' || r == '\n' }
	for _, part := range strings.FieldsFunc(command, f) {
		if words := strings.Fields(part); len(words) > 0 {
			out = append(out, strings.Join(commandWords(words), " "))
		}
	}
	return out
}

// wrappers run their operand as a command. Each maps to the options that
// consume the following word.
var wrappers = map[string][]string{
	"sudo":    {"-u", "-g", "-C", "-D", "-h", "-p", "-r", "-t", "-T", "-U", "--user", "--group", "--chdir", "--host", "--prompt"},
	"doas":    {"-u", "-C"},
	"env":     {"-u", "-C", "-S", "--unset", "--chdir", "--split-string"},
	"nohup":   nil,
	"exec":    {"-a"},
	"command": nil,
	"builtin": nil,
	"nice":    {"-n", "--adjustment"},
	"ionice":  {"-c", "-n", "-p", "--class", "--classdata"},
	"timeout": {"-s", "-k", "--signal", "--kill-after"},
	"xargs":   {"-a", "-d", "-E", "-I", "-L", "-n", "-P", "-s", "--arg-file", "--delimiter", "--max-args", "--max-procs", "--max-chars"},
	"stdbuf":  {"-i", "-o", "-e"},
	"setsid":  nil,
	"time":    {"-f", "-o", "--format", "--output"},
}

// commandWords strips transparent wrappers such as "sudo", "env FOO=1",
// "nohup" and "timeout 5" from the front of words and reduces the executable
// to its base name, so "/usr/bin/env /sbin/reboot" reads as "reboot". Words
// that hold nothing but a wrapper are returned unchanged.
func commandWords(words []string) []string {
	rest := words
	for len(rest) > 0 {
		name := baseName(rest[0])
		valueOpts, ok := wrappers[name]
		if !ok {
			out := make([]string, len(rest))
			copy(out, rest)
			out[0] = name
			return out
		}
		if name == "command" && len(rest) > 1 && (rest[1] == "-v" || rest[1] == "-V") {
			// lookup only
			break
		}
		rest = skipOptions(rest[1:], valueOpts)
		switch name {
		case "env":
			for len(rest) > 0 && (rest[0] == "-" || strings.Contains(rest[0], "=")) {
				rest = rest[1:]
			}
		case "timeout":
			if len(rest) > 0 {
				rest = rest[1:]
			}
		}
	}
	return words
}

func skipOptions(args, valueOpts []string) []string {
	for len(args) > 0 && strings.HasPrefix(args[0], "-") && args[0] != "-" {
		opt := args[0]
		args = args[1:]
		if opt == "--" {
			break
		}
		if slices.Contains(valueOpts, opt) && len(args) > 0 {
			args = args[1:]
		}
	}
	return args
}
