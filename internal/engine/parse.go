package engine

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/atelic-ai/voceria/pkg/types"
)

// The model is instructed to emit [name(k=v)] but in practice produces tool
// calls in several surface forms. Each pattern below contributes candidates;
// duplicates are dropped keeping the first occurrence.
var (
	bracketCallPattern = regexp.MustCompile(`(?s)\[(\w+)\((.*?)\)\]`)
	bracketBarePattern = regexp.MustCompile(`(?s)\[(\w+)\]`)
	jsonCallPattern    = regexp.MustCompile(`(?s)\{[^{}]*"type"\s*:\s*"function"[^{}]*\}`)
	xmlCallPattern     = regexp.MustCompile(`(?s)<function\s*=\s*(\w+)>(.*?)</function>`)
	pythonTagPattern   = regexp.MustCompile(`(?s)<\|python_tag\|>\s*(\w+)\.call\((.*?)\)`)

	// nakedEndCallPattern matches the end_call({"reason":"..."}) shape some
	// completions emit without brackets.
	nakedEndCallPattern = regexp.MustCompile(`end_call\s*\(\s*\{[^}]*\}\s*\)`)
	nakedReasonPattern  = regexp.MustCompile(`end_call\s*\(\s*\{\s*"reason"\s*:\s*"([^"]*)"\s*\}\s*\)`)
)

// Parser extracts tool calls from raw completion text. The known set bounds
// what parses; unknown names are dropped silently.
type Parser struct {
	known map[string]bool
}

// NewParser creates a Parser accepting the given tool names.
func NewParser(defs []types.ToolDefinition) *Parser {
	known := make(map[string]bool, len(defs))
	for _, d := range defs {
		known[d.Name] = true
	}
	return &Parser{known: known}
}

// sanitize rewrites the bracketless end_call shape to the bracketed form so
// the main matcher picks it up.
func sanitize(text string) string {
	if !strings.Contains(text, `end_call({"reason"`) || strings.Contains(text, "[end_call") {
		return text
	}
	return nakedReasonPattern.ReplaceAllString(text, `[end_call(reason="$1")]`)
}

// Parse returns every recognised tool call in text, first occurrence per
// name, in match order across all surface forms.
func (p *Parser) Parse(text string) []types.ToolCall {
	text = sanitize(text)

	var calls []types.ToolCall
	seen := make(map[string]bool)
	add := func(name string, args map[string]any) {
		if !p.known[name] || seen[name] {
			return
		}
		seen[name] = true
		if args == nil {
			args = map[string]any{}
		}
		calls = append(calls, types.ToolCall{Name: name, Arguments: args})
	}

	for _, m := range bracketCallPattern.FindAllStringSubmatch(text, -1) {
		add(m[1], parseKeywordArgs(m[2]))
	}
	for _, m := range bracketBarePattern.FindAllStringSubmatch(text, -1) {
		add(m[1], nil)
	}
	for _, m := range jsonCallPattern.FindAllString(text, -1) {
		var obj struct {
			Type       string         `json:"type"`
			Name       string         `json:"name"`
			Parameters map[string]any `json:"parameters"`
		}
		if err := json.Unmarshal([]byte(m), &obj); err != nil || obj.Type != "function" {
			continue
		}
		add(obj.Name, obj.Parameters)
	}
	for _, m := range xmlCallPattern.FindAllStringSubmatch(text, -1) {
		var args map[string]any
		if body := strings.TrimSpace(m[2]); body != "" {
			if err := json.Unmarshal([]byte(body), &args); err != nil {
				continue
			}
		}
		add(m[1], args)
	}
	for _, m := range pythonTagPattern.FindAllStringSubmatch(text, -1) {
		add(m[1], parseKeywordArgs(m[2]))
	}
	return calls
}

// StripToolCalls removes every tool-call surface form from text; the trimmed
// remainder is the candidate spoken reply.
func StripToolCalls(text string) string {
	text = bracketCallPattern.ReplaceAllString(text, "")
	text = jsonCallPattern.ReplaceAllString(text, "")
	text = xmlCallPattern.ReplaceAllString(text, "")
	text = pythonTagPattern.ReplaceAllString(text, "")
	text = nakedEndCallPattern.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// parseKeywordArgs parses `k1=v1, k2="two words", k3=3` argument lists with
// shell-style quoting, so a quoted value containing spaces or commas stays a
// single token.
func parseKeywordArgs(s string) map[string]any {
	args := map[string]any{}
	if strings.TrimSpace(s) == "" {
		return args
	}

	tokens, err := splitQuoted(s)
	if err != nil {
		// Degenerate quoting: fall back to a plain comma split.
		tokens = strings.Split(s, ",")
	}
	for _, tok := range tokens {
		key, value, found := strings.Cut(tok, "=")
		if !found {
			continue
		}
		args[strings.TrimSpace(key)] = coerceValue(value)
	}
	return args
}

// splitQuoted tokenizes on whitespace and commas while honouring single and
// double quotes. Quotes group characters without appearing in the output,
// matching shell word splitting.
func splitQuoted(s string) ([]string, error) {
	var tokens []string
	var cur strings.Builder
	var quote rune
	inToken := false

	flush := func() {
		if inToken {
			tokens = append(tokens, cur.String())
			cur.Reset()
			inToken = false
		}
	}

	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inToken = true
		case r == ' ' || r == '\t' || r == '\n' || r == ',':
			// A comma inside quotes was handled above; here it separates.
			if r == ',' {
				cur.WriteRune(r)
			}
			flush()
		default:
			cur.WriteRune(r)
			inToken = true
		}
	}
	if quote != 0 {
		return nil, strconv.ErrSyntax
	}
	flush()
	return tokens, nil
}

// coerceValue maps a raw string value to bool, nil, int, float, or string,
// stripping surrounding quotes and a trailing comma.
func coerceValue(v string) any {
	v = strings.TrimSpace(v)
	v = strings.Trim(v, `"'`)
	v = strings.TrimSuffix(v, ",")

	switch strings.ToLower(v) {
	case "true":
		return true
	case "false":
		return false
	case "none", "null":
		return nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return v
}
