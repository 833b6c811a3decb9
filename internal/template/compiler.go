package template

import (
	"strings"

	"github.com/rs/zerolog"
)

// Compiler substitutes {{key}} placeholders with caller-supplied values.
// Compilation is total: a placeholder without a matching key renders as an
// empty string, and a malformed field (unterminated placeholder) falls back
// to the raw input with a warning so a templating defect never blocks a send.
type Compiler struct {
	logger zerolog.Logger
}

func NewCompiler(logger zerolog.Logger) *Compiler {
	return &Compiler{logger: logger.With().Str("component", "template_compiler").Logger()}
}

func (c *Compiler) Compile(field string, data map[string]string) string {
	if !strings.Contains(field, "{{") {
		return field
	}

	var b strings.Builder
	rest := field
	for {
		open := strings.Index(rest, "{{")
		if open < 0 {
			b.WriteString(rest)
			break
		}
		closing := strings.Index(rest[open:], "}}")
		if closing < 0 {
			c.logger.Warn().Str("field", field).Msg("unterminated placeholder, using raw template")
			return field
		}
		b.WriteString(rest[:open])
		key := strings.TrimSpace(rest[open+2 : open+closing])
		b.WriteString(data[key])
		rest = rest[open+closing+2:]
	}
	return b.String()
}
