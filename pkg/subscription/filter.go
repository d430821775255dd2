// Package subscription compiles subscription filter expressions and evaluates them against events.
package subscription

import (
	"strings"

	"github.com/dukex/courier/pkg/integration"
	"github.com/dukex/courier/pkg/models"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Filter is a compiled subscription expression.
type Filter struct {
	source  string
	program *vm.Program
}

// Compile validates raw and turns it into a Filter. raw comes straight from
// the settings blob, so any JSON type may show up here.
func Compile(raw any) (*Filter, error) {
	expression, ok := raw.(string)
	if !ok {
		return nil, integration.NewFilterError("subscribe must be a string")
	}

	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, integration.NewFilterError("subscribe must not be empty")
	}

	// Identifiers such as "type" must resolve to event fields, not builtins.
	program, err := expr.Compile(
		normalize(expression),
		expr.AllowUndefinedVariables(),
		expr.DisableAllBuiltins(),
	)
	if err != nil {
		return nil, integration.NewFilterError(err.Error())
	}

	return &Filter{source: expression, program: program}, nil
}

func (f *Filter) String() string {
	return f.source
}

// Matches reports whether event satisfies the filter. Evaluation errors and
// non-boolean results count as no match.
func (f *Filter) Matches(event models.Event) bool {
	if f == nil || event == nil {
		return false
	}

	output, err := expr.Run(f.program, map[string]any(event.Clone()))
	if err != nil {
		return false
	}

	matched, ok := output.(bool)

	return ok && matched
}

// normalize rewrites the single '=' equality of the subscription language
// into '=='. String literals are left untouched.
func normalize(expression string) string {
	var (
		b     strings.Builder
		quote rune
	)

	runes := []rune(expression)

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if quote != 0 {
			b.WriteRune(r)

			switch r {
			case '\\':
				if i+1 < len(runes) {
					i++
					b.WriteRune(runes[i])
				}
			case quote:
				quote = 0
			}

			continue
		}

		switch r {
		case '"', '\'', '`':
			quote = r
		case '=':
			prev := rune(0)
			if i > 0 {
				prev = runes[i-1]
			}

			next := rune(0)
			if i+1 < len(runes) {
				next = runes[i+1]
			}

			if !strings.ContainsRune("=!<>", prev) && next != '=' {
				b.WriteString("==")

				continue
			}
		}

		b.WriteRune(r)
	}

	return b.String()
}
