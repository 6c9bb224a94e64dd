package assertion

import "strings"

// ParseCheckString parses a compact check of the form
// "check:expected". Several checks may be joined with commas;
// each becomes a Definition on the same target.
//
// Examples:
//
//	"checked"                 -> [{checked}]
//	"text_equals:Dark"        -> [{text_equals Dark}]
//	"visible,enabled"         -> [{visible} {enabled}]
func ParseCheckString(target, s, expected string) []Definition {
	parts := strings.Split(s, ",")
	defs := make([]Definition, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		check, value, hasValue := strings.Cut(p, ":")
		def := Definition{
			Check:    strings.TrimSpace(check),
			Target:   target,
			Expected: expected,
		}
		if hasValue {
			def.Expected = strings.TrimSpace(value)
		}
		defs = append(defs, def)
	}
	if len(defs) == 0 {
		defs = append(defs, Definition{
			Check: DefaultCheck, Target: target, Expected: expected,
		})
	}
	return defs
}
