// validate.go - Required-field and range checks run before export.
package poster

import "fmt"

// Validate checks that every required field is set and every number lies
// within its bounds. It returns a *ValidationError or nil.
func Validate(s FormState) error {
	var problems []FieldProblem
	for _, spec := range Schema {
		if !s.IsSet(spec.Field) {
			problems = append(problems, FieldProblem{Field: spec.Field, Message: spec.Required, Missing: true})
			continue
		}
		if spec.Kind != "number" {
			continue
		}
		v := **s.intField(spec.Field)
		if v < spec.Min || v > spec.Max {
			problems = append(problems, FieldProblem{
				Field:   spec.Field,
				Message: fmt.Sprintf("%s 应在 %d 到 %d 之间", spec.Label, spec.Min, spec.Max),
			})
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: problems}
}
