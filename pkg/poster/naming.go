// naming.go - Poster title and export file name.
package poster

import (
	"fmt"
	"strconv"
)

// Placeholder is shown for an undefined title part.
const Placeholder = "--"

// TitleFields are the fields the title is composed from.
var TitleFields = []Field{FieldTrainingName, FieldTrainingNo}

// Title composes "{trainingName}训练营_第{trainingNo}期" with "--" for
// missing parts.
func Title(s FormState) string {
	name := s.TrainingName
	if name == "" {
		name = Placeholder
	}
	no := Placeholder
	if s.TrainingNo != nil {
		no = strconv.Itoa(*s.TrainingNo)
	}
	return fmt.Sprintf("%s训练营_第%s期", name, no)
}

// FileName returns "{userName}_{trainingName}训练营_第{trainingNo}期.jpg".
// Callers validate the state first; undefined parts are rendered empty.
func FileName(s FormState) string {
	no := ""
	if s.TrainingNo != nil {
		no = strconv.Itoa(*s.TrainingNo)
	}
	return fmt.Sprintf("%s_%s训练营_第%s期.jpg", s.UserName, s.TrainingName, no)
}
