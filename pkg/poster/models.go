// Package poster holds the form model behind the certificate poster: the
// form state store, the derived metrics projector, avatar ingestion and the
// naming rules for titles and exported files.
package poster

// Field names a FormState field by its form key.
type Field string

// Form keys.
const (
	FieldTrainingName     Field = "trainingName"
	FieldTrainingNo       Field = "trainingNo"
	FieldUserName         Field = "userName"
	FieldUserAvatar       Field = "userAvatar"
	FieldClockDays        Field = "clockDays"
	FieldTotalTargetCount Field = "totalTargetCount"
	FieldTotalPoints      Field = "totalPoints"
)

// Fields lists every field in form order.
var Fields = []Field{
	FieldTrainingName,
	FieldTrainingNo,
	FieldUserName,
	FieldUserAvatar,
	FieldClockDays,
	FieldTotalTargetCount,
	FieldTotalPoints,
}

// FieldSpec describes one form control.
type FieldSpec struct {
	Field    Field  `json:"field"`
	Label    string `json:"label"`
	Kind     string `json:"kind"` // "text", "number" or "image"
	Min      int    `json:"min,omitempty"`
	Max      int    `json:"max,omitempty"`
	Required string `json:"required"` // message shown when the field is empty
}

// Schema describes the form controls, in form order.
var Schema = []FieldSpec{
	{Field: FieldTrainingName, Label: "标题名称", Kind: "text", Required: "请输入标题"},
	{Field: FieldTrainingNo, Label: "第几期", Kind: "number", Min: 1, Max: 999, Required: "请输入第几期"},
	{Field: FieldUserName, Label: "学员姓名", Kind: "text", Required: "请输入学员姓名"},
	{Field: FieldUserAvatar, Label: "学员头像", Kind: "image", Required: "请上传学员头像"},
	{Field: FieldClockDays, Label: "打卡天数", Kind: "number", Min: 0, Max: 21, Required: "请输入打卡天数"},
	{Field: FieldTotalTargetCount, Label: "总目标数", Kind: "number", Min: 0, Max: 99, Required: "请输入总目标数"},
	{Field: FieldTotalPoints, Label: "评分", Kind: "number", Min: 0, Max: 99, Required: "请输入评分"},
}

// Spec returns the schema entry for f.
func Spec(f Field) (FieldSpec, bool) {
	for _, s := range Schema {
		if s.Field == f {
			return s, true
		}
	}
	return FieldSpec{}, false
}

// FormState is the value of every editable field at one instant.
// An empty string or nil pointer means the field is undefined.
type FormState struct {
	TrainingName     string `json:"trainingName,omitempty"`
	TrainingNo       *int   `json:"trainingNo,omitempty"`
	UserName         string `json:"userName,omitempty"`
	UserAvatar       string `json:"userAvatar,omitempty"`
	ClockDays        *int   `json:"clockDays,omitempty"`
	TotalTargetCount *int   `json:"totalTargetCount,omitempty"`
	TotalPoints      *int   `json:"totalPoints,omitempty"`
}

// Clone returns a deep copy of s.
func (s FormState) Clone() FormState {
	c := s
	c.TrainingNo = cloneInt(s.TrainingNo)
	c.ClockDays = cloneInt(s.ClockDays)
	c.TotalTargetCount = cloneInt(s.TotalTargetCount)
	c.TotalPoints = cloneInt(s.TotalPoints)
	return c
}

// IsSet reports whether f holds a value.
func (s FormState) IsSet(f Field) bool {
	switch f {
	case FieldTrainingName:
		return s.TrainingName != ""
	case FieldTrainingNo:
		return s.TrainingNo != nil
	case FieldUserName:
		return s.UserName != ""
	case FieldUserAvatar:
		return s.UserAvatar != ""
	case FieldClockDays:
		return s.ClockDays != nil
	case FieldTotalTargetCount:
		return s.TotalTargetCount != nil
	case FieldTotalPoints:
		return s.TotalPoints != nil
	}
	return false
}

// intField returns the pointer slot of an integer field, or nil.
func (s *FormState) intField(f Field) **int {
	switch f {
	case FieldTrainingNo:
		return &s.TrainingNo
	case FieldClockDays:
		return &s.ClockDays
	case FieldTotalTargetCount:
		return &s.TotalTargetCount
	case FieldTotalPoints:
		return &s.TotalPoints
	}
	return nil
}

// stringField returns the slot of a string field, or nil.
func (s *FormState) stringField(f Field) *string {
	switch f {
	case FieldTrainingName:
		return &s.TrainingName
	case FieldUserName:
		return &s.UserName
	case FieldUserAvatar:
		return &s.UserAvatar
	}
	return nil
}

func (s FormState) equal(o FormState, f Field) bool {
	if p := s.stringField(f); p != nil {
		return *p == *o.stringField(f)
	}
	if p := s.intField(f); p != nil {
		return intEqual(*p, *o.intField(f))
	}
	return true
}

// Int returns a pointer to v.
func Int(v int) *int { return &v }

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func intEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
