package pattern

// View is the effective matching configuration consumed by the scanner.
// It decouples what is stored on a Pattern from what is matched against:
// the scanner never sees raw examples, only the committed expression set,
// the exclusion list, and the confidence threshold.
type View struct {
	PatternID              string
	Label                  string
	Category               Category
	Expression             string
	AlternativeExpressions []string
	ExcludedExamples       []string
	ConfidenceThreshold    float64
	IsContextClue          bool
}

// NewView assembles the currently-committed matching configuration for p
func NewView(p *Pattern) View {
	return View{
		PatternID:              p.ID,
		Label:                  p.Label,
		Category:               p.Category,
		Expression:             p.Expression,
		AlternativeExpressions: append([]string(nil), p.AlternativeExpressions...),
		ExcludedExamples:       append([]string(nil), p.ExcludedExamples...),
		ConfidenceThreshold:    p.ConfidenceThreshold,
		IsContextClue:          p.IsContextClue,
	}
}

// IsExcluded reports whether text is on the view's exclusion list
func (v *View) IsExcluded(text string) bool {
	for _, excluded := range v.ExcludedExamples {
		if excluded == text {
			return true
		}
	}
	return false
}
