package detector

import "fmt"

// Metrics compares predicted outlier flags with ground-truth labels.
// Confusion is [[TN, FP], [FN, TP]]. A ratio whose denominator is zero is
// left nil rather than reported as 0.
type Metrics struct {
	Precision *float64  `json:"precision"`
	Recall    *float64  `json:"recall"`
	F1        *float64  `json:"f1"`
	Confusion [2][2]int `json:"confusion_matrix"`
	Samples   int       `json:"samples"`
	Positives int       `json:"positives"`
}

func Evaluate(predicted, actual []bool) (Metrics, error) {
	if len(predicted) != len(actual) {
		return Metrics{}, fmt.Errorf("evaluate: %d predictions for %d labels", len(predicted), len(actual))
	}
	var m Metrics
	m.Samples = len(actual)
	for i, want := range actual {
		got := predicted[i]
		row, col := 0, 0
		if want {
			row = 1
			m.Positives++
		}
		if got {
			col = 1
		}
		m.Confusion[row][col]++
	}
	tp := float64(m.Confusion[1][1])
	fp := float64(m.Confusion[0][1])
	fn := float64(m.Confusion[1][0])

	m.Precision = ratio(tp, tp+fp)
	m.Recall = ratio(tp, tp+fn)
	if m.Precision != nil && m.Recall != nil {
		if sum := *m.Precision + *m.Recall; sum > 0 {
			f1 := 2 * *m.Precision * *m.Recall / sum
			m.F1 = &f1
		} else {
			zero := 0.0
			m.F1 = &zero
		}
	}
	return m, nil
}

func ratio(num, den float64) *float64 {
	if den == 0 {
		return nil
	}
	v := num / den
	return &v
}

// Format renders an optional metric for logs.
func Format(v *float64) string {
	if v == nil {
		return "undefined"
	}
	return fmt.Sprintf("%.3f", *v)
}
