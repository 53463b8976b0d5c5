package detector

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Scaler standardizes each feature with the population mean and standard
// deviation of the training batch. Constant features keep a scale of 1.
type Scaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// zeroScale treats rounding noise on a constant column as zero spread.
const zeroScale = 10 * 2.220446049250313e-16

func FitScaler(data [][]float64) Scaler {
	if len(data) == 0 {
		return Scaler{}
	}
	width := len(data[0])
	mean := make([]float64, width)
	std := make([]float64, width)
	col := make([]float64, len(data))
	for j := 0; j < width; j++ {
		for i, row := range data {
			col[i] = row[j]
		}
		mean[j], std[j] = stat.PopMeanStdDev(col, nil)
		if std[j] < zeroScale || math.IsNaN(std[j]) {
			std[j] = 1
		}
	}
	return Scaler{Mean: mean, Std: std}
}

func (s Scaler) Transform(x []float64) []float64 {
	out := make([]float64, len(x))
	for j, v := range x {
		out[j] = (v - s.Mean[j]) / s.Std[j]
	}
	return out
}

func (s Scaler) TransformAll(data [][]float64) [][]float64 {
	out := make([][]float64, len(data))
	for i, row := range data {
		out[i] = s.Transform(row)
	}
	return out
}

func (s Scaler) Width() int {
	return len(s.Mean)
}
