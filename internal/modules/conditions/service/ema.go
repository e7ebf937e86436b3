package service

import "math"

// emaState: EMA с затравкой простым средним первых period значений.
type emaState struct {
	period int
	alpha  float64
	value  float64
	sum    float64
	warmup int
}

func newEMA(period int) emaState {
	if period <= 1 {
		period = 1
	}
	return emaState{
		period: period,
		alpha:  2.0 / (float64(period) + 1),
	}
}

func (e *emaState) Update(v float64) {
	if e.warmup < e.period {
		e.sum += v
		e.warmup++
		if e.warmup == e.period {
			e.value = e.sum / float64(e.period)
		}
		return
	}
	e.value = e.alpha*v + (1-e.alpha)*e.value
}

func (e *emaState) Ready() bool    { return e.warmup >= e.period }
func (e *emaState) Value() float64 { return e.value }

// EMA по всей серии. Длина результата равна длине входа, первые period-1 значений, NaN.
func EMA(data []float64, period int) []float64 {
	out := make([]float64, len(data))
	e := newEMA(period)
	for i, v := range data {
		e.Update(v)
		if e.Ready() {
			out[i] = e.Value()
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}
