package scoring

import "eliteguard/internal/model"

// sma returns the simple moving average of the last period closes.
// Compact re-derivation of teacher's internal/indicator SMA math for
// point-in-time reads over a ring snapshot rather than a continuously
// streamed indicator.
func sma(c []model.Candle, period int) float64 {
	w := window(c, period)
	if len(w) == 0 {
		return 0
	}
	var sum float64
	for _, x := range w {
		sum += x.Close
	}
	return sum / float64(len(w))
}

// atr is the simple (non-Wilder) mean of each bar's high-low range over the
// last period bars; gaps from the previous close are not included, so it is
// not a true range.
func atr(c []model.Candle, period int) float64 {
	w := window(c, period)
	if len(w) == 0 {
		return 0
	}
	var sum float64
	for _, x := range w {
		sum += x.High - x.Low
	}
	return sum / float64(len(w))
}

func window(c []model.Candle, period int) []model.Candle {
	if period >= len(c) || period <= 0 {
		return c
	}
	return c[len(c)-period:]
}

// maDirectionMatch reports whether the short/long MA crossover on c
// agrees with dir (spec §4.D.3 "3-period vs 10-period MA direction").
func maDirectionMatch(c []model.Candle, short, long int, dir model.Direction) bool {
	if len(c) < long {
		return false
	}
	s := sma(c, short)
	l := sma(c, long)
	if dir == model.Buy {
		return s > l
	}
	return s < l
}
