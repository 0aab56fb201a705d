package pattern

import "eliteguard/internal/model"

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// tail returns the last n candles of c (or all of c if n >= len(c)).
func tail(c []model.Candle, n int) []model.Candle {
	if n >= len(c) || n <= 0 {
		return c
	}
	return c[len(c)-n:]
}

func highOf(c []model.Candle) float64 {
	h := c[0].High
	for _, x := range c[1:] {
		if x.High > h {
			h = x.High
		}
	}
	return h
}

func lowOf(c []model.Candle) float64 {
	l := c[0].Low
	for _, x := range c[1:] {
		if x.Low < l {
			l = x.Low
		}
	}
	return l
}

func meanVolume(c []model.Candle) float64 {
	if len(c) == 0 {
		return 0
	}
	var sum float64
	for _, x := range c {
		sum += x.Volume
	}
	return sum / float64(len(c))
}

func sumVolume(c []model.Candle) float64 {
	var sum float64
	for _, x := range c {
		sum += x.Volume
	}
	return sum
}

func smaClose(c []model.Candle, period int) float64 {
	w := tail(c, period)
	if len(w) == 0 {
		return 0
	}
	var sum float64
	for _, x := range w {
		sum += x.Close
	}
	return sum / float64(len(w))
}

// atr computes a simple (non-Wilder) average true range over the last
// period bars: mean(high-low) ignoring overnight gaps, adequate for a
// continuously-traded FX instrument.
func atr(c []model.Candle, period int) float64 {
	w := tail(c, period)
	if len(w) == 0 {
		return 0
	}
	var sum float64
	for _, x := range w {
		sum += x.High - x.Low
	}
	return sum / float64(len(w))
}

// barRangePosition returns where close sits within [low,high] as a 0-1
// fraction (0 = at low, 1 = at high).
func barRangePosition(c model.Candle) float64 {
	rng := c.High - c.Low
	if rng <= 0 {
		return 0.5
	}
	return (c.Close - c.Low) / rng
}
