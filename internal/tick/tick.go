// Package tick implements price quantization against an exchange tick-size
// schedule.
//
// Two rounding policies exist for prices that already sit exactly on a tick:
// RoundUp keeps them (used for the buy-ladder discounts), StrictlyAbove
// escalates to the next tick (used by the contact-price candidate search).
// Both are explicit entry points so no caller depends on an implicit policy.
package tick

import (
	"fmt"
	"math"
)

// Bucket maps prices below Upper to a fixed Step increment.
type Bucket struct {
	Upper float64 // Exclusive upper bound; +Inf for the last bucket
	Step  float64 // Legal minimum increment inside the bucket
}

// Schedule is an ordered, contiguous set of buckets covering all prices >= 0.
type Schedule []Bucket

// KRX returns the Korean equity market tick schedule.
func KRX() Schedule {
	return Schedule{
		{Upper: 2_000, Step: 1},
		{Upper: 5_000, Step: 5},
		{Upper: 20_000, Step: 10},
		{Upper: 50_000, Step: 50},
		{Upper: 200_000, Step: 100},
		{Upper: 500_000, Step: 500},
		{Upper: math.Inf(1), Step: 1_000},
	}
}

// InvalidPriceError reports a negative or non-finite price input.
type InvalidPriceError struct {
	Price float64
}

func (e *InvalidPriceError) Error() string {
	return fmt.Sprintf("invalid price %v: must be finite and >= 0", e.Price)
}

// SizeAt returns the tick size of the bucket containing price.
func (s Schedule) SizeAt(price float64) (float64, error) {
	if price < 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, &InvalidPriceError{Price: price}
	}
	for _, b := range s {
		if price < b.Upper {
			return b.Step, nil
		}
	}
	// Unreachable for a well-formed schedule ending at +Inf.
	return 0, &InvalidPriceError{Price: price}
}

// RoundUp returns the smallest on-tick price >= price. The tick size is
// evaluated at the resulting value: rounding across a bucket boundary
// re-checks the step until the result is stable in its own bucket.
// An exact on-tick input is returned unchanged.
func (s Schedule) RoundUp(price float64) (float64, error) {
	step, err := s.SizeAt(price)
	if err != nil {
		return 0, err
	}
	for {
		q := math.Ceil(price/step) * step
		st, err := s.SizeAt(q)
		if err != nil {
			return 0, err
		}
		if st == step {
			return q, nil
		}
		step = st
	}
}

// RoundDown returns the largest on-tick price <= price, with the same
// resulting-bucket step evaluation as RoundUp.
func (s Schedule) RoundDown(price float64) (float64, error) {
	step, err := s.SizeAt(price)
	if err != nil {
		return 0, err
	}
	for {
		q := math.Floor(price/step) * step
		st, err := s.SizeAt(q)
		if err != nil {
			return 0, err
		}
		if st == step {
			return q, nil
		}
		step = st
	}
}

// StrictlyAbove returns the smallest on-tick price strictly greater than
// price. Bucket bounds are multiples of the adjoining steps, so advancing
// off a boundary always lands on a legal tick.
func (s Schedule) StrictlyAbove(price float64) (float64, error) {
	q, err := s.RoundUp(price)
	if err != nil {
		return 0, err
	}
	if q > price {
		return q, nil
	}
	step, err := s.SizeAt(q)
	if err != nil {
		return 0, err
	}
	return q + step, nil
}

// OnTick reports whether price is an exact multiple of its own bucket's step.
func (s Schedule) OnTick(price float64) bool {
	step, err := s.SizeAt(price)
	if err != nil {
		return false
	}
	return math.Mod(price, step) == 0
}
