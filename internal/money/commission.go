package money

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

var ErrInvalidRate = errors.New("money: commission rate must be a decimal between 0 and 1 with at most 4 places")

// RateScale is the number of basis points in a whole (1.0).
const RateScale = 10000

// Rate is a commission rate in basis points: 0.30 is Rate(3000).
type Rate int64

// ParseRate reads a decimal rate like "0.30" or "0.125" into basis points.
func ParseRate(s string) (Rate, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, "+-") {
		return 0, ErrInvalidRate
	}
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 4 {
		return 0, ErrInvalidRate
	}
	for len(frac) < 4 {
		frac += "0"
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, ErrInvalidRate
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil || f < 0 {
		return 0, ErrInvalidRate
	}
	r := Rate(w*RateScale + f)
	if err := r.Validate(); err != nil {
		return 0, err
	}
	return r, nil
}

// MustParseRate is ParseRate for constants and fixtures.
func MustParseRate(s string) Rate {
	r, err := ParseRate(s)
	if err != nil {
		panic(err)
	}
	return r
}

func (r Rate) Validate() error {
	if r < 0 || r > RateScale {
		return ErrInvalidRate
	}
	return nil
}

// String renders the rate as a decimal, e.g. "0.3000".
func (r Rate) String() string {
	return fmt.Sprintf("%d.%04d", int64(r)/RateScale, int64(r)%RateScale)
}

// Split is the outcome of a commission computation.
type Split struct {
	Total      Amount
	Rate       Rate
	Commission Amount
	OwnerShare Amount
}

// ComputeSettlement splits a rental total into platform commission and owner share.
// Commission is rounded half away from zero on centavos; the owner share is the
// remainder so Commission + OwnerShare == Total always holds.
func ComputeSettlement(total Amount, rate Rate) (Split, error) {
	if total.IsNegative() {
		return Split{}, fmt.Errorf("%w: negative total %s", ErrInvalidAmount, total)
	}
	if err := rate.Validate(); err != nil {
		return Split{}, err
	}
	commission := roundHalfAwayFromZero(int64(total), int64(rate), RateScale)
	return Split{
		Total:      total,
		Rate:       rate,
		Commission: Amount(commission),
		OwnerShare: total - Amount(commission),
	}, nil
}

// roundHalfAwayFromZero computes round(v*num/den) without intermediate overflow.
func roundHalfAwayFromZero(v, num, den int64) int64 {
	p := new(big.Int).Mul(big.NewInt(v), big.NewInt(num))
	d := big.NewInt(den)
	q, m := new(big.Int).QuoRem(p, d, new(big.Int))
	// |2m| >= den rounds away from zero
	twice := new(big.Int).Abs(new(big.Int).Mul(m, big.NewInt(2)))
	if twice.Cmp(d) >= 0 {
		if p.Sign() < 0 {
			q.Sub(q, big.NewInt(1))
		} else {
			q.Add(q, big.NewInt(1))
		}
	}
	return q.Int64()
}

// RateTable resolves the commission rate for an item category, falling back to
// the platform default.
type RateTable struct {
	Default    Rate
	ByCategory map[string]Rate
}

// NewRateTable parses the configured default and per-category overrides.
func NewRateTable(defaultRate string, overrides map[string]string) (RateTable, error) {
	def, err := ParseRate(defaultRate)
	if err != nil {
		return RateTable{}, fmt.Errorf("default rate: %w", err)
	}
	t := RateTable{Default: def, ByCategory: make(map[string]Rate, len(overrides))}
	for category, s := range overrides {
		r, err := ParseRate(s)
		if err != nil {
			return RateTable{}, fmt.Errorf("rate for category %q: %w", category, err)
		}
		t.ByCategory[strings.ToLower(category)] = r
	}
	return t, nil
}

func (t RateTable) For(category string) Rate {
	if r, ok := t.ByCategory[strings.ToLower(category)]; ok {
		return r
	}
	return t.Default
}
