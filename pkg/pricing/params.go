// Package pricing implements Monte-Carlo pricing of European and Asian
// options under geometric Brownian motion.
package pricing

import "fmt"

// Params holds the inputs of one pricing computation. The horizon is one
// year, divided into Days time steps.
type Params struct {
	// Spot is the current price of the underlying
	Spot float64

	// Strike is the option strike price
	Strike float64

	// Sigma is the annualized volatility
	Sigma float64

	// Rate is the annualized risk-free rate
	Rate float64

	// Days is the number of time steps over the one-year horizon
	Days int

	// Paths is the number of simulated price paths
	Paths int
}

// DefaultParams returns the reference parameter set.
func DefaultParams() Params {
	return Params{
		Spot:   100.0,
		Strike: 100.0,
		Sigma:  0.25,
		Rate:   0.05,
		Days:   260,
		Paths:  10000,
	}
}

// Validate checks parameter sanity.
func (p Params) Validate() error {
	if p.Spot <= 0 {
		return fmt.Errorf("spot must be positive, got %g", p.Spot)
	}
	if p.Strike <= 0 {
		return fmt.Errorf("strike must be positive, got %g", p.Strike)
	}
	if p.Sigma < 0 {
		return fmt.Errorf("sigma must be non-negative, got %g", p.Sigma)
	}
	if p.Days <= 0 {
		return fmt.Errorf("days must be positive, got %d", p.Days)
	}
	if p.Paths <= 0 {
		return fmt.Errorf("paths must be positive, got %d", p.Paths)
	}
	return nil
}

// WithStrike returns a copy of p with the strike replaced.
func (p Params) WithStrike(strike float64) Params {
	p.Strike = strike
	return p
}

// WithSigma returns a copy of p with the volatility replaced.
func (p Params) WithSigma(sigma float64) Params {
	p.Sigma = sigma
	return p
}
