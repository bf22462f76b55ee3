package merton

import (
	"math"
)

// Pricer evaluates the structural pricing primitives for one firm's debt
// face value, risk-free rate and horizon. A Pricer is immutable and safe for
// concurrent use.
type Pricer struct {
	debt    float64
	rate    float64
	horizon float64
	cdf     CDF
}

// NewPricer validates the firm parameters and returns a Pricer.
// A nil cdf selects the closed form evaluator.
func NewPricer(debt, rate, horizon float64, cdf CDF) (*Pricer, error) {
	if !positiveFinite(debt) {
		return nil, domainError("pricer", "debt", debt)
	}
	if !isFinite(rate) {
		return nil, domainError("pricer", "rate", rate)
	}
	if !positiveFinite(horizon) {
		return nil, domainError("pricer", "horizon", horizon)
	}
	if cdf == nil {
		cdf = ClosedForm{}
	}
	return &Pricer{debt: debt, rate: rate, horizon: horizon, cdf: cdf}, nil
}

// Debt returns the face value of debt.
func (p *Pricer) Debt() float64 { return p.debt }

// Rate returns the risk-free rate.
func (p *Pricer) Rate() float64 { return p.rate }

// Horizon returns the time to maturity.
func (p *Pricer) Horizon() float64 { return p.horizon }

// DiscountedDebt returns D·e^{−rT}.
func (p *Pricer) DiscountedDebt() float64 {
	return p.debt * math.Exp(-p.rate*p.horizon)
}

// D1 returns (ln A − ln D + (r − ½σ²)T) / (σ√T).
func (p *Pricer) D1(assetVol, asset float64) (float64, error) {
	if err := checkAssetState("d1", asset, assetVol); err != nil {
		return 0, err
	}
	num := math.Log(asset) - math.Log(p.debt) + (p.rate-0.5*assetVol*assetVol)*p.horizon
	return num / (assetVol * math.Sqrt(p.horizon)), nil
}

// D2 returns d1 − σ√T.
func (p *Pricer) D2(assetVol, asset float64) (float64, error) {
	d1, err := p.D1(assetVol, asset)
	if err != nil {
		return 0, err
	}
	return d1 - assetVol*math.Sqrt(p.horizon), nil
}

// EquityValue returns the call value A·N(d1) − D·e^{−rT}·N(d2).
func (p *Pricer) EquityValue(asset, assetVol float64) (float64, error) {
	d1, err := p.D1(assetVol, asset)
	if err != nil {
		return 0, err
	}
	d2 := d1 - assetVol*math.Sqrt(p.horizon)

	nd1, err := p.n(d1)
	if err != nil {
		return 0, err
	}
	nd2, err := p.n(d2)
	if err != nil {
		return 0, err
	}
	return asset*nd1 - p.DiscountedDebt()*nd2, nil
}

// EquityVol returns the equity volatility implied by the asset state,
// A·σ·N(d1) / E.
func (p *Pricer) EquityVol(asset, assetVol, equity float64) (float64, error) {
	if !positiveFinite(equity) {
		return 0, domainError("equity vol", "equity", equity)
	}
	d1, err := p.D1(assetVol, asset)
	if err != nil {
		return 0, err
	}
	nd1, err := p.n(d1)
	if err != nil {
		return 0, err
	}
	return asset * assetVol * nd1 / equity, nil
}

// DefaultProbability returns N(−d2).
func (p *Pricer) DefaultProbability(asset, assetVol float64) (float64, error) {
	d2, err := p.D2(assetVol, asset)
	if err != nil {
		return 0, err
	}
	return p.n(-d2)
}

// DistanceToDefault returns d2, the number of standard deviations between the
// expected asset value and the default point at the horizon.
func (p *Pricer) DistanceToDefault(asset, assetVol float64) (float64, error) {
	return p.D2(assetVol, asset)
}

func (p *Pricer) n(x float64) (float64, error) {
	return p.cdf.CDF(x, 0, 1)
}

func checkAssetState(op string, asset, assetVol float64) error {
	if !positiveFinite(asset) {
		return domainError(op, "asset", asset)
	}
	if !positiveFinite(assetVol) {
		return domainError(op, "asset_vol", assetVol)
	}
	return nil
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

func positiveFinite(x float64) bool {
	return x > 0 && !math.IsInf(x, 1)
}
