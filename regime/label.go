package regime

// Label is a discrete market regime.
type Label string

const (
	RangeBound    Label = "RANGE_BOUND"
	MeanReversion Label = "MEAN_REVERSION"
	Trend         Label = "TREND"
	Caution       Label = "CAUTION"
	Chaos         Label = "CHAOS"
	Abnormal      Label = "ABNORMAL"
	Unknown       Label = "UNKNOWN"
)

// Labels lists the classifiable regimes, Unknown excluded.
var Labels = []Label{RangeBound, MeanReversion, Trend, Caution, Chaos, Abnormal}

func (l Label) Valid() bool {
	for _, x := range Labels {
		if x == l {
			return true
		}
	}
	return l == Unknown
}

// Halting reports whether the regime forces open positions closed and
// blocks new entries.
func (l Label) Halting() bool {
	return l == Chaos || l == Abnormal
}

func (l Label) String() string { return string(l) }

// Metric keys carried on a Snapshot.
const (
	MetricADX           = "adx"
	MetricPlusDI        = "plus_di"
	MetricMinusDI       = "minus_di"
	MetricTrendDir      = "trend_dir"
	MetricRSI           = "rsi"
	MetricATR           = "atr"
	MetricVolPercentile = "vol_percentile"
	MetricRealizedVol   = "realized_vol"
	MetricSentiment     = "sentiment"
	MetricBBWRatio      = "bbw_ratio"
	MetricConfluence    = "confluence"
	MetricMaxCorr       = "max_abs_corr"
	MetricHMMPosterior  = "hmm_posterior"
	MetricSpot          = "spot"
)

// Chaos trigger names.
const (
	TriggerVolSpike     = "vol_spike"
	TriggerCorrSpike    = "correlation_spike"
	TriggerADXSpike     = "adx_spike"
	TriggerBandwidthExp = "bandwidth_expansion"
)
