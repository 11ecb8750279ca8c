package emg

import (
	"math"
	"sort"

	"github.com/ManuGH/monstim/internal/sigproc"
)

// BinnedPoint is one bin of a reflex curve: the binned stimulus voltage and
// the spread of M-wave and H-reflex amplitudes observed at it.
type BinnedPoint struct {
	StimulusV float64 `json:"stimulus_v"`
	N         int     `json:"n"`
	MMean     float64 `json:"m_mean"`
	MStd      float64 `json:"m_std"`
	HMean     float64 `json:"h_mean"`
	HStd      float64 `json:"h_std"`
}

// binReflexAmplitudes groups recordings into stimulus voltage bins of
// binSize (rounding to the nearest bin center) and aggregates the M and H
// window amplitudes of one channel per bin.
func binReflexAmplitudes(recs []Recording, channel int, mStart, mEnd, hStart, hEnd, binSize float64, scanRate int, method sigproc.Method) ([]BinnedPoint, error) {
	type bin struct {
		m []float64
		h []float64
	}
	bins := map[float64]*bin{}

	for _, rec := range recs {
		binned := math.Round(rec.StimulusV/binSize) * binSize
		mAmp, err := sigproc.Amplitude(rec.ChannelData[channel], mStart, mEnd, scanRate, method)
		if err != nil {
			return nil, err
		}
		hAmp, err := sigproc.Amplitude(rec.ChannelData[channel], hStart, hEnd, scanRate, method)
		if err != nil {
			return nil, err
		}
		b, ok := bins[binned]
		if !ok {
			b = &bin{}
			bins[binned] = b
		}
		b.m = append(b.m, mAmp)
		b.h = append(b.h, hAmp)
	}

	points := make([]BinnedPoint, 0, len(bins))
	for v, b := range bins {
		points = append(points, BinnedPoint{
			StimulusV: v,
			N:         len(b.m),
			MMean:     sigproc.Mean(b.m),
			MStd:      sigproc.Std(b.m),
			HMean:     sigproc.Mean(b.h),
			HStd:      sigproc.Std(b.h),
		})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].StimulusV < points[j].StimulusV })
	return points, nil
}
