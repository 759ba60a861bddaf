package workers

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/Guyuepp/pretty-like/domain"
	"github.com/Guyuepp/pretty-like/internal/metrics"
)

// FadeJob decays the hot key detector and drains its expulsion feed.
type FadeJob struct {
	detector domain.HotKeyDetector
}

func NewFadeJob(detector domain.HotKeyDetector) *FadeJob {
	return &FadeJob{detector: detector}
}

func (j *FadeJob) OnFadeTick(_ context.Context) {
	j.detector.Fading()
	metrics.HotKeyTotal.Set(float64(j.detector.Total()))

	for {
		select {
		case hk := <-j.detector.Expelled():
			logrus.Debugf("hot key %s expelled with count %d", hk.Key, hk.Count)
		default:
			return
		}
	}
}
