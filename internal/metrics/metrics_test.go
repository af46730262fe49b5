package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordArticle(t *testing.T) {
	before := testutil.ToFloat64(ArticlesProcessed.WithLabelValues("degraded"))
	RecordArticle(true)
	if got := testutil.ToFloat64(ArticlesProcessed.WithLabelValues("degraded")); got != before+1 {
		t.Errorf("degraded = %v, 期望 %v", got, before+1)
	}
}

func TestRecordSynthesis(t *testing.T) {
	before := testutil.ToFloat64(Syntheses.WithLabelValues("edge", "error"))
	RecordSynthesis("edge", errors.New("x"), 0.5)
	if got := testutil.ToFloat64(Syntheses.WithLabelValues("edge", "error")); got != before+1 {
		t.Errorf("edge/error = %v, 期望 %v", got, before+1)
	}
}

func TestRecordFetchAndNotification(t *testing.T) {
	RecordFetch(nil)
	RecordNotification("pushplus", nil)
	if got := testutil.ToFloat64(FeedFetches.WithLabelValues("ok")); got < 1 {
		t.Errorf("feed ok = %v", got)
	}
	if got := testutil.ToFloat64(Notifications.WithLabelValues("pushplus", "ok")); got < 1 {
		t.Errorf("pushplus ok = %v", got)
	}
}
