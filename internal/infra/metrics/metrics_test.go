package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMustRegisterOnFreshRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	MustRegister(reg)
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected registered metric families")
	}
}

func TestObserveNetworkRequestLabels(t *testing.T) {
	before := testutil.ToFloat64(NetworkRequestTotal.WithLabelValues("instagram", "publish", "media_publish", "error"))
	ObserveNetworkRequest("instagram", "publish", "media_publish", time.Now(), errors.New("boom"))
	after := testutil.ToFloat64(NetworkRequestTotal.WithLabelValues("instagram", "publish", "media_publish", "error"))
	if after-before != 1 {
		t.Fatalf("expected error counter to grow by 1, got %v", after-before)
	}

	before = testutil.ToFloat64(NetworkRequestTotal.WithLabelValues("unknown", "unknown", "unknown", "success"))
	ObserveNetworkRequest("", "", "", time.Now(), nil)
	after = testutil.ToFloat64(NetworkRequestTotal.WithLabelValues("unknown", "unknown", "unknown", "success"))
	if after-before != 1 {
		t.Fatalf("expected unknown labels for empty values")
	}
}

func TestIncVote(t *testing.T) {
	before := testutil.ToFloat64(VotesTotal.WithLabelValues("duplicate"))
	IncVote("duplicate")
	if got := testutil.ToFloat64(VotesTotal.WithLabelValues("duplicate")) - before; got != 1 {
		t.Fatalf("expected 1 duplicate vote, got %v", got)
	}
}
