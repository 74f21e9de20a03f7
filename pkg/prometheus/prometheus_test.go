package prometheus_test

import (
	"context"
	"testing"

	"github.com/Harardin/nft-custody/pkg/log"
	"github.com/Harardin/nft-custody/pkg/prometheus"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestIncrementOperation(t *testing.T) {
	s := prometheus.NewServer(log.NewNop(), prometheus.Config{Disabled: true}, "nft-custody")

	s.IncrementOperation("deposit", "ok")
	s.IncrementOperation("deposit", "ok")
	s.IncrementOperation("withdraw", "locked")

	assert.Equal(t, float64(2), testutil.ToFloat64(s.Operations().WithLabelValues("deposit", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(s.Operations().WithLabelValues("withdraw", "locked")))

	// disabled server neither starts nor fails on stop
	s.Start(context.Background())
	s.Stop(context.Background())
}
