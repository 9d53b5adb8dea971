package callback

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/callbacks"
	"github.com/hildam/deep-dive-go/entity/consts"
	"github.com/hildam/deep-dive-go/repo/event"
	"github.com/hildam/deep-dive-go/repo/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOnStartEmitsStatusForReportNodes(t *testing.T) {
	rec := &event.Recorder{}
	ctx := event.WithSink(context.Background(), rec)
	cb := NewEventCallback("thread-1")

	ctx = cb.OnStart(ctx, &callbacks.RunInfo{Name: consts.BuildSections}, nil)
	cb.OnStart(ctx, &callbacks.RunInfo{Name: "some_lambda"}, nil)
	cb.OnStart(ctx, nil, nil)

	events := rec.Events()
	require.Len(t, events, 1)
	assert.Equal(t, consts.EventStatus, events[0].Event)
	assert.Equal(t, consts.BuildSections, events[0].Node)
	assert.Equal(t, "thread-1", events[0].ReportID)
}

func TestOnEndObservesDuration(t *testing.T) {
	cb := NewEventCallback("thread-2")
	info := &callbacks.RunInfo{Name: consts.CompileReport}

	ctx := cb.OnStart(context.Background(), info, nil)
	cb.OnEnd(ctx, info, nil)
	cb.OnError(ctx, &callbacks.RunInfo{Name: consts.GatherSections}, errors.New("boom"))

	assert.GreaterOrEqual(t, testutil.CollectAndCount(metrics.NodeDuration), 1)
}
