package jobs

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedmod/feedmod/internal/feeds"
	jobmetrics "github.com/feedmod/feedmod/internal/jobs"
)

type stubSender struct {
	calls    int
	endpoint string
	token    string
	input    feeds.ReportInput
	err      error
}

func (s *stubSender) CreateReport(ctx context.Context, serviceURL, token string, in feeds.ReportInput) error {
	s.calls++
	s.endpoint = serviceURL
	s.token = token
	s.input = in
	return s.err
}

func validPayload() ReportDeliverPayload {
	return ReportDeliverPayload{
		RequestID: "req-1",
		Service:   "ozone",
		Endpoint:  "https://ozone.example",
		Report: feeds.ReportInput{
			ReasonType: "com.atproto.moderation.defs#reasonSpam",
			Subject:    feeds.Subject{PostURI: "at://did:plc:a/app.bsky.feed.post/1", PostCID: "cid"},
		},
	}
}

func newDeliverJob(sender *stubSender) *ReportDeliverJob {
	return NewReportDeliverJob(sender, "tok", nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
}

func TestReportDeliverSendsPayload(t *testing.T) {
	sender := &stubSender{}
	task, err := NewReportDeliverTask(validPayload())
	require.NoError(t, err)

	require.NoError(t, newDeliverJob(sender).Handle(context.Background(), task))
	assert.Equal(t, 1, sender.calls)
	assert.Equal(t, "https://ozone.example", sender.endpoint)
	assert.Equal(t, "tok", sender.token)
	assert.Equal(t, "at://did:plc:a/app.bsky.feed.post/1", sender.input.Subject.PostURI)
}

func TestReportDeliverSkipsMalformedPayload(t *testing.T) {
	sender := &stubSender{}
	err := newDeliverJob(sender).Handle(context.Background(), asynq.NewTask(TaskReportDeliver, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = newDeliverJob(sender).Handle(context.Background(), asynq.NewTask(TaskReportDeliver, []byte(`{"service":"ozone"}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Zero(t, sender.calls)
}

func TestReportDeliverRetriesTemporaryFailures(t *testing.T) {
	task, err := NewReportDeliverTask(validPayload())
	require.NoError(t, err)

	sender := &stubSender{err: &feeds.StatusError{Method: "createReport", Status: http.StatusServiceUnavailable}}
	err = newDeliverJob(sender).Handle(context.Background(), task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)

	sender.err = errors.New("connection reset")
	err = newDeliverJob(sender).Handle(context.Background(), task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestReportDeliverSkipsRejectedReports(t *testing.T) {
	task, err := NewReportDeliverTask(validPayload())
	require.NoError(t, err)

	sender := &stubSender{err: &feeds.StatusError{Method: "createReport", Status: http.StatusBadRequest}}
	err = newDeliverJob(sender).Handle(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestNewReportDeliverTaskValidates(t *testing.T) {
	p := validPayload()
	p.Endpoint = ""
	_, err := NewReportDeliverTask(p)
	assert.Error(t, err)

	p = validPayload()
	p.Report.Subject = feeds.Subject{}
	_, err = NewReportDeliverTask(p)
	assert.Error(t, err)
}

type stubRefresher struct {
	limit int
	err   error
}

func (s *stubRefresher) RefreshStale(ctx context.Context, limit int) (int, error) {
	s.limit = limit
	return 3, s.err
}

func TestProfilesRefreshDefaultsLimit(t *testing.T) {
	refresher := &stubRefresher{}
	job := NewProfilesRefreshJob(refresher, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskProfilesRefresh, nil)))
	assert.Equal(t, defaultRefreshLimit, refresher.limit)

	task, err := NewProfilesRefreshTask(25)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 25, refresher.limit)

	refresher.err = errors.New("appview down")
	assert.Error(t, job.Handle(context.Background(), task))
}

func TestRetryDelayIsCapped(t *testing.T) {
	assert.Equal(t, 10*time.Second, retryDelay(0, nil, nil))
	assert.Equal(t, 20*time.Second, retryDelay(1, nil, nil))
	assert.Equal(t, 30*time.Minute, retryDelay(20, nil, nil))
}

func TestReportTaskIDPerRequestAndService(t *testing.T) {
	p := validPayload()
	same := p
	other := p
	other.Service = p.Service + "-other"

	assert.Equal(t, ReportTaskID(p), ReportTaskID(same))
	assert.NotEqual(t, ReportTaskID(p), ReportTaskID(other))
	assert.Contains(t, ReportTaskID(p), p.RequestID)
}
