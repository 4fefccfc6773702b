package moderation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedmod/feedmod/internal/modlog"
	"github.com/feedmod/feedmod/internal/permissions"
	"github.com/feedmod/feedmod/jobs"
)

type stubGate struct {
	allow bool
	calls int
}

func (g *stubGate) CanPerformAction(ctx context.Context, userDID string, action permissions.Action, uri string) bool {
	g.calls++
	return g.allow
}

type stubAudit struct {
	entries []modlog.Entry
	err     error
}

func (a *stubAudit) Append(ctx context.Context, entry modlog.Entry) (modlog.Entry, error) {
	if a.err != nil {
		return modlog.Entry{}, a.err
	}
	entry.ID = "01LOG"
	a.entries = append(a.entries, entry)
	return entry, nil
}

type stubQueue struct {
	payloads []jobs.ReportDeliverPayload
	err      error
	failCall int
	calls    int
}

func (q *stubQueue) EnqueueReport(ctx context.Context, payload jobs.ReportDeliverPayload) error {
	q.calls++
	if q.err != nil {
		return q.err
	}
	if q.failCall == q.calls {
		return errors.New("redis blip")
	}
	q.payloads = append(q.payloads, payload)
	return nil
}

var testServices = []ServiceConfig{
	{Value: "blacksky", Label: "Blacksky Moderation Service", AdminDID: "did:plc:bsky", URL: "https://mod.blacksky.example"},
	{Value: "ozone", Label: "Ozone Moderation Service", AdminDID: "did:plc:ozone", URL: "https://ozone.example"},
	{Value: "disabled", Label: "Disabled", URL: "https://nowhere.example"},
}

const feedURI = "at://did:plc:o/app.bsky.feed.generator/f"

func newTestService(gate *stubGate, audit *stubAudit, queue *stubQueue) *Service {
	svc := NewService(gate, audit, queue, testServices, nil)
	svc.newID = func() string { return "req-1" }
	return svc
}

func TestServicesOnlyListsConfigured(t *testing.T) {
	svc := newTestService(&stubGate{}, &stubAudit{}, &stubQueue{})
	services := svc.Services(context.Background())
	require.Len(t, services, 2)
	assert.Equal(t, "blacksky", services[0].Value)
	assert.Equal(t, "ozone", services[1].Value)
}

func TestPerformActionAllowed(t *testing.T) {
	gate := &stubGate{allow: true}
	audit := &stubAudit{}
	svc := newTestService(gate, audit, &stubQueue{})

	entry, err := svc.PerformAction(context.Background(), Event{
		Action:        permissions.ActionPostDelete,
		ActingDID:     "did:plc:mod",
		URI:           feedURI,
		TargetPostURI: "at://did:plc:a/app.bsky.feed.post/1",
		Reason:        "spam",
	})
	require.NoError(t, err)
	assert.Equal(t, "01LOG", entry.ID)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, "post_delete", audit.entries[0].Action)
	assert.Equal(t, "spam", audit.entries[0].Metadata["reason"])
}

func TestPerformActionDenied(t *testing.T) {
	audit := &stubAudit{}
	svc := newTestService(&stubGate{allow: false}, audit, &stubQueue{})

	_, err := svc.PerformAction(context.Background(), Event{
		Action:        permissions.ActionUserBan,
		ActingDID:     "did:plc:user",
		URI:           feedURI,
		TargetUserDID: "did:plc:spammer",
	})
	require.ErrorIs(t, err, ErrForbidden)
	assert.Empty(t, audit.entries)
}

func TestPerformActionRejectsInvalidEvents(t *testing.T) {
	gate := &stubGate{allow: true}
	svc := newTestService(gate, &stubAudit{}, &stubQueue{})
	events := []Event{
		{Action: permissions.ActionModPromote, ActingDID: "did:plc:a", URI: feedURI, TargetUserDID: "did:plc:b"},
		{Action: "post_pin", ActingDID: "did:plc:a", URI: feedURI, TargetPostURI: "at://p"},
		{Action: permissions.ActionPostDelete, ActingDID: "did:plc:a", URI: feedURI},
		{Action: permissions.ActionUserBan, ActingDID: "did:plc:a", URI: feedURI},
		{Action: permissions.ActionUserBan, URI: feedURI, TargetUserDID: "did:plc:b"},
	}
	for _, ev := range events {
		_, err := svc.PerformAction(context.Background(), ev)
		assert.ErrorIs(t, err, ErrInvalidInput, "%+v", ev)
	}
	assert.Zero(t, gate.calls)
}

func TestPerformActionAuditFailure(t *testing.T) {
	svc := newTestService(&stubGate{allow: true}, &stubAudit{err: errors.New("db down")}, &stubQueue{})
	_, err := svc.PerformAction(context.Background(), Event{
		Action:        permissions.ActionUserUnban,
		ActingDID:     "did:plc:mod",
		URI:           feedURI,
		TargetUserDID: "did:plc:x",
	})
	require.Error(t, err)
}

func validReport() Report {
	return Report{
		ActingDID:     "did:plc:reporter",
		URI:           feedURI,
		FeedName:      "f",
		TargetPostURI: "at://did:plc:a/app.bsky.feed.post/1",
		TargetUserDID: "did:plc:a",
		ReasonType:    ReasonSpam,
		ToServices:    []string{"ozone", "blacksky", "ozone"},
	}
}

func TestReportQueuesPerService(t *testing.T) {
	audit := &stubAudit{}
	queue := &stubQueue{}
	svc := newTestService(&stubGate{}, audit, queue)

	receipt, err := svc.Report(context.Background(), validReport())
	require.NoError(t, err)
	assert.Equal(t, "req-1", receipt.RequestID)
	assert.Equal(t, []string{"ozone", "blacksky"}, receipt.Services)
	require.Len(t, queue.payloads, 2)
	assert.Equal(t, "https://ozone.example", queue.payloads[0].Endpoint)
	assert.Equal(t, "at://did:plc:a/app.bsky.feed.post/1", queue.payloads[0].Report.Subject.PostURI)

	require.Len(t, audit.entries, 1)
	assert.Equal(t, ActionReport, audit.entries[0].Action)
	assert.Equal(t, "did:plc:reporter", audit.entries[0].PerformedBy)
}

func TestReportValidation(t *testing.T) {
	mutate := []func(r *Report){
		func(r *Report) { r.ActingDID = "" },
		func(r *Report) { r.TargetPostURI, r.TargetUserDID = "", "" },
		func(r *Report) { r.TargetPostURI = "https://x" },
		func(r *Report) { r.ReasonType = "because" },
		func(r *Report) { r.ToServices = nil },
		func(r *Report) { r.ToServices = []string{"disabled"} },
		func(r *Report) { r.AdditionalInfo = strings.Repeat("é", 301) },
	}
	for i, m := range mutate {
		queue := &stubQueue{}
		svc := newTestService(&stubGate{}, &stubAudit{}, queue)
		r := validReport()
		m(&r)
		_, err := svc.Report(context.Background(), r)
		assert.ErrorIs(t, err, ErrInvalidInput, "case %d", i)
		assert.Empty(t, queue.payloads, "case %d", i)
	}
}

func TestReportAllowsThreeHundredRunes(t *testing.T) {
	svc := newTestService(&stubGate{}, &stubAudit{}, &stubQueue{})
	r := validReport()
	r.AdditionalInfo = strings.Repeat("é", 300)
	_, err := svc.Report(context.Background(), r)
	require.NoError(t, err)
}

func TestReportEnqueueFailure(t *testing.T) {
	audit := &stubAudit{}
	svc := newTestService(&stubGate{}, audit, &stubQueue{err: errors.New("redis down")})
	_, err := svc.Report(context.Background(), validReport())
	require.Error(t, err)
	assert.Empty(t, audit.entries)
}

func TestReportPartialEnqueueStillLogged(t *testing.T) {
	audit := &stubAudit{}
	queue := &stubQueue{failCall: 2}
	svc := newTestService(&stubGate{}, audit, queue)

	receipt, err := svc.Report(context.Background(), validReport())
	require.NoError(t, err)
	assert.Equal(t, []string{"ozone"}, receipt.Services)
	assert.Equal(t, []string{"blacksky"}, receipt.Failed)
	require.Len(t, queue.payloads, 1)

	require.Len(t, audit.entries, 1)
	meta := audit.entries[0].Metadata
	assert.Equal(t, []string{"ozone"}, meta["services"])
	assert.Equal(t, []string{"blacksky"}, meta["failed_services"])
}

func TestReportSurvivesAuditFailure(t *testing.T) {
	queue := &stubQueue{}
	svc := newTestService(&stubGate{}, &stubAudit{err: errors.New("log down")}, queue)
	_, err := svc.Report(context.Background(), validReport())
	require.NoError(t, err)
	assert.Len(t, queue.payloads, 2)
}
