package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"diveops/internal/config"
	"diveops/internal/operations"
	"diveops/internal/operations/testutil"
	"diveops/pkg/contracts/events"
)

var epoch = time.Date(2026, 5, 2, 7, 30, 0, 0, time.UTC)

type mockHub struct {
	mock.Mock
}

func (m *mockHub) BroadcastMessage(msg events.WebSocketMessage) {
	m.Called(msg)
}

func (m *mockHub) BroadcastUpdate(msgType events.MessageType, subject, action string, data any) {
	m.Called(msgType, subject, action, data)
}

func (m *mockHub) ClientCount() int {
	return m.Called().Int(0)
}

func newMockHub() *mockHub {
	hub := &mockHub{}
	hub.On("BroadcastUpdate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return()
	return hub
}

// updates returns the BroadcastUpdate calls of the given type
func (m *mockHub) updates(msgType events.MessageType) []mock.Call {
	var out []mock.Call
	for _, c := range m.Calls {
		if c.Method == "BroadcastUpdate" && c.Arguments.Get(0) == msgType {
			out = append(out, c)
		}
	}
	return out
}

type stubPinger struct {
	mu  sync.Mutex
	err error
}

func (p *stubPinger) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func testWizardConfig() config.WizardConfig {
	return config.WizardConfig{
		RecordPollInterval:   3 * time.Second,
		DocumentPollInterval: 2 * time.Second,
		AutoSaveDelay:        2 * time.Second,
		AutoAdvanceDelay:     1500 * time.Millisecond,
		MaxSessions:          10,
	}
}

func newTestService(t *testing.T, records operations.RecordStore, readiness operations.ReadinessService, cfg config.WizardConfig) (*WizardService, *mockHub, *testutil.FakeClock) {
	t.Helper()
	hub := newMockHub()
	clock := testutil.NewFakeClock(epoch)
	svc, err := NewWizardService(WizardDeps{
		Records:   records,
		Readiness: readiness,
		Hub:       hub,
		Clock:     clock,
		Logger:    testutil.DiscardLogger(),
	}, cfg)
	if err != nil {
		t.Fatalf("NewWizardService: %v", err)
	}
	t.Cleanup(func() { svc.CloseAll(context.Background()) })
	return svc, hub, clock
}
