package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mcoot/relsync/internal/dependencies/mocks"
	"github.com/mcoot/relsync/internal/model"
	"github.com/mcoot/relsync/internal/transport"
)

// scriptedStream fails its first failures runs and then stays connected
// until cancelled
type scriptedStream struct {
	mu       sync.Mutex
	hooks    []func(context.Context)
	runs     int
	failures int
}

func (f *scriptedStream) OnConnect(fn func(context.Context)) {
	f.mu.Lock()
	f.hooks = append(f.hooks, fn)
	f.mu.Unlock()
}

func (f *scriptedStream) OnEvent(string, transport.Handler) {}

func (f *scriptedStream) Hooks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.hooks)
}

func (f *scriptedStream) Run(ctx context.Context) error {
	f.mu.Lock()
	f.runs++
	fail := f.runs <= f.failures
	hooks := append([]func(context.Context){}, f.hooks...)
	f.mu.Unlock()

	if fail {
		return errors.New("connection refused")
	}
	for _, h := range hooks {
		h(ctx)
	}
	<-ctx.Done()
	return nil
}

func (f *scriptedStream) Runs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

func (s *EngineSuite) TestRunReconnectsAndReconcilesOnConnect() {
	s.relationshipList([]string{"7"}, nil, nil)
	stream := &scriptedStream{failures: 2}
	s.engine.Bind(stream)
	rnd := mocks.NewMockRandom()
	rnd.QueueIntn(1, 1)
	cfg := RunConfig{ReconnectDelay: time.Millisecond, ReconnectJitter: 5 * time.Millisecond}

	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan error, 1)
	go func() { done <- s.engine.Run(ctx, stream, cfg, rnd) }()

	s.Eventually(func() bool {
		return s.engine.Snapshot().LastReconciledAt != nil
	}, time.Second, 5*time.Millisecond)

	cancel()
	s.Require().NoError(<-done)
	s.Equal(3, stream.Runs())
	s.Equal([]model.PeerID{7}, s.engine.Self().Relationships.Friends.Slice())
}

func (s *EngineSuite) TestRunReconcilesOnInterval() {
	stream := &scriptedStream{}
	s.engine.Bind(stream)
	s.remote.Fail(transport.MethodRelationshipList, "down")
	cfg := RunConfig{ReconcileInterval: 5 * time.Millisecond, ReconnectDelay: time.Millisecond}

	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan error, 1)
	go func() { done <- s.engine.Run(ctx, stream, cfg, mocks.NewMockRandom()) }()

	s.Eventually(func() bool {
		return len(s.remote.Calls(transport.MethodRelationshipList)) >= 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	s.Require().NoError(<-done)
	s.Nil(s.engine.Snapshot().LastReconciledAt)
}

func (s *EngineSuite) TestRepeatedRunsShareOneConnectHook() {
	s.relationshipList([]string{"7"}, nil, nil)
	stream := &scriptedStream{}
	s.engine.Bind(stream)
	cfg := RunConfig{ReconnectDelay: time.Millisecond}

	for range 3 {
		ctx, cancel := context.WithCancel(s.ctx)
		done := make(chan error, 1)
		go func() { done <- s.engine.Run(ctx, stream, cfg, mocks.NewMockRandom()) }()

		before := len(s.remote.Calls(transport.MethodRelationshipList))
		s.Eventually(func() bool {
			return len(s.remote.Calls(transport.MethodRelationshipList)) > before
		}, time.Second, 5*time.Millisecond)

		cancel()
		s.Require().NoError(<-done)
	}

	s.Equal(1, stream.Hooks())
	s.Equal(3, stream.Runs())
}
