package factory

import (
	"time"

	"github.com/mcoot/relsync/internal/dependencies/mocks"
	"github.com/mcoot/relsync/internal/engine"
	"github.com/mcoot/relsync/internal/services/auth"
	"github.com/mcoot/relsync/internal/storage/memory"
	"github.com/mcoot/relsync/internal/testutil"
	"github.com/mcoot/relsync/internal/transport"
	"github.com/mcoot/relsync/internal/transport/transporttest"
)

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	Remote     *transporttest.Fake
	Memory     *memory.Storage
	Tokens     *auth.MemoryTokens
	MockClock  *mocks.MockClock
	MockRandom *mocks.MockRandom
}

// NewTestApp creates an App wired to an in-process remote with mocked
// dependencies. Subscribe calls succeed by default.
func NewTestApp() *TestApp {
	store := memory.New()
	remote := transporttest.New()
	remote.Reply(transport.MethodSubscribeUpdates, map[string]any{})
	tokens := auth.NewMemoryTokens("")
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	mockRandom := mocks.NewMockRandom()

	app := newWithDependencies(store, remote, tokens, mockClock, mockRandom, engine.DefaultConfig(), testutil.NopLogger())
	app.Engine.Bind(remote)

	return &TestApp{
		App:        app,
		Remote:     remote,
		Memory:     store,
		Tokens:     tokens,
		MockClock:  mockClock,
		MockRandom: mockRandom,
	}
}
