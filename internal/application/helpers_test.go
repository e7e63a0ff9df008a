package application

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/hrms/internal/persistence"
	"github.com/example/hrms/internal/testfixtures"
)

var testArgonParams = Argon2idParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16}

func testHash(t testing.TB, password string) string {
	t.Helper()
	hash, err := CreatePasswordHash(password, testArgonParams)
	require.NoError(t, err)
	return hash
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func principalOf(u persistence.User) Principal {
	return Principal{UserID: u.ID, Role: u.Role, SessionID: "session-" + u.ID}
}

// recordingNotifier captures notifications for assertions.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []NotificationInput
}

func (r *recordingNotifier) Notify(_ context.Context, n NotificationInput) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *recordingNotifier) recipients() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sent))
	for _, n := range r.sent {
		ids = append(ids, n.UserID)
	}
	return ids
}

type serviceEnv struct {
	harness *testfixtures.SQLiteHarness
	clock   *testfixtures.Clock
	ids     *testfixtures.IDGenerator
}

func newServiceEnv(t *testing.T) serviceEnv {
	t.Helper()
	return serviceEnv{
		harness: testfixtures.NewSQLiteHarness(t),
		clock:   testfixtures.NewClock(testfixtures.ReferenceTime()),
		ids:     testfixtures.NewIDGenerator("id"),
	}
}
