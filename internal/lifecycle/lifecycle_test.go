package lifecycle_test

import (
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/wahyupambudi/chat-websocket/internal/lifecycle"
	"github.com/wahyupambudi/chat-websocket/pkg/state/statemanager"
)

// --- Test Suite Setup ---

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

func newHarness() (*statemanager.InMemoryManager, *lifecycle.Lifecycle) {
	logger := newTestLogger()
	m := statemanager.NewInMemoryManager(logger, "public")
	return m, lifecycle.New(logger, m, "public")
}

type fakeTransport struct {
	id     uuid.UUID
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{id: uuid.New()}
}

func (f *fakeTransport) ID() uuid.UUID { return f.id }

func (f *fakeTransport) Send(message []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, message)
}

func (f *fakeTransport) Close(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = nil
}

// framesOfType returns the recorded frames whose type discriminator matches.
func (f *fakeTransport) framesOfType(kind string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, frame := range f.frames {
		if gjson.GetBytes(frame, "type").String() == kind {
			out = append(out, string(frame))
		}
	}
	return out
}

func (f *fakeTransport) countType(kind string) int {
	return len(f.framesOfType(kind))
}

// register connects a fake transport and completes the handshake.
func register(t *testing.T, m *statemanager.InMemoryManager, lc *lifecycle.Lifecycle, identity string) *fakeTransport {
	t.Helper()
	f := newFakeTransport()
	conn, err := m.RegisterConnection(f, "127.0.0.1")
	if err != nil {
		t.Fatalf("RegisterConnection failed: %v", err)
	}
	lc.HandleConnect(conn)
	lc.Register(f.ID(), identity)
	if _, online := m.LookupIdentity(identity); !online {
		t.Fatalf("registration of %q did not complete", identity)
	}
	return f
}

// --- Tests ---

func TestHandleConnectPushesSnapshots(t *testing.T) {
	m, lc := newHarness()
	f := newFakeTransport()
	conn, _ := m.RegisterConnection(f, "127.0.0.1")

	lc.HandleConnect(conn)

	if f.countType("user_history") != 1 {
		t.Error("expected a user_history push on connect")
	}
	groups := f.framesOfType("available_groups")
	if len(groups) != 1 || !strings.Contains(groups[0], "public") {
		t.Errorf("expected available_groups with the default group, got %v", groups)
	}
}

func TestRegisterBroadcasts(t *testing.T) {
	m, lc := newHarness()
	alice := register(t, m, lc, "alice")
	alice.reset()

	bob := register(t, m, lc, "bob")

	greetings := bob.framesOfType("server_message")
	if len(greetings) == 0 || !strings.Contains(greetings[0], "You are connected as bob.") {
		t.Errorf("expected a greeting for bob, got %v", greetings)
	}

	// bob was new to history, so everyone gets a refreshed user_history.
	if alice.countType("user_history") != 1 {
		t.Error("expected a user_history broadcast for a first-time identity")
	}
	notices := alice.framesOfType("server_message")
	if len(notices) != 1 || !strings.Contains(notices[0], "bob has joined the chat.") {
		t.Errorf("expected a join notice for alice, got %v", notices)
	}
	lists := alice.framesOfType("user_list")
	if len(lists) != 1 || !strings.Contains(lists[0], "alice") || !strings.Contains(lists[0], "bob") {
		t.Errorf("expected user_list with both identities, got %v", lists)
	}
	if alice.countType("group_members_update") != 1 {
		t.Error("expected a membership snapshot broadcast")
	}

	// bob auto-joined the default group.
	members, _ := m.GroupMembers("public")
	if len(members) != 2 {
		t.Errorf("expected both identities in the default group, got %v", members)
	}
}

func TestDuplicateIdentityClosesChallenger(t *testing.T) {
	m, lc := newHarness()
	first := register(t, m, lc, "alice")
	first.reset()

	second := newFakeTransport()
	conn, _ := m.RegisterConnection(second, "127.0.0.1")
	lc.HandleConnect(conn)
	lc.Register(second.ID(), "alice")

	if second.countType("error") != 1 {
		t.Error("expected exactly one error frame on the challenger")
	}
	if !second.isClosed() {
		t.Error("challenger connection was not closed")
	}
	if first.isClosed() {
		t.Error("existing connection must not be closed")
	}
	if first.countType("error") != 0 {
		t.Error("existing connection must not be notified")
	}
	holder, online := m.LookupIdentity("alice")
	if !online || holder.ID != first.ID() {
		t.Error("original registration was displaced")
	}
}

func TestEmptyIdentityRejectedWithoutClose(t *testing.T) {
	m, lc := newHarness()
	f := newFakeTransport()
	m.RegisterConnection(f, "127.0.0.1")

	lc.Register(f.ID(), "   ")

	if f.countType("error") != 1 {
		t.Error("expected an error frame for an empty identity")
	}
	if f.isClosed() {
		t.Error("empty identity must not close the connection")
	}
}

func TestRepeatedRegistrationRejected(t *testing.T) {
	m, lc := newHarness()
	alice := register(t, m, lc, "alice")
	alice.reset()

	lc.Register(alice.ID(), "alice2")

	if alice.countType("error") != 1 {
		t.Error("expected an error frame for re-registration")
	}
	if _, online := m.LookupIdentity("alice2"); online {
		t.Error("re-registration must not bind a second identity")
	}
}

func TestGroupCommandNotices(t *testing.T) {
	m, lc := newHarness()
	alice := register(t, m, lc, "alice")
	bob := register(t, m, lc, "bob")
	aliceConn, _ := m.GetConnection(alice.ID())
	bobConn, _ := m.GetConnection(bob.ID())
	alice.reset()
	bob.reset()

	lc.CreateGroup(aliceConn, "alice", "Dev")

	if got := alice.framesOfType("server_message"); len(got) != 1 || !strings.Contains(got[0], "You created #dev.") {
		t.Errorf("expected creation confirmation, got %v", got)
	}
	if got := bob.framesOfType("available_groups"); len(got) != 1 || !strings.Contains(got[0], "dev") {
		t.Errorf("expected refreshed group list for bob, got %v", got)
	}
	alice.reset()
	bob.reset()

	lc.JoinGroup(bobConn, "bob", "dev")
	if got := alice.framesOfType("server_message"); len(got) != 1 || !strings.Contains(got[0], "bob joined #dev.") {
		t.Errorf("expected join notice for alice, got %v", got)
	}
	if bob.countType("group_members_update") != 1 {
		t.Error("expected membership snapshot after join")
	}
	alice.reset()
	bob.reset()

	lc.LeaveGroup(bobConn, "bob", "dev")
	if got := bob.framesOfType("server_message"); len(got) != 1 || !strings.Contains(got[0], "You left #dev.") {
		t.Errorf("expected leave confirmation, got %v", got)
	}
	if got := alice.framesOfType("server_message"); len(got) != 1 || !strings.Contains(got[0], "bob left #dev.") {
		t.Errorf("expected leave notice for alice, got %v", got)
	}
}

func TestGroupCommandErrors(t *testing.T) {
	m, lc := newHarness()
	alice := register(t, m, lc, "alice")
	aliceConn, _ := m.GetConnection(alice.ID())
	lc.CreateGroup(aliceConn, "alice", "dev")
	alice.reset()

	lc.CreateGroup(aliceConn, "alice", "dev")
	lc.CreateGroup(aliceConn, "alice", "  ")
	lc.JoinGroup(aliceConn, "alice", "missing")
	lc.JoinGroup(aliceConn, "alice", "dev")
	lc.LeaveGroup(aliceConn, "alice", "missing")

	if got := alice.countType("error"); got != 5 {
		t.Errorf("expected 5 error frames, got %d: %v", got, alice.framesOfType("error"))
	}
}

func TestLeavingLastSeatDeletesGroup(t *testing.T) {
	m, lc := newHarness()
	alice := register(t, m, lc, "alice")
	aliceConn, _ := m.GetConnection(alice.ID())
	lc.CreateGroup(aliceConn, "alice", "dev")
	alice.reset()

	lc.LeaveGroup(aliceConn, "alice", "dev")

	groups := alice.framesOfType("available_groups")
	if len(groups) != 1 || strings.Contains(groups[0], "dev") {
		t.Errorf("expected refreshed group list without dev, got %v", groups)
	}
}

func TestDisconnectTeardown(t *testing.T) {
	m, lc := newHarness()
	alice := register(t, m, lc, "alice")
	bob := register(t, m, lc, "bob")
	aliceConn, _ := m.GetConnection(alice.ID())
	bobConn, _ := m.GetConnection(bob.ID())
	lc.CreateGroup(aliceConn, "alice", "dev")
	lc.JoinGroup(bobConn, "bob", "dev")
	bob.reset()

	lc.HandleDisconnect(alice.ID())

	if _, online := m.LookupIdentity("alice"); online {
		t.Error("alice still resolvable after disconnect")
	}
	members, exists := m.GroupMembers("dev")
	if !exists || len(members) != 1 || members[0] != "bob" {
		t.Errorf("expected dev to keep bob, got %v exists=%v", members, exists)
	}

	notices := bob.framesOfType("server_message")
	var sawDeparture, sawOffline bool
	for _, n := range notices {
		if strings.Contains(n, "alice left #dev.") {
			sawDeparture = true
		}
		if strings.Contains(n, "alice is offline.") {
			sawOffline = true
		}
	}
	if !sawDeparture || !sawOffline {
		t.Errorf("expected departure and offline notices, got %v", notices)
	}

	lists := bob.framesOfType("user_list")
	if len(lists) != 1 || strings.Contains(lists[0], "alice") {
		t.Errorf("expected user_list without alice, got %v", lists)
	}
	if bob.countType("group_members_update") != 1 {
		t.Error("expected refreshed membership snapshot")
	}

	// History is monotonic: alice stays recorded.
	history := m.History()
	if len(history) != 2 {
		t.Errorf("expected history [alice bob], got %v", history)
	}
}

func TestDisconnectBeforeRegistrationIsSilent(t *testing.T) {
	m, lc := newHarness()
	alice := register(t, m, lc, "alice")
	alice.reset()

	f := newFakeTransport()
	conn, _ := m.RegisterConnection(f, "127.0.0.1")
	lc.HandleConnect(conn)
	lc.HandleDisconnect(f.ID())

	if len(alice.framesOfType("server_message")) != 0 || alice.countType("user_list") != 0 {
		t.Error("unregistered disconnect must not broadcast")
	}
}
