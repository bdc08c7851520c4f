package radar

import (
	"context"
	"errors"
	"strings"
	"testing"

	"influradar/internal/transport"
	"influradar/internal/twitter"
	"influradar/pkg/logx"
)

func newTestService(dir *fakeDirectory, st *fakeStore, sink *fakeSink, targets ...string) *Service {
	s := New(Config{}, dir, st, sink, logx.Nop())
	s.SetTargets(targets)
	return s
}

func assertSet(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("set = %v, want %v", got, want)
	}
	members := map[string]bool{}
	for _, g := range got {
		members[g] = true
	}
	for _, w := range want {
		if !members[w] {
			t.Fatalf("set = %v, want %v", got, want)
		}
	}
}

// The reference end-to-end scenario: target A previously followed
// {X, Y}, now follows {Y, Z}. One cycle stores {Y, Z} and announces
// exactly Z.
func TestCycleGainAndLoss(t *testing.T) {
	t.Parallel()
	dir := &fakeDirectory{
		byID: map[string]twitter.User{
			"A": {ID: "A", Name: "Target A", Username: "target_a"},
			"Z": {ID: "Z", Name: "Zed", Username: "zed"},
		},
		following: map[string][]string{"A": {"Y", "Z"}},
	}
	st := newFakeStore()
	st.seed("A", "X", "Y")
	sink := &fakeSink{}

	svc := newTestService(dir, st, sink, "A")
	if err := svc.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	assertSet(t, st.followings("A"), "Y", "Z")

	if len(sink.messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(sink.messages))
	}
	msg := sink.messages[0]
	if !strings.Contains(msg, "Target A (@target_a)") {
		t.Fatalf("message missing target header: %q", msg)
	}
	if !strings.Contains(msg, "https://twitter.com/zed") {
		t.Fatalf("message missing link for Z: %q", msg)
	}
	if strings.Contains(msg, "https://twitter.com/target_a\n") {
		t.Fatalf("message should only list newly followed accounts: %q", msg)
	}
}

// First observation: no persisted record yet, so the full remote list is
// stored and announced.
func TestCycleBootstrapsNewTarget(t *testing.T) {
	t.Parallel()
	dir := &fakeDirectory{
		byID: map[string]twitter.User{
			"A": {ID: "A", Name: "Target A", Username: "target_a"},
			"X": {ID: "X", Name: "Ex", Username: "ex"},
			"Y": {ID: "Y", Name: "Why", Username: "why"},
		},
		following: map[string][]string{"A": {"X", "Y"}},
	}
	st := newFakeStore()
	sink := &fakeSink{}

	svc := newTestService(dir, st, sink, "A")
	if err := svc.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	assertSet(t, st.followings("A"), "X", "Y")
	if len(sink.messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(sink.messages))
	}
}

// A target whose remote fetch fails contributes to neither diff
// direction: the persisted record stays intact and nothing is announced.
func TestCycleFetchFailureDegradesTarget(t *testing.T) {
	t.Parallel()
	dir := &fakeDirectory{
		byID:         map[string]twitter.User{},
		following:    map[string][]string{},
		followingErr: map[string]error{"A": &twitter.RequestError{Op: "get following", Status: 429}},
	}
	st := newFakeStore()
	st.seed("A", "X", "Y")
	sink := &fakeSink{}

	svc := newTestService(dir, st, sink, "A")
	if err := svc.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	assertSet(t, st.followings("A"), "X", "Y")
	if st.mutations != 0 {
		t.Fatalf("mutations = %d, want 0", st.mutations)
	}
	if len(sink.messages) != 0 {
		t.Fatalf("messages = %d, want 0", len(sink.messages))
	}
}

// One target's failure must not block the others.
func TestCyclePartialFailureContinues(t *testing.T) {
	t.Parallel()
	dir := &fakeDirectory{
		byID: map[string]twitter.User{
			"B": {ID: "B", Name: "Target B", Username: "target_b"},
			"N": {ID: "N", Name: "New", Username: "new"},
		},
		following:    map[string][]string{"B": {"N"}},
		followingErr: map[string]error{"A": &twitter.RequestError{Op: "get following", Status: 500}},
	}
	st := newFakeStore()
	sink := &fakeSink{}

	svc := newTestService(dir, st, sink, "A", "B")
	if err := svc.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	assertSet(t, st.followings("B"), "N")
	if len(sink.messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(sink.messages))
	}
}

// An unchanged following-list triggers neither a store write nor a
// message.
func TestCycleNoChangesIsNoop(t *testing.T) {
	t.Parallel()
	dir := &fakeDirectory{
		byID:      map[string]twitter.User{"A": {ID: "A", Name: "Target A", Username: "target_a"}},
		following: map[string][]string{"A": {"X", "Y"}},
	}
	st := newFakeStore()
	st.seed("A", "X", "Y")
	sink := &fakeSink{}

	svc := newTestService(dir, st, sink, "A")
	if err := svc.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if st.mutations != 0 {
		t.Fatalf("mutations = %d, want 0", st.mutations)
	}
	if len(sink.messages) != 0 {
		t.Fatalf("messages = %d, want 0", len(sink.messages))
	}
}

// Reconciling the same gained diff twice leaves the store unchanged
// after the first pass (set union is idempotent), and the second cycle
// announces nothing.
func TestCycleIdempotentAcrossRuns(t *testing.T) {
	t.Parallel()
	dir := &fakeDirectory{
		byID: map[string]twitter.User{
			"A": {ID: "A", Name: "Target A", Username: "target_a"},
			"Z": {ID: "Z", Name: "Zed", Username: "zed"},
		},
		following: map[string][]string{"A": {"Y", "Z"}},
	}
	st := newFakeStore()
	st.seed("A", "Y")
	sink := &fakeSink{}

	svc := newTestService(dir, st, sink, "A")
	for i := 0; i < 2; i++ {
		if err := svc.RunCycle(context.Background()); err != nil {
			t.Fatalf("RunCycle #%d: %v", i+1, err)
		}
	}

	assertSet(t, st.followings("A"), "Y", "Z")
	if len(sink.messages) != 1 {
		t.Fatalf("messages = %d, want 1 (second cycle must be silent)", len(sink.messages))
	}
}

// Profile resolution failure skips that target's announcement but the
// store update has already happened.
func TestCycleResolveFailureSkipsAnnouncement(t *testing.T) {
	t.Parallel()
	dir := &fakeDirectory{
		byID:       map[string]twitter.User{"Z": {ID: "Z", Name: "Zed", Username: "zed"}},
		following:  map[string][]string{"A": {"Y", "Z"}},
		profileErr: map[string]error{"A": &twitter.RequestError{Op: "get user by id", Detail: "suspended"}},
	}
	st := newFakeStore()
	st.seed("A", "Y")
	sink := &fakeSink{}

	svc := newTestService(dir, st, sink, "A")
	if err := svc.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	assertSet(t, st.followings("A"), "Y", "Z")
	if len(sink.messages) != 0 {
		t.Fatalf("messages = %d, want 0", len(sink.messages))
	}
}

// An unresolvable channel is fatal for the cycle.
func TestCycleChannelGoneIsFatal(t *testing.T) {
	t.Parallel()
	dir := &fakeDirectory{
		byID: map[string]twitter.User{
			"A": {ID: "A", Name: "Target A", Username: "target_a"},
			"Z": {ID: "Z", Name: "Zed", Username: "zed"},
		},
		following: map[string][]string{"A": {"Z"}},
	}
	st := newFakeStore()
	sink := &fakeSink{err: transport.ErrChannelGone}

	svc := newTestService(dir, st, sink, "A")
	err := svc.RunCycle(context.Background())
	if !errors.Is(err, transport.ErrChannelGone) {
		t.Fatalf("RunCycle = %v, want ErrChannelGone", err)
	}
}

func TestResolveTargets(t *testing.T) {
	t.Parallel()
	dir := &fakeDirectory{
		byUsername: map[string]twitter.User{
			"alice": {ID: "1", Name: "Alice", Username: "alice"},
			"bob":   {ID: "2", Name: "Bob", Username: "bob"},
		},
	}
	svc := New(Config{TargetHandles: []string{"alice", "bob"}}, dir, newFakeStore(), &fakeSink{}, logx.Nop())
	if err := svc.ResolveTargets(context.Background()); err != nil {
		t.Fatalf("ResolveTargets: %v", err)
	}
	assertSet(t, svc.Targets(), "1", "2")

	svc = New(Config{TargetHandles: []string{"ghost"}}, dir, newFakeStore(), &fakeSink{}, logx.Nop())
	if err := svc.ResolveTargets(context.Background()); err == nil {
		t.Fatal("expected error for unknown handle")
	}
}
