package radar

import (
	"context"
	"errors"
	"sort"

	"influradar/internal/store"
	"influradar/internal/twitter"
)

// fakeDirectory serves canned profiles and following-lists.
type fakeDirectory struct {
	byUsername map[string]twitter.User
	byID       map[string]twitter.User
	following  map[string][]string

	followingErr map[string]error
	profileErr   map[string]error

	followingCalls int
}

func (d *fakeDirectory) GetUsers(ctx context.Context, usernames []string) ([]twitter.User, error) {
	out := make([]twitter.User, 0, len(usernames))
	for _, un := range usernames {
		u, ok := d.byUsername[un]
		if !ok {
			return nil, &twitter.RequestError{Op: "get user by username", Detail: "no such user"}
		}
		out = append(out, u)
	}
	return out, nil
}

func (d *fakeDirectory) GetUserByID(ctx context.Context, id string) (twitter.User, error) {
	if err := d.profileErr[id]; err != nil {
		return twitter.User{}, err
	}
	u, ok := d.byID[id]
	if !ok {
		return twitter.User{}, &twitter.RequestError{Op: "get user by id", Detail: "no such user"}
	}
	return u, nil
}

func (d *fakeDirectory) GetUsersByIDs(ctx context.Context, ids []string) ([]twitter.User, error) {
	out := make([]twitter.User, 0, len(ids))
	for _, id := range ids {
		if err := d.profileErr[id]; err != nil {
			return nil, err
		}
		if u, ok := d.byID[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (d *fakeDirectory) GetFollowingIDs(ctx context.Context, userID string) ([]string, error) {
	d.followingCalls++
	if err := d.followingErr[userID]; err != nil {
		return nil, err
	}
	return append([]string(nil), d.following[userID]...), nil
}

// fakeStore is an in-memory store.Store that counts mutations and can
// inject per-key faults.
type fakeStore struct {
	records   map[string]map[string]struct{}
	getErr    map[string]error
	mutations int
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string]map[string]struct{}{}}
}

func (s *fakeStore) seed(key string, followings ...string) {
	set := map[string]struct{}{}
	for _, f := range followings {
		set[f] = struct{}{}
	}
	s.records[key] = set
}

func (s *fakeStore) followings(key string) []string {
	set, ok := s.records[key]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func (s *fakeStore) Has(ctx context.Context, key string) (bool, error) {
	_, ok := s.records[key]
	return ok, nil
}

func (s *fakeStore) Get(ctx context.Context, key string) (*store.Record, error) {
	if err := s.getErr[key]; err != nil {
		return nil, err
	}
	if _, ok := s.records[key]; !ok {
		return nil, nil
	}
	return &store.Record{Followings: s.followings(key)}, nil
}

func (s *fakeStore) Create(ctx context.Context, key string, followings []string) error {
	s.mutations++
	s.seed(key, followings...)
	return nil
}

func (s *fakeStore) AddFollowings(ctx context.Context, key string, values []string) error {
	set, ok := s.records[key]
	if !ok {
		return &store.StoreError{Op: "add followings", Key: key, Err: errors.New("no such record")}
	}
	s.mutations++
	for _, v := range values {
		set[v] = struct{}{}
	}
	return nil
}

func (s *fakeStore) RemoveFollowings(ctx context.Context, key string, values []string) error {
	set, ok := s.records[key]
	if !ok {
		return &store.StoreError{Op: "remove followings", Key: key, Err: errors.New("no such record")}
	}
	s.mutations++
	for _, v := range values {
		delete(set, v)
	}
	return nil
}

func (s *fakeStore) Close() error { return nil }

// fakeSink records announcements and can fail every send.
type fakeSink struct {
	messages []string
	err      error
}

func (f *fakeSink) Announce(ctx context.Context, text string) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, text)
	return nil
}
