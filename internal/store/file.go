package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"influradar/pkg/logx"
)

// fileStore is a dependency-free persistence backend: one JSON snapshot
// holding every record, rewritten atomically (tmp + rename) on each
// mutation. Follow sets for a handful of watched accounts stay small, so
// whole-file rewrites are cheap.
type fileStore struct {
	log  logx.Logger
	path string

	mu      sync.Mutex
	records map[string]map[string]struct{} // key -> following set
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = "./influradar_store.json"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, opErr("open", "", err)
	}

	s := &fileStore{log: log, path: path, records: map[string]map[string]struct{}{}}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *fileStore) load() error {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return opErr("load", "", err)
	}
	var raw map[string]Record
	if err := json.Unmarshal(b, &raw); err != nil {
		return opErr("load", "", err)
	}
	for k, r := range raw {
		set := make(map[string]struct{}, len(r.Followings))
		for _, f := range r.Followings {
			set[f] = struct{}{}
		}
		s.records[k] = set
	}
	return nil
}

// persistLocked writes the snapshot; on failure the in-memory delta is
// rolled back by the caller so a failed mutation stays invisible.
func (s *fileStore) persistLocked() error {
	out := make(map[string]Record, len(s.records))
	for k, set := range s.records {
		fs := make([]string, 0, len(set))
		for f := range set {
			fs = append(fs, f)
		}
		sort.Strings(fs)
		out[k] = Record{Followings: fs}
	}

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) Has(ctx context.Context, key string) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[key]
	return ok, nil
}

func (s *fileStore) Get(ctx context.Context, key string) (*Record, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	fs := make([]string, 0, len(set))
	for f := range set {
		fs = append(fs, f)
	}
	sort.Strings(fs)
	return &Record{Followings: fs}, nil
}

func (s *fileStore) Create(ctx context.Context, key string, followings []string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.records[key]
	set := make(map[string]struct{}, len(followings))
	for _, f := range followings {
		set[f] = struct{}{}
	}
	s.records[key] = set

	if err := s.persistLocked(); err != nil {
		if existed {
			s.records[key] = prev
		} else {
			delete(s.records, key)
		}
		return opErr("create", key, err)
	}
	return nil
}

func (s *fileStore) AddFollowings(ctx context.Context, key string, values []string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.records[key]
	if !ok {
		return opErr("add followings", key, errors.New("no such record"))
	}
	added := make([]string, 0, len(values))
	for _, v := range values {
		if _, dup := set[v]; !dup {
			set[v] = struct{}{}
			added = append(added, v)
		}
	}
	if len(added) == 0 {
		return nil
	}
	if err := s.persistLocked(); err != nil {
		for _, v := range added {
			delete(set, v)
		}
		return opErr("add followings", key, err)
	}
	return nil
}

func (s *fileStore) RemoveFollowings(ctx context.Context, key string, values []string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.records[key]
	if !ok {
		return opErr("remove followings", key, errors.New("no such record"))
	}
	removed := make([]string, 0, len(values))
	for _, v := range values {
		if _, present := set[v]; present {
			delete(set, v)
			removed = append(removed, v)
		}
	}
	if len(removed) == 0 {
		return nil
	}
	if err := s.persistLocked(); err != nil {
		for _, v := range removed {
			set[v] = struct{}{}
		}
		return opErr("remove followings", key, err)
	}
	return nil
}
