package diff

import (
	"sort"
	"testing"
)

func sorted(v []string) []string {
	cp := append([]string(nil), v...)
	sort.Strings(cp)
	return cp
}

func assertMembers(t *testing.T, got []string, want ...string) {
	t.Helper()
	g, w := sorted(got), sorted(want)
	if len(g) != len(w) {
		t.Fatalf("members = %v, want %v", got, want)
	}
	for i := range w {
		if g[i] != w[i] {
			t.Fatalf("members = %v, want %v", got, want)
		}
	}
}

func TestGained(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		current  map[string][]string
		previous map[string][]string
		want     map[string][]string
	}{
		{
			name:     "new follows detected",
			current:  map[string][]string{"a": {"y", "z"}},
			previous: map[string][]string{"a": {"x", "y"}},
			want:     map[string][]string{"a": {"z"}},
		},
		{
			name:     "no previous record bootstraps full list",
			current:  map[string][]string{"a": {"x", "y"}},
			previous: map[string][]string{},
			want:     map[string][]string{"a": {"x", "y"}},
		},
		{
			name:     "unchanged list yields empty diff",
			current:  map[string][]string{"a": {"x", "y"}},
			previous: map[string][]string{"a": {"y", "x"}},
			want:     map[string][]string{"a": {}},
		},
		{
			name:     "target only in previous is absent",
			current:  map[string][]string{},
			previous: map[string][]string{"a": {"x"}},
			want:     map[string][]string{},
		},
		{
			name:     "duplicates collapse",
			current:  map[string][]string{"a": {"z", "z", "y"}},
			previous: map[string][]string{"a": {"y"}},
			want:     map[string][]string{"a": {"z"}},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := Gained(tt.current, tt.previous)
			if len(got) != len(tt.want) {
				t.Fatalf("keys = %d, want %d", len(got), len(tt.want))
			}
			for k, w := range tt.want {
				assertMembers(t, got[k], w...)
			}
		})
	}
}

func TestLost(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		previous map[string][]string
		current  map[string][]string
		want     map[string][]string
	}{
		{
			name:     "unfollows detected",
			previous: map[string][]string{"a": {"x", "y"}},
			current:  map[string][]string{"a": {"y", "z"}},
			want:     map[string][]string{"a": {"x"}},
		},
		{
			name:     "target absent from current loses full list",
			previous: map[string][]string{"a": {"x", "y"}},
			current:  map[string][]string{},
			want:     map[string][]string{"a": {"x", "y"}},
		},
		{
			name:     "target only in current is absent",
			previous: map[string][]string{},
			current:  map[string][]string{"a": {"x"}},
			want:     map[string][]string{},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := Lost(tt.previous, tt.current)
			if len(got) != len(tt.want) {
				t.Fatalf("keys = %d, want %d", len(got), len(tt.want))
			}
			for k, w := range tt.want {
				assertMembers(t, got[k], w...)
			}
		})
	}
}

// The gained direction never reports an identifier already persisted.
func TestGainedNeverIncludesPersisted(t *testing.T) {
	t.Parallel()
	current := map[string][]string{"a": {"p", "q", "r", "s"}}
	previous := map[string][]string{"a": {"q", "s", "t"}}

	got := Gained(current, previous)
	persisted := map[string]bool{"q": true, "s": true, "t": true}
	for _, id := range got["a"] {
		if persisted[id] {
			t.Fatalf("gained contains persisted id %q", id)
		}
	}
	assertMembers(t, got["a"], "p", "r")
}
