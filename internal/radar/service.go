package radar

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"influradar/internal/diff"
	"influradar/internal/store"
	"influradar/internal/transport"
	"influradar/internal/twitter"
	"influradar/pkg/logx"
)

// Directory is the remote user-directory surface the radar needs:
// profile resolution and following-lists.
type Directory interface {
	GetUsers(ctx context.Context, usernames []string) ([]twitter.User, error)
	GetUserByID(ctx context.Context, id string) (twitter.User, error)
	GetUsersByIDs(ctx context.Context, ids []string) ([]twitter.User, error)
	GetFollowingIDs(ctx context.Context, userID string) ([]string, error)
}

type Config struct {
	// TargetHandles are the watched account handles, resolved to ids
	// once at startup.
	TargetHandles []string

	// LinkBase prefixes announced account links. Defaults to
	// "https://twitter.com/".
	LinkBase string
}

// Service runs the watch cycle: fetch following-lists for every target,
// diff them against the persisted state, write the delta back, and
// announce newly-followed accounts.
//
// Failures of individual targets degrade that target's contribution for
// the current cycle only; they never abort the cycle. The one exception
// is an unresolvable announce channel, which is fatal.
type Service struct {
	cfg   Config
	dir   Directory
	store store.Store
	sink  transport.Sink
	log   logx.Logger

	targets []string
}

func New(cfg Config, dir Directory, st store.Store, sink transport.Sink, log logx.Logger) *Service {
	if strings.TrimSpace(cfg.LinkBase) == "" {
		cfg.LinkBase = "https://twitter.com/"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, dir: dir, store: st, sink: sink, log: log}
}

// ResolveTargets maps the configured handles to user ids. Called once at
// startup; failure here is fatal (the process has nothing to watch).
func (s *Service) ResolveTargets(ctx context.Context) error {
	users, err := s.dir.GetUsers(ctx, s.cfg.TargetHandles)
	if err != nil {
		return fmt.Errorf("resolve targets: %w", err)
	}
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	s.targets = ids
	s.log.Info("targets resolved", logx.Int("count", len(ids)))
	return nil
}

// SetTargets overrides the resolved target ids (tests).
func (s *Service) SetTargets(ids []string) { s.targets = append([]string(nil), ids...) }

func (s *Service) Targets() []string { return append([]string(nil), s.targets...) }

// RunCycle executes one full collect/diff/reconcile/announce pass.
func (s *Service) RunCycle(ctx context.Context) error {
	snapshot, persisted := s.collect(ctx)

	gained := diff.Gained(snapshot, persisted)
	lost := diff.Lost(persisted, snapshot)

	s.reconcile(ctx, gained, lost)
	return s.announce(ctx, gained)
}

// collect builds the current remote snapshot and the persisted state for
// the same target set. A target whose remote fetch or store read fails
// is excluded from both maps, so it contributes to neither diff
// direction this cycle.
func (s *Service) collect(ctx context.Context) (snapshot, persisted map[string][]string) {
	snapshot = make(map[string][]string, len(s.targets))
	persisted = make(map[string][]string, len(s.targets))

	for _, id := range s.targets {
		following, err := s.dir.GetFollowingIDs(ctx, id)
		if err != nil {
			s.log.Warn("following fetch failed; target skipped this cycle",
				logx.String("target", id), logx.Err(err))
			continue
		}
		rec, err := s.store.Get(ctx, id)
		if err != nil {
			s.log.Warn("persisted read failed; target skipped this cycle",
				logx.String("target", id), logx.Err(err))
			continue
		}
		snapshot[id] = following
		if rec != nil && rec.Followings != nil {
			persisted[id] = rec.Followings
		}
	}
	return snapshot, persisted
}

// reconcile applies the gained diff as record creates/appends and the
// lost diff as removals. Per-target store errors are logged and do not
// block other targets.
func (s *Service) reconcile(ctx context.Context, gained, lost map[string][]string) {
	for _, target := range sortedKeys(gained) {
		ids := gained[target]
		if len(ids) == 0 {
			continue
		}
		s.applyGained(ctx, target, ids)
	}
	for _, target := range sortedKeys(lost) {
		ids := lost[target]
		if len(ids) == 0 {
			continue
		}
		s.applyLost(ctx, target, ids)
	}
}

func (s *Service) applyGained(ctx context.Context, target string, ids []string) {
	has, err := s.store.Has(ctx, target)
	if err != nil {
		s.log.Warn("record existence check failed", logx.String("target", target), logx.Err(err))
		return
	}
	if has {
		err = s.store.AddFollowings(ctx, target, ids)
	} else {
		err = s.store.Create(ctx, target, ids)
	}
	if err != nil {
		s.log.Warn("storing gained followings failed", logx.String("target", target), logx.Err(err))
		return
	}
	s.log.Info("followings added", logx.String("target", target), logx.Int("count", len(ids)))
}

func (s *Service) applyLost(ctx context.Context, target string, ids []string) {
	has, err := s.store.Has(ctx, target)
	if err != nil {
		s.log.Warn("record existence check failed", logx.String("target", target), logx.Err(err))
		return
	}
	if !has {
		return
	}
	if err := s.store.RemoveFollowings(ctx, target, ids); err != nil {
		s.log.Warn("removing lost followings failed", logx.String("target", target), logx.Err(err))
		return
	}
	s.log.Info("followings removed", logx.String("target", target), logx.Int("count", len(ids)))
}

// announce emits one message per target with a non-empty gained diff.
// Profile resolution failures skip that target's message; an
// unresolvable channel is fatal and surfaces to the caller.
func (s *Service) announce(ctx context.Context, gained map[string][]string) error {
	for _, target := range sortedKeys(gained) {
		ids := gained[target]
		if len(ids) == 0 {
			continue
		}

		tu, err := s.dir.GetUserByID(ctx, target)
		if err != nil {
			s.log.Warn("target profile lookup failed; announcement skipped",
				logx.String("target", target), logx.Err(err))
			continue
		}
		followed, err := s.dir.GetUsersByIDs(ctx, ids)
		if err != nil {
			s.log.Warn("followed profiles lookup failed; announcement skipped",
				logx.String("target", target), logx.Err(err))
			continue
		}
		if len(followed) == 0 {
			continue
		}

		msg := buildAnnouncement(tu, followed, s.cfg.LinkBase)
		if err := s.sink.Announce(ctx, msg); err != nil {
			if errors.Is(err, transport.ErrChannelGone) {
				return err
			}
			s.log.Warn("announcement send failed", logx.String("target", target), logx.Err(err))
			continue
		}
		s.log.Info("announcement sent", logx.String("target", target), logx.Int("count", len(followed)))
	}
	return nil
}

func buildAnnouncement(target twitter.User, followed []twitter.User, linkBase string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (@%s) newly followed these accounts:", target.Name, target.Username)
	for _, u := range followed {
		b.WriteString("\n")
		b.WriteString(linkBase)
		b.WriteString(u.Username)
	}
	return b.String()
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
