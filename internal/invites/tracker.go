// Package invites attributes member joins to the invite they used.
package invites

import (
	"context"
	"time"

	"jarvis-bot/internal/state"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

type Invite struct {
	Code      string
	Uses      int
	InviterID string
}

// Lister fetches the current invites of a guild.
type Lister interface {
	Invites(ctx context.Context, guildID string) ([]Invite, error)
}

type Risk string

const (
	RiskHigh     Risk = "high risk"
	RiskPossible Risk = "possible alt"
	RiskNormal   Risk = "normal"
)

// ClassifyAge buckets an account by how long it has existed.
func ClassifyAge(age time.Duration) Risk {
	switch {
	case age < 24*time.Hour:
		return RiskHigh
	case age < 7*24*time.Hour:
		return RiskPossible
	default:
		return RiskNormal
	}
}

// JoinRecord describes one attributed join. Code is empty when no invite
// could be identified.
type JoinRecord struct {
	GuildID    string
	UserID     string
	Code       string
	InviterID  string
	Uses       int
	AccountAge time.Duration
	Risk       Risk
	JoinedAt   time.Time
}

// Sink receives join records; a missing destination is skipped silently.
type Sink interface {
	RecordJoin(ctx context.Context, rec JoinRecord) error
}

// Tracker diffs invite use counts between joins. Two joins that race on the
// same stale snapshot may be misattributed; that is accepted.
type Tracker struct {
	state  *state.Store
	lister Lister
	sink   Sink
	log    *zap.Logger
	now    func() time.Time
}

func NewTracker(st *state.Store, lister Lister, sink Sink, log *zap.Logger) *Tracker {
	return &Tracker{state: st, lister: lister, sink: sink, log: log, now: time.Now}
}

// Prime records the current invite counts of a guild.
func (t *Tracker) Prime(ctx context.Context, guildID string) error {
	current, err := t.lister.Invites(ctx, guildID)
	if err != nil {
		return err
	}
	t.state.SetInviteSnapshot(guildID, counts(current))
	t.log.Debug("Primed invite snapshot", zap.String("guild", guildID), zap.Int("invites", len(current)))
	return nil
}

// OnJoin attributes a join and emits its record. When the invite fetch fails
// the prior snapshot is kept and the join is recorded without a code. A join
// in a guild that was never primed is recorded without a code and primes it.
func (t *Tracker) OnJoin(ctx context.Context, guildID, userID string, accountCreated time.Time) JoinRecord {
	now := t.now()
	rec := JoinRecord{
		GuildID:    guildID,
		UserID:     userID,
		AccountAge: now.Sub(accountCreated),
		JoinedAt:   now,
	}
	rec.Risk = ClassifyAge(rec.AccountAge)

	current, err := t.lister.Invites(ctx, guildID)
	if err != nil {
		t.log.Warn("Fetching invites failed, keeping prior snapshot", zap.String("guild", guildID), zap.Error(err))
	} else {
		// Without a baseline no increase can be measured; this fetch becomes it.
		if prev, primed := t.state.InviteSnapshot(guildID); !primed {
			t.log.Info("Join in an unprimed guild, invite unknown", zap.String("guild", guildID))
		} else if inv, ok := Diff(prev, current); ok {
			rec.Code = inv.Code
			rec.InviterID = inv.InviterID
			rec.Uses = inv.Uses
		}
		t.state.SetInviteSnapshot(guildID, counts(current))
	}

	if err := t.sink.RecordJoin(ctx, rec); err != nil {
		t.log.Warn("Join record not delivered", zap.String("guild", guildID), zap.Error(err))
	}
	return rec
}

// Diff returns the first invite, in the order given, whose use count grew
// past the snapshot. Codes missing from the snapshot count from zero.
func Diff(prev map[string]int, current []Invite) (Invite, bool) {
	return lo.Find(current, func(inv Invite) bool {
		return inv.Uses > prev[inv.Code]
	})
}

func counts(invites []Invite) map[string]int {
	return lo.SliceToMap(invites, func(inv Invite) (string, int) {
		return inv.Code, inv.Uses
	})
}
