// Package ledger defines the per-account balance aggregate and its activity
// audit trail. All monetary amounts are integer satoshi.
package ledger

import "time"

// ActivityKind classifies a ledger activity.
type ActivityKind string

const (
	KindAd       ActivityKind = "ad"
	KindLink     ActivityKind = "link"
	KindOffer    ActivityKind = "offer"
	KindMining   ActivityKind = "mining"
	KindReferral ActivityKind = "referral"
	KindWithdraw ActivityKind = "withdraw"
	KindBonus    ActivityKind = "bonus"
)

// Experience granted per completed activity kind.
const (
	XPPerAd    = 10
	XPPerLink  = 8
	XPPerOffer = 25
)

// InitialXPToNext is the experience required to reach level 2.
const InitialXPToNext = 1000

// ActivityLogCap bounds the in-memory activity working set. The durable store
// keeps the full history.
const ActivityLogCap = 50

// Profile is the durable per-account ledger aggregate.
type Profile struct {
	ID               string    `json:"id"`
	Username         string    `json:"username"`
	BalanceSatoshi   int64     `json:"balance_satoshi"`
	TotalEarned      int64     `json:"total_earned"`
	TodayEarned      int64     `json:"today_earned"`
	AdsWatched       int64     `json:"ads_watched"`
	LinksVisited     int64     `json:"links_visited"`
	OffersCompleted  int64     `json:"offers_completed"`
	MiningEarned     int64     `json:"mining_earned"`
	ReferralCode     string    `json:"referral_code"`
	ReferralCount    int64     `json:"referral_count"`
	ReferralEarnings int64     `json:"referral_earnings"`
	Level            int       `json:"level"`
	XP               int64     `json:"xp"`
	XPToNext         int64     `json:"xp_to_next"`
	ReferredBy       string    `json:"referred_by,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Activity is an immutable audit entry for a single ledger mutation.
type Activity struct {
	ID          string       `json:"id"`
	AccountID   string       `json:"account_id"`
	Kind        ActivityKind `json:"type"`
	Description string       `json:"description"`
	Amount      int64        `json:"amount"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Progress holds experience state after applying a gain.
type Progress struct {
	XP       int64
	Level    int
	XPToNext int64
}

// Advance applies an experience gain, carrying overflow across as many level
// boundaries as the gain covers. The requirement for the next level grows by
// a factor of 1.3 (floored) at each level-up.
func Advance(xp int64, level int, xpToNext int64, gain int64) Progress {
	if xpToNext <= 0 {
		xpToNext = InitialXPToNext
	}
	if level < 1 {
		level = 1
	}
	xp += gain
	for xp >= xpToNext {
		xp -= xpToNext
		level++
		xpToNext = int64(float64(xpToNext) * 1.3)
	}
	return Progress{XP: xp, Level: level, XPToNext: xpToNext}
}
