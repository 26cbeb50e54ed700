package review

import (
	"time"

	"github.com/pkg/errors"
)

const (
	VoteUp   = 1
	VoteDown = -1
)

var ErrInvalidVote = errors.New("invalid vote")

type Vote struct {
	ID        string    `db:"id"`
	ReviewID  string    `db:"review_id"`
	UserID    string    `db:"user_id"`
	Value     int       `db:"value"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type VoteCounts struct {
	Up   int `db:"up" json:"up"`
	Down int `db:"down" json:"down"`
}

func (vc VoteCounts) Score() int { return vc.Up - vc.Down }

// VoteAction is the state change a vote leads to.
type VoteAction int

const (
	VoteNoop VoteAction = iota
	VoteInsert
	VoteUpdate
	VoteDelete
)

// ResolveVote decides what to do with a vote of value given the user's current vote (0 when none).
// The same value twice toggles the vote off; the opposite value switches it.
func ResolveVote(current, value int) VoteAction {
	switch {
	case value == 0 && current == 0:
		return VoteNoop
	case value == 0, current == value:
		return VoteDelete
	case current == 0:
		return VoteInsert
	default:
		return VoteUpdate
	}
}

// ParseVoteOp maps a vote operation (up | down | clear) to a vote value (0 clears).
func ParseVoteOp(op string) (int, error) {
	switch op {
	case "up", "1", "+1":
		return VoteUp, nil
	case "down", "-1":
		return VoteDown, nil
	case "clear", "0":
		return 0, nil
	}
	return 0, ErrInvalidVote
}

// VoteResult reports what a vote did.
type VoteResult struct {
	Created    bool
	Updated    bool
	ToggledOff bool
	Value      int // the user's vote after the operation (0 when none)
}
