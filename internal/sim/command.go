package sim

import "time"

// CommandType enumerates the supported simulation commands.
type CommandType string

const (
	CommandMove CommandType = "Move"
	CommandFire CommandType = "Fire"
)

// MoveCommand carries the desired movement vector for the player actor.
// Components are normalized intent in [-1, 1]; the engine scales by the
// actor's move speed.
type MoveCommand struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

// FireCommand requests a projectile in the given direction.
type FireCommand struct {
	DirX float64 `json:"dirX"`
	DirY float64 `json:"dirY"`
}

// Command represents an input intent captured for processing on the next
// tick.
type Command struct {
	OriginTick uint64       `json:"originTick"`
	ActorID    string       `json:"actorId"`
	Type       CommandType  `json:"type"`
	IssuedAt   time.Time    `json:"issuedAt"`
	Move       *MoveCommand `json:"move,omitempty"`
	Fire       *FireCommand `json:"fire,omitempty"`
}
