package trace

// MaxClients is the fixed client-slot capacity of a session.
const MaxClients = 64

// FormatVersion is the only header version this decoder accepts.
const FormatVersion = 1

// ItemKind tags one typed record in the item stream. The tag order is part
// of the wire format: a negative key k addresses kind m%5 on client m/5,
// with m = -(k+1).
type ItemKind uint8

const (
	ItemPlayerNew ItemKind = iota
	ItemPlayerDiff
	ItemPlayerOld
	ItemInputNew
	ItemInputDiff
)

const numItemKinds = 5

func (k ItemKind) String() string {
	switch k {
	case ItemPlayerNew:
		return "player_new"
	case ItemPlayerDiff:
		return "player_diff"
	case ItemPlayerOld:
		return "player_old"
	case ItemInputNew:
		return "input_new"
	case ItemInputDiff:
		return "input_diff"
	}
	return "unknown"
}

// PlayerPos is a player snapshot: the world position at the current tick.
// Diff records carry the same shape as field-wise deltas.
type PlayerPos struct {
	X int32 `json:"x"`
	Y int32 `json:"y"`
}

// PlayerInput is an input snapshot: the control vector a client sent for
// one tick. Diff records carry the same shape as field-wise deltas.
type PlayerInput struct {
	Direction    int32 `json:"direction"`
	TargetX      int32 `json:"target_x"`
	TargetY      int32 `json:"target_y"`
	Jump         int32 `json:"jump"`
	Fire         int32 `json:"fire"`
	Hook         int32 `json:"hook"`
	PlayerFlags  int32 `json:"player_flags"`
	WantedWeapon int32 `json:"wanted_weapon"`
	NextWeapon   int32 `json:"next_weapon"`
	PrevWeapon   int32 `json:"prev_weapon"`
}

const numInputFields = 10

func (in PlayerInput) apply(d PlayerInput) PlayerInput {
	return PlayerInput{
		Direction:    in.Direction + d.Direction,
		TargetX:      in.TargetX + d.TargetX,
		TargetY:      in.TargetY + d.TargetY,
		Jump:         in.Jump + d.Jump,
		Fire:         in.Fire + d.Fire,
		Hook:         in.Hook + d.Hook,
		PlayerFlags:  in.PlayerFlags + d.PlayerFlags,
		WantedWeapon: in.WantedWeapon + d.WantedWeapon,
		NextWeapon:   in.NextWeapon + d.NextWeapon,
		PrevWeapon:   in.PrevWeapon + d.PrevWeapon,
	}
}

// EventKind classifies one decoded record.
type EventKind uint8

const (
	EventTick EventKind = iota
	EventPlayerNew
	EventPlayerDiff
	EventPlayerOld
	EventInputNew
	EventInputDiff
)

func (k EventKind) String() string {
	if k == EventTick {
		return "tick"
	}
	return ItemKind(k - EventPlayerNew).String()
}

// Event is one decoded record. Kind selects which fields carry meaning:
// tick advances fill Delta; player records fill Pos (and PosDelta for
// diffs); input records fill Input (and InputDelta for diffs). Tick is the
// running tick after the record applied. Client is -1 for tick advances.
type Event struct {
	Kind       EventKind
	Tick       int32
	Client     int
	Delta      int32
	Pos        PlayerPos
	PosDelta   PlayerPos
	Input      PlayerInput
	InputDelta PlayerInput
}
