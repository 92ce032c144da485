package trace

import (
	"io"
	"math"

	"ticktrace.gg/internal/packer"
)

// Reader decodes one session trace from a fully resident buffer. It owns
// the per-client state table for the duration of the pass, so one Reader
// serves one stream on one goroutine; events come out in byte order and
// each record's legality depends on everything decoded before it.
type Reader struct {
	u       *packer.Unpacker
	header  Header
	tick    int32
	players [MaxClients]playerSlot
	inputs  [MaxClients]inputSlot
	err     error
}

type playerSlot struct {
	present bool
	pos     PlayerPos
}

type inputSlot struct {
	active bool
	input  PlayerInput
}

// NewReader checks the magic, parses the header and gates the version. On
// success the Reader is positioned at the first item record.
func NewReader(data []byte) (*Reader, error) {
	u := packer.New(data)
	if err := readMagic(u); err != nil {
		return nil, err
	}
	h, err := readHeader(u)
	if err != nil {
		return nil, err
	}
	if h.Version != FormatVersion {
		return nil, errAt(CodeUnknownVersion, u.Offset())
	}
	return &Reader{u: u, header: h}, nil
}

// Header returns the parsed session header.
func (r *Reader) Header() Header {
	return r.header
}

// Tick returns the running tick counter.
func (r *Reader) Tick() int32 {
	return r.tick
}

// Offset returns how many bytes of the trace have been consumed.
func (r *Reader) Offset() int {
	return r.u.Offset()
}

// Next decodes one record. It returns io.EOF once the buffer is exhausted
// at a record boundary; every other failure is a *Error. Running out of
// bytes mid-record is CodeUnexpectedEnd, not io.EOF: the record cannot be
// resumed by appending bytes later. Failures are sticky.
func (r *Reader) Next() (Event, error) {
	if r.err != nil {
		return Event{}, r.err
	}
	ev, err := r.next()
	if err != nil {
		r.err = err
		return Event{}, err
	}
	return ev, nil
}

func (r *Reader) next() (Event, error) {
	if r.u.Remaining() == 0 {
		return Event{}, io.EOF
	}
	off := r.u.Offset()
	key, err := r.u.ReadInt()
	if err != nil {
		return Event{}, errAt(CodeUnexpectedEnd, off)
	}
	if key >= 0 {
		if key > math.MaxInt32-r.tick {
			return Event{}, errAt(CodeTickOverflow, off)
		}
		r.tick += key
		return Event{Kind: EventTick, Tick: r.tick, Client: -1, Delta: key}, nil
	}
	m := -(key + 1)
	kind := ItemKind(m % numItemKinds)
	client := int(m / numItemKinds)
	if client >= MaxClients {
		return Event{}, itemErr(CodeInvalidClientID, off, client, kind)
	}
	switch kind {
	case ItemPlayerNew:
		return r.playerNew(off, client)
	case ItemPlayerDiff:
		return r.playerDiff(off, client)
	case ItemPlayerOld:
		return r.playerOld(off, client)
	case ItemInputNew:
		return r.inputNew(off, client)
	default: // ItemInputDiff
		return r.inputDiff(off, client)
	}
}

func (r *Reader) playerNew(off, client int) (Event, error) {
	pos, err := r.readPos(off, client, ItemPlayerNew)
	if err != nil {
		return Event{}, err
	}
	s := &r.players[client]
	if s.present {
		return Event{}, itemErr(CodePlayerNewDuplicate, off, client, ItemPlayerNew)
	}
	s.present = true
	s.pos = pos
	return Event{Kind: EventPlayerNew, Tick: r.tick, Client: client, Pos: pos}, nil
}

func (r *Reader) playerDiff(off, client int) (Event, error) {
	d, err := r.readPos(off, client, ItemPlayerDiff)
	if err != nil {
		return Event{}, err
	}
	s := &r.players[client]
	if !s.present {
		return Event{}, itemErr(CodePlayerDiffWithoutNew, off, client, ItemPlayerDiff)
	}
	s.pos = PlayerPos{X: s.pos.X + d.X, Y: s.pos.Y + d.Y}
	return Event{Kind: EventPlayerDiff, Tick: r.tick, Client: client, Pos: s.pos, PosDelta: d}, nil
}

func (r *Reader) playerOld(off, client int) (Event, error) {
	s := &r.players[client]
	if !s.present {
		return Event{}, itemErr(CodePlayerOldWithoutNew, off, client, ItemPlayerOld)
	}
	// Departure clears both machines. There is no input release record; a
	// rejoining client starts over with PlayerNew and InputNew.
	*s = playerSlot{}
	r.inputs[client] = inputSlot{}
	return Event{Kind: EventPlayerOld, Tick: r.tick, Client: client}, nil
}

func (r *Reader) inputNew(off, client int) (Event, error) {
	in, err := r.readInput(off, client, ItemInputNew)
	if err != nil {
		return Event{}, err
	}
	s := &r.inputs[client]
	if s.active {
		return Event{}, itemErr(CodeInputNewDuplicate, off, client, ItemInputNew)
	}
	s.active = true
	s.input = in
	return Event{Kind: EventInputNew, Tick: r.tick, Client: client, Input: in}, nil
}

func (r *Reader) inputDiff(off, client int) (Event, error) {
	d, err := r.readInput(off, client, ItemInputDiff)
	if err != nil {
		return Event{}, err
	}
	s := &r.inputs[client]
	if !s.active {
		return Event{}, itemErr(CodeInputDiffWithoutNew, off, client, ItemInputDiff)
	}
	s.input = s.input.apply(d)
	return Event{Kind: EventInputDiff, Tick: r.tick, Client: client, Input: s.input, InputDelta: d}, nil
}

// readPos pulls a full position payload into locals before any table
// commit, so a truncated record never leaves a partial update behind.
func (r *Reader) readPos(off, client int, kind ItemKind) (PlayerPos, error) {
	x, err := r.u.ReadInt()
	if err != nil {
		return PlayerPos{}, itemErr(CodeUnexpectedEnd, off, client, kind)
	}
	y, err := r.u.ReadInt()
	if err != nil {
		return PlayerPos{}, itemErr(CodeUnexpectedEnd, off, client, kind)
	}
	return PlayerPos{X: x, Y: y}, nil
}

func (r *Reader) readInput(off, client int, kind ItemKind) (PlayerInput, error) {
	var f [numInputFields]int32
	for i := range f {
		v, err := r.u.ReadInt()
		if err != nil {
			return PlayerInput{}, itemErr(CodeUnexpectedEnd, off, client, kind)
		}
		f[i] = v
	}
	return PlayerInput{
		Direction:    f[0],
		TargetX:      f[1],
		TargetY:      f[2],
		Jump:         f[3],
		Fire:         f[4],
		Hook:         f[5],
		PlayerFlags:  f[6],
		WantedWeapon: f[7],
		NextWeapon:   f[8],
		PrevWeapon:   f[9],
	}, nil
}
