package journal

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/signalsfoundry/stellar-empires/internal/sim/intake"
	"github.com/signalsfoundry/stellar-empires/internal/sim/turn"
	"github.com/signalsfoundry/stellar-empires/model"
)

// formatVersion is bumped whenever Entry changes incompatibly.
const formatVersion = 1

var (
	// ErrEntryNotFound indicates no entry exists for a game and turn.
	ErrEntryNotFound = errors.New("journal entry not found")
	// ErrDigestMismatch indicates a replay diverged from the journal.
	ErrDigestMismatch = errors.New("journal digest mismatch")
	// ErrUnsupportedVersion indicates an entry written by a newer format.
	ErrUnsupportedVersion = errors.New("unsupported journal format version")
)

// Header is written uncompressed-first as a JSON line so tools can identify
// an entry without decoding the body.
type Header struct {
	Version int    `json:"version"`
	GameID  string `json:"game_id"`
	Turn    int    `json:"turn"`
}

// OrderRecord is one accepted command. Orders are stored as JSON tagged by
// kind so nil and empty collections survive the round trip.
type OrderRecord struct {
	Empire model.EmpireID
	Turn   int
	Kind   string
	Body   []byte
}

// Entry is everything needed to re-resolve one turn: the galaxy before it,
// the accepted orders and the digests on both sides.
type Entry struct {
	Header Header

	Seed        uint64
	PriorDigest string
	Digest      string
	// Prior is the canonical encoding of the galaxy the turn started from.
	Prior  []byte
	Orders []OrderRecord

	Battles    int
	ResolvedAt time.Time
}

// NewEntry captures a committed turn.
func NewEntry(res *turn.Result) (*Entry, error) {
	if res == nil || res.Prior == nil {
		return nil, errors.New("journal: result without prior galaxy")
	}
	prior, err := res.Prior.MarshalCanonical()
	if err != nil {
		return nil, err
	}
	orders, err := EncodeOrders(res.Orders)
	if err != nil {
		return nil, err
	}
	e := &Entry{
		Header:      Header{Version: formatVersion, GameID: res.GameID, Turn: res.Turn},
		Seed:        res.Seed,
		PriorDigest: res.PriorDigest,
		Digest:      res.Digest,
		Prior:       prior,
		Orders:      orders,
		ResolvedAt:  time.Now().UTC(),
	}
	if res.Report != nil {
		e.Battles = len(res.Report.Combat.Events)
	}
	return e, nil
}

// EncodeOrders converts commands to records.
func EncodeOrders(cmds []model.Command) ([]OrderRecord, error) {
	out := make([]OrderRecord, 0, len(cmds))
	for _, c := range cmds {
		kind := intake.OrderKind(c.Order)
		if kind == "unknown" {
			return nil, fmt.Errorf("journal: cannot encode order %T", c.Order)
		}
		body, err := json.Marshal(c.Order)
		if err != nil {
			return nil, fmt.Errorf("journal: encode %s order: %w", kind, err)
		}
		out = append(out, OrderRecord{Empire: c.Empire, Turn: c.Turn, Kind: kind, Body: body})
	}
	return out, nil
}

// DecodeOrders converts records back to commands.
func DecodeOrders(records []OrderRecord) ([]model.Command, error) {
	out := make([]model.Command, 0, len(records))
	for _, r := range records {
		o, err := decodeOrder(r.Kind, r.Body)
		if err != nil {
			return nil, err
		}
		out = append(out, model.Command{Empire: r.Empire, Turn: r.Turn, Order: o})
	}
	return out, nil
}

func decodeOrder(kind string, body []byte) (model.Order, error) {
	switch kind {
	case "waypoints":
		return decodeAs[model.WaypointOrder](kind, body)
	case "production":
		return decodeAs[model.ProductionOrder](kind, body)
	case "research":
		return decodeAs[model.ResearchOrder](kind, body)
	case "design":
		return decodeAs[model.DesignOrder](kind, body)
	case "relation":
		return decodeAs[model.RelationOrder](kind, body)
	case "tactic":
		return decodeAs[model.TacticOrder](kind, body)
	default:
		return nil, fmt.Errorf("journal: unknown order kind %q", kind)
	}
}

func decodeAs[T model.Order](kind string, body []byte) (model.Order, error) {
	var o T
	if err := json.Unmarshal(body, &o); err != nil {
		return nil, fmt.Errorf("journal: decode %s order: %w", kind, err)
	}
	return o, nil
}

// Encode writes e to w through codec c.
func Encode(w io.Writer, c Codec, e *Entry) error {
	cw, err := c.NewWriter(w)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(cw)
	hb, err := json.Marshal(e.Header)
	if err != nil {
		_ = cw.Close()
		return err
	}
	if _, err := bw.Write(append(hb, '\n')); err != nil {
		_ = cw.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(e); err != nil {
		_ = cw.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = cw.Close()
		return err
	}
	return cw.Close()
}

// Decode reads an entry written by Encode.
func Decode(r io.Reader, c Codec) (*Entry, error) {
	cr, err := c.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer cr.Close()
	br := bufio.NewReader(cr)

	line, err := br.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	var h Header
	if err := json.Unmarshal(line, &h); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}
	if h.Version > formatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}

	var e Entry
	if err := gob.NewDecoder(br).Decode(&e); err != nil {
		return nil, fmt.Errorf("gob decode: %w", err)
	}
	return &e, nil
}
