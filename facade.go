package gamebundle

import (
	"sync"

	"github.com/distr1/gamebundle/big"
	"github.com/distr1/gamebundle/bnd2"
	"golang.org/x/xerrors"
)

// Kind identifies which concrete container a Bundle was loaded as.
type Kind int

const (
	KindUnknown Kind = iota
	KindBig
	KindBnd2
)

// Bundle is a magic-dispatched union over the two supported container
// kinds, giving callers a single type to hold regardless of which format a
// file turned out to be.
type Bundle struct {
	mu   sync.Mutex
	kind Kind
	big  *big.Archive
	bnd2 *bnd2.Archive
}

// Open inspects data's leading bytes and loads it as whichever container
// kind matches. BIG magics are "BIGF"/"BIG4"; BND2 magics are "bnd2"/"bndl".
func Open(data []byte) (*Bundle, error) {
	if len(data) < 4 {
		return nil, xerrors.New("gamebundle: file too short to contain a recognizable magic")
	}
	switch string(data[0:4]) {
	case string(big.VariantBIGF), string(big.VariantBIG4):
		a, err := big.Load(data)
		if err != nil {
			return nil, xerrors.Errorf("gamebundle: %w", err)
		}
		return &Bundle{kind: KindBig, big: a}, nil
	case "bnd2", "bndl":
		a, err := bnd2.Load(data)
		if err != nil {
			return nil, xerrors.Errorf("gamebundle: %w", err)
		}
		return &Bundle{kind: KindBnd2, bnd2: a}, nil
	default:
		return nil, xerrors.Errorf("gamebundle: unrecognized magic %q", data[0:4])
	}
}

// Kind reports which concrete container this Bundle wraps.
func (b *Bundle) Kind() Kind {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.kind
}

// Big returns the underlying *big.Archive, or nil if this Bundle is not a
// BIG container.
func (b *Bundle) Big() *big.Archive {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.big
}

// Bnd2 returns the underlying *bnd2.Archive, or nil if this Bundle is not
// a BND2 container.
func (b *Bundle) Bnd2() *bnd2.Archive {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bnd2
}

// ListEntries returns every entry key in the underlying container: sorted
// paths for BIG, sorted file IDs (stringified as 8-digit lowercase hex) for
// BND2.
func (b *Bundle) ListEntries() []string {
	b.mu.Lock()
	kind, bigArchive, bndArchive := b.kind, b.big, b.bnd2
	b.mu.Unlock()

	switch kind {
	case KindBig:
		return bigArchive.ListEntries()
	case KindBnd2:
		ids := bndArchive.ListEntries()
		out := make([]string, len(ids))
		for i, id := range ids {
			out[i] = hexFileID(id)
		}
		return out
	default:
		return nil
	}
}

func hexFileID(id uint32) string {
	const hex = "0123456789abcdef"
	buf := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		buf[i] = hex[id&0xF]
		id >>= 4
	}
	return string(buf)
}
