// Package posenc computes the sinusoidal positional encoding table added to token embeddings.
//
// Channels are paired: channels 2k and 2k+1 share the angle
//
//	θ(pos, i) = pos / 10000^(2·⌊i/2⌋ / (dModel-1))
//
// with sin(θ) on the even channel and cos(θ) on the odd one. Notice the divisor dModel-1, and not
// dModel as in the usual transformer formulation: models trained with this table depend on it.
package posenc

import (
	"math"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
)

// MaxTimescale is the base of the geometric progression of wavelengths.
const MaxTimescale = 10000.0

// Encoding is a [SeqLen, DModel] table, flat row-major in Data.
type Encoding struct {
	SeqLen, DModel int
	Data           []float32
}

// Angle returns θ(pos, channel) for the given model dimension.
func Angle(pos, channel, dModel int) float64 {
	exponent := 2 * float64(channel/2) / float64(dModel-1)
	return float64(pos) / math.Pow(MaxTimescale, exponent)
}

// Table computes the positional encoding for positions [0, seqLen) and dModel channels.
// dModel must be at least 2, and seqLen at least 1.
func Table(seqLen, dModel int) (*Encoding, error) {
	if dModel < 2 {
		return nil, errors.Errorf("positional encoding requires dModel >= 2, got %d", dModel)
	}
	if seqLen < 1 {
		return nil, errors.Errorf("positional encoding requires seqLen >= 1, got %d", seqLen)
	}
	e := &Encoding{SeqLen: seqLen, DModel: dModel, Data: make([]float32, seqLen*dModel)}
	for pos := 0; pos < seqLen; pos++ {
		row := e.Data[pos*dModel : (pos+1)*dModel]
		for i := range row {
			theta := Angle(pos, i, dModel)
			if i%2 == 0 {
				row[i] = float32(math.Sin(theta))
			} else {
				row[i] = float32(math.Cos(theta))
			}
		}
	}
	return e, nil
}

// At returns the encoding of channel i at position pos.
func (e *Encoding) At(pos, i int) float32 {
	return e.Data[pos*e.DModel+i]
}

// Row returns a copy of the encoding of position pos.
func (e *Encoding) Row(pos int) []float32 {
	return append([]float32(nil), e.Data[pos*e.DModel:(pos+1)*e.DModel]...)
}

// Broadcast returns a new flat [batch, SeqLen, DModel] array with the table repeated for every example.
func (e *Encoding) Broadcast(batch int) []float32 {
	out := make([]float32, 0, batch*len(e.Data))
	for b := 0; b < batch; b++ {
		out = append(out, e.Data...)
	}
	return out
}

type cacheKey struct{ seqLen, dModel int }

// DefaultCacheSize is the number of tables kept by the package level cache used by ForIDs.
const DefaultCacheSize = 16

// Cache memoizes tables by (seqLen, dModel), keeping the most recently used ones. It is safe for
// concurrent use.
//
// Tables returned are shared: they must not be modified.
type Cache struct {
	mu     sync.Mutex
	tables *lru.Cache
}

// NewCache returns an empty Cache holding at most size tables.
func NewCache(size int) (*Cache, error) {
	tables, err := lru.New(size)
	if err != nil {
		return nil, errors.Wrapf(err, "creating positional encoding cache of size %d", size)
	}
	return &Cache{tables: tables}, nil
}

// Get returns the table for (seqLen, dModel), computing it on first use.
func (c *Cache) Get(seqLen, dModel int) (*Encoding, error) {
	key := cacheKey{seqLen, dModel}
	if e, found := c.tables.Get(key); found {
		return e.(*Encoding), nil
	}
	// Serialize misses, so concurrent callers compute each table once.
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, found := c.tables.Get(key); found {
		return e.(*Encoding), nil
	}
	e, err := Table(seqLen, dModel)
	if err != nil {
		return nil, err
	}
	c.tables.Add(key, e)
	return e, nil
}

// Len returns the number of tables cached.
func (c *Cache) Len() int {
	return c.tables.Len()
}

var defaultCache = func() *Cache {
	c, err := NewCache(DefaultCacheSize)
	if err != nil {
		panic(err)
	}
	return c
}()

// ForIDs returns the [batch, seq_len, dModel] positional encoding for a batch of ids of shape
// [batch, seq_len]. Only the shape of ids is used: every example gets the same table.
func ForIDs(ids [][]int, dModel int) ([][][]float32, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	seqLen := len(ids[0])
	for b, seq := range ids {
		if len(seq) != seqLen {
			return nil, errors.Errorf("ids must be of shape [batch, seq_len]: sequence #%d has length %d, sequence #0 has %d",
				b, len(seq), seqLen)
		}
	}
	table, err := defaultCache.Get(seqLen, dModel)
	if err != nil {
		return nil, err
	}
	out := make([][][]float32, len(ids))
	for b := range out {
		out[b] = make([][]float32, seqLen)
		for pos := range out[b] {
			out[b][pos] = table.Row(pos)
		}
	}
	return out, nil
}
