// Package rendercache stores rendered HTML so repeated renders of the same
// input under the same rule set revision skip the transformation.
package rendercache

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/CTAG07/bbmark/pkg/bbcode"
	"github.com/zeebo/blake3"
)

// Cache is a key/value store for rendered output. Implementations treat every
// backend failure as a miss; a cache must never fail a render.
type Cache interface {
	// Get returns the cached output for key and whether it was found.
	Get(ctx context.Context, key string) (string, bool)
	// Set stores output under key.
	Set(ctx context.Context, key, output string)
}

// KeyParams are the inputs that determine a render's output.
type KeyParams struct {
	RuleSet  string
	Revision int
	// Rules is the RulesDigest of the compiled table. A set that is deleted
	// and created again restarts at revision 1, so the name and revision
	// alone do not identify its rules.
	Rules           string
	Extras          []string
	SkipVerbatim    bool
	VerbatimOpen    string
	VerbatimClose   string
	EscapeInput     bool
	MaxReplacements int
}

// Key returns the hex BLAKE3 digest of p and text. Every field is length
// prefixed, so no two distinct inputs share an encoding.
func Key(p KeyParams, text string) string {
	var buf []byte
	field := func(s string) {
		buf = binary.AppendUvarint(buf, uint64(len(s)))
		buf = append(buf, s...)
	}
	field(p.RuleSet)
	field(strconv.Itoa(p.Revision))
	field(p.Rules)
	field(strings.Join(p.Extras, ","))
	field(strconv.FormatBool(p.SkipVerbatim))
	field(p.VerbatimOpen)
	field(p.VerbatimClose)
	field(strconv.FormatBool(p.EscapeInput))
	field(strconv.Itoa(p.MaxReplacements))
	field(text)

	sum := blake3.Sum256(buf)
	return hex.EncodeToString(sum[:])
}

// RulesDigest returns the hex BLAKE3 digest of specs in table order.
func RulesDigest(specs []bbcode.RuleSpec) string {
	var buf []byte
	for _, spec := range specs {
		for _, s := range []string{spec.Name, spec.Pattern, spec.Template} {
			buf = binary.AppendUvarint(buf, uint64(len(s)))
			buf = append(buf, s...)
		}
	}
	sum := blake3.Sum256(buf)
	return hex.EncodeToString(sum[:])
}

// NopCache never stores anything.
type NopCache struct{}

func (NopCache) Get(context.Context, string) (string, bool) { return "", false }

func (NopCache) Set(context.Context, string, string) {}
