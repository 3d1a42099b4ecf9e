package roomcode

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"
)

// Room codes look like MAPLE-OTTER-42: two dictionary words and a two-digit
// suffix. Codes are case-insensitive on input and uppercase canonically.

var first = []string{
	"AMBER", "BIRCH", "CEDAR", "CORAL", "DELTA", "EMBER", "FROST", "GOLDEN",
	"HAZEL", "INDIGO", "IVORY", "JADE", "LUNAR", "MAPLE", "MINTY", "NOBLE",
	"OLIVE", "PEBBLE", "QUIET", "RAPID", "RUSTY", "SILVER", "SUNNY", "TIDAL",
	"UMBER", "VIVID", "WILLOW", "ZESTY",
}

var second = []string{
	"BADGER", "BISON", "CONDOR", "CRANE", "DINGO", "EGRET", "FALCON", "GECKO",
	"HERON", "IBEX", "JAGUAR", "KOALA", "LEMUR", "MARTEN", "NEWT", "OTTER",
	"PANDA", "QUAIL", "RAVEN", "SHREW", "TAPIR", "URCHIN", "VIPER", "WOMBAT",
	"YAK", "ZEBRA",
}

var pattern = regexp.MustCompile(`^[A-Z]+-[A-Z]+-\d{2}$`)

// Generator produces candidate room codes from a random source. It holds no
// other state; collision checking is the caller's job.
type Generator struct {
	rnd *rand.Rand
}

func NewGenerator(seed int64) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

func (g *Generator) Generate() string {
	w1 := first[g.rnd.Intn(len(first))]
	w2 := second[g.rnd.Intn(len(second))]
	return fmt.Sprintf("%s-%s-%02d", w1, w2, g.rnd.Intn(100))
}

// Normalize canonicalizes user-entered codes for lookup.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Valid reports whether code is in canonical WORD-WORD-NN form.
func Valid(code string) bool {
	return pattern.MatchString(code)
}
