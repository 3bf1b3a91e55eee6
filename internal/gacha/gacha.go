// Package gacha implements the ten-pull emote draw.
//
// Nine pulls are sampled from a fixed distribution. The tenth pull is forced
// to Okayge when none of the first nine produced one, which guarantees at
// least one Okayge per result while keeping the first nine pulls unbiased.
package gacha

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
)

type Outcome int

const (
	Gayge Outcome = iota
	Okayge
	KEKW
)

// Outcomes lists every category in classification order.
var Outcomes = []Outcome{Gayge, Okayge, KEKW}

func (o Outcome) String() string {
	switch o {
	case Gayge:
		return "Gayge"
	case Okayge:
		return "Okayge"
	case KEKW:
		return "KEKW"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

const (
	GaygeChance  = 0.05
	OkaygeChance = 0.10
	KEKWChance   = 1 - GaygeChance - OkaygeChance

	// Pulls is the length of every Result.
	Pulls = 10
)

// Rand is the uniform source a draw samples from. *rand.Rand satisfies it.
type Rand interface {
	Float64() float64
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

// Result is one ten-pull, in generation order.
type Result [Pulls]Outcome

// Classify maps u in [0,1) onto an outcome by cumulative threshold.
func Classify(u float64) Outcome {
	switch {
	case u < GaygeChance:
		return Gayge
	case u < GaygeChance+OkaygeChance:
		return Okayge
	default:
		return KEKW
	}
}

// Draw produces a Result from r. It never fails.
func Draw(r Rand) Result {
	var res Result
	hasOkayge := false

	for i := 0; i < Pulls-1; i++ {
		res[i] = Classify(r.Float64())
		if res[i] == Okayge {
			hasOkayge = true
		}
	}

	if !hasOkayge {
		res[Pulls-1] = Okayge
	} else {
		res[Pulls-1] = Classify(r.Float64())
	}
	return res
}

// DrawDefault draws from the process-wide generator.
func DrawDefault() Result {
	return Draw(globalRand{})
}

func (r Result) Count(o Outcome) int {
	n := 0
	for _, v := range r {
		if v == o {
			n++
		}
	}
	return n
}

// ErrMissingEmotes matches any *MissingEmotesError.
var ErrMissingEmotes = errors.New("required emotes are missing")

type MissingEmotesError struct {
	Missing []Outcome
}

func (e *MissingEmotesError) Error() string {
	names := make([]string, len(e.Missing))
	for i, o := range e.Missing {
		names[i] = o.String()
	}
	return fmt.Sprintf("%s: %s", ErrMissingEmotes, strings.Join(names, ", "))
}

func (e *MissingEmotesError) Is(target error) bool {
	return target == ErrMissingEmotes
}

// Emotes maps each outcome to the symbol rendered for it.
type Emotes map[Outcome]string

// LookupEmotes resolves a symbol for every outcome by its name. Rendering
// must not start unless all of them are present.
func LookupEmotes(lookup func(name string) (string, bool)) (Emotes, error) {
	emotes := make(Emotes, len(Outcomes))
	var missing []Outcome
	for _, o := range Outcomes {
		sym, ok := lookup(o.String())
		if !ok || sym == "" {
			missing = append(missing, o)
			continue
		}
		emotes[o] = sym
	}
	if len(missing) > 0 {
		return nil, &MissingEmotesError{Missing: missing}
	}
	return emotes, nil
}

func (r Result) Render(e Emotes) string {
	syms := make([]string, len(r))
	for i, o := range r {
		syms[i] = e[o]
	}
	return "🎲 Gacha result:\n" + strings.Join(syms, " ")
}
