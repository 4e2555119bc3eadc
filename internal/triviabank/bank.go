// Package triviabank implements the external question-bank collaborator
// the spec treats as out of scope content (spec §1: "the question/text
// bank content"); it satisfies internal/activity.TriviaBank. Loading is
// grounded on items/game.go's go:embed-plus-sync.Once game data loader,
// generalized from pet/class/background JSON to a difficulty-keyed
// question list.
package triviabank

import (
	_ "embed"
	"encoding/json"
	"math/rand"
	"sync"

	"crab.casa/activities/internal/apierr"
	"crab.casa/activities/internal/session"
)

//go:embed data/questions.json
var rawQuestions []byte

// Bank is the uniform-random-without-replacement question source (spec
// §4.F.2).
type Bank struct {
	once sync.Once
	err  error

	mu  sync.Mutex
	byDifficulty map[string][]session.Question
}

// New builds a Bank; the embedded JSON is parsed lazily on first Pick so a
// malformed build-time asset surfaces as a normal runtime error rather
// than a package-init panic.
func New() *Bank {
	return &Bank{}
}

func (b *Bank) ensureLoaded() error {
	b.once.Do(func() {
		var raw map[string][]session.Question
		if err := json.Unmarshal(rawQuestions, &raw); err != nil {
			b.err = err
			return
		}
		b.byDifficulty = raw
	})
	return b.err
}

// Pick returns count questions from difficulty, uniformly at random and
// without replacement across a session; excludeIDs additionally filters
// out questions already used this session (allowing a caller to draw
// across multiple Pick calls without repeats). "mixed" difficulty draws
// from the union of every difficulty tier.
func (b *Bank) Pick(difficulty string, count int, excludeIDs []string) ([]session.Question, error) {
	if err := b.ensureLoaded(); err != nil {
		return nil, apierr.Newf(apierr.CodeInternalError, "trivia bank failed to load: "+err.Error())
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	pool := b.poolFor(difficulty)
	excluded := make(map[string]struct{}, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = struct{}{}
	}

	candidates := make([]session.Question, 0, len(pool))
	for _, q := range pool {
		if _, skip := excluded[q.ID]; !skip {
			candidates = append(candidates, q)
		}
	}
	rand.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })

	if count > len(candidates) {
		count = len(candidates)
	}
	return candidates[:count], nil
}

func (b *Bank) poolFor(difficulty string) []session.Question {
	if difficulty != "mixed" {
		return b.byDifficulty[difficulty]
	}
	var all []session.Question
	for _, qs := range b.byDifficulty {
		all = append(all, qs...)
	}
	return all
}
