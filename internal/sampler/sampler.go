// Package sampler builds the frozen, shuffled task snapshot of a quiz attempt.
package sampler

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/noah-isme/lti-assignments-api/internal/models"
	appErrors "github.com/noah-isme/lti-assignments-api/pkg/errors"
)

// Sampler draws stratified task selections. It is safe for concurrent use.
type Sampler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a sampler drawing from src, or from a time-seeded source when src is nil.
func New(src rand.Source) *Sampler {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &Sampler{rng: rand.New(src)}
}

// Result is a materialised quiz snapshot.
type Result struct {
	Tasks models.QuizTasks
	// Fallbacks counts self-authored tasks served because a tier had nothing else left.
	Fallbacks int
}

// Shuffle applies an unbiased Fisher-Yates permutation.
func (s *Sampler) Shuffle(n int, swap func(i, j int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng.Shuffle(n, swap)
}

// Materialize selects the attempt's tasks from the pool and freezes them into a snapshot with
// shuffled options and no authorship data. Definite quizzes take the whole pool in order.
func (s *Sampler) Materialize(kind models.AssignmentKind, size models.SizeSpec, userID string, pool []models.PoolTask) (Result, error) {
	selected := pool
	fallbacks := 0
	if kind == models.AssignmentKindQuizRandom {
		var err error
		selected, fallbacks, err = s.Select(size, userID, pool)
		if err != nil {
			return Result{}, err
		}
	}
	if len(selected) == 0 {
		return Result{}, appErrors.Clone(appErrors.ErrIntegrity, "could not find any tasks for the assignment")
	}

	tasks := make(models.QuizTasks, 0, len(selected))
	for _, p := range selected {
		tasks = append(tasks, models.QuizTask{
			Difficulty: p.Difficulty,
			Fraction:   p.Fraction,
			Group:      p.GroupID,
			Task: models.QuizTaskContent{
				ID:          p.TaskID,
				Type:        p.Type,
				Title:       p.Content.Title,
				Description: p.Content.Description,
				MediaID:     p.Content.MediaID,
				Options:     s.shuffledOptions(p.Type, p.Content),
			},
		})
	}
	return Result{Tasks: tasks, Fallbacks: fallbacks}, nil
}

// Select draws the counts requested by size from the pool, preferring tasks not authored by userID.
// It returns the selection in random order and the number of self-authored fallbacks.
func (s *Sampler) Select(size models.SizeSpec, userID string, pool []models.PoolTask) ([]models.PoolTask, int, error) {
	var tiers [3][]models.PoolTask
	for _, p := range pool {
		if p.Difficulty < 1 || p.Difficulty > 3 {
			continue
		}
		tiers[p.Difficulty-1] = append(tiers[p.Difficulty-1], p)
	}
	for i := range tiers {
		tier := tiers[i]
		s.Shuffle(len(tier), func(a, b int) { tier[a], tier[b] = tier[b], tier[a] })
	}

	var (
		selected  []models.PoolTask
		fallbacks int
	)
	switch {
	case size.Tiers != nil:
		picked, fb, err := pickTiers(*size.Tiers, tiers, userID, "")
		if err != nil {
			return nil, 0, err
		}
		selected, fallbacks = picked, fb
	case size.Groups != nil:
		for _, key := range size.GroupKeys() {
			var grouped [3][]models.PoolTask
			for i, tier := range tiers {
				for _, p := range tier {
					if p.GroupKey() == key {
						grouped[i] = append(grouped[i], p)
					}
				}
			}
			picked, fb, err := pickTiers(size.Groups[key], grouped, userID, key)
			if err != nil {
				return nil, 0, err
			}
			selected = append(selected, picked...)
			fallbacks += fb
		}
	default:
		return nil, 0, appErrors.Clone(appErrors.ErrValidation, "random quiz requires a tier or group size")
	}

	s.Shuffle(len(selected), func(a, b int) { selected[a], selected[b] = selected[b], selected[a] })
	return selected, fallbacks, nil
}

func pickTiers(counts models.Tier, tiers [3][]models.PoolTask, userID, group string) ([]models.PoolTask, int, error) {
	var (
		selected  []models.PoolTask
		fallbacks int
	)
	for level, want := range counts {
		candidates := tiers[level]
		used := make(map[int64]bool, want)
		for n := 0; n < want; n++ {
			idx := firstUnused(candidates, used, func(p models.PoolTask) bool { return p.CreatedBy != userID })
			if idx < 0 {
				idx = firstUnused(candidates, used, nil)
				if idx < 0 {
					return nil, 0, insufficientPool(group, level+1, want, n)
				}
				fallbacks++
			}
			used[candidates[idx].TaskID] = true
			selected = append(selected, candidates[idx])
		}
	}
	return selected, fallbacks, nil
}

func firstUnused(candidates []models.PoolTask, used map[int64]bool, accept func(models.PoolTask) bool) int {
	for i, p := range candidates {
		if used[p.TaskID] {
			continue
		}
		if accept == nil || accept(p) {
			return i
		}
	}
	return -1
}

func insufficientPool(group string, difficulty, want, have int) error {
	msg := fmt.Sprintf("insufficient pool: difficulty %d needs %d tasks, found %d", difficulty, want, have)
	if group != "" {
		msg = fmt.Sprintf("insufficient pool: group %s difficulty %d needs %d tasks, found %d", group, difficulty, want, have)
	}
	return appErrors.Clone(appErrors.ErrInsufficientPool, msg)
}

func (s *Sampler) shuffledOptions(taskType models.TaskType, content models.TaskContent) models.Options {
	opts := content.Options
	switch taskType {
	case models.TaskTypeCombineTerms:
		columns := opts.Columns
		if columns == nil {
			columns = OrganizeTerms(opts.Terms, content.Solution.Pairs)
		}
		out := make([][]models.Term, len(columns))
		for i, column := range columns {
			col := append([]models.Term(nil), column...)
			s.Shuffle(len(col), func(a, b int) { col[a], col[b] = col[b], col[a] })
			out[i] = col
		}
		return models.Options{Columns: out}
	case models.TaskTypeMultipleChoice:
		choices := append([]models.ChoiceOption(nil), opts.Choices...)
		s.Shuffle(len(choices), func(a, b int) { choices[a], choices[b] = choices[b], choices[a] })
		return models.Options{Choices: choices}
	default:
		images := append([]string(nil), opts.Images...)
		s.Shuffle(len(images), func(a, b int) { images[a], images[b] = images[b], images[a] })
		return models.Options{Images: images}
	}
}

// OrganizeTerms splits combine-terms options into a left column and a right column following the
// solution pairs.
func OrganizeTerms(terms []models.Term, solution []models.TermPair) [][]models.Term {
	byID := make(map[int]models.Term, len(terms))
	for _, term := range terms {
		byID[term.ID] = term
	}
	left := make([]models.Term, 0, len(solution))
	right := make([]models.Term, 0, len(solution))
	for _, pair := range solution {
		if term, ok := byID[pair[0]]; ok {
			left = append(left, term)
		}
		if term, ok := byID[pair[1]]; ok {
			right = append(right, term)
		}
	}
	return [][]models.Term{left, right}
}
