// Package scoring holds the grading and weighting arithmetic for quizzes and task submissions.
package scoring

import (
	"fmt"
	"math"

	"github.com/noah-isme/lti-assignments-api/internal/models"
	appErrors "github.com/noah-isme/lti-assignments-api/pkg/errors"
)

// DefaultWeight is the weight of a task when the assignment is not group-weighted.
const DefaultWeight = 100.0

// Total is the difficulty total of a quiz. Groups is set only for group-weighted quizzes.
type Total struct {
	Flat   float64
	Groups map[string]float64
}

// For returns the total that applies to tasks of the given group key.
func (t Total) For(groupKey string) float64 {
	if t.Groups != nil {
		return t.Groups[groupKey]
	}
	return t.Flat
}

// DifficultyTotal sums the difficulty of every task an attempt holds. Definite quizzes sum the
// per-task difficulties; random quizzes weigh each tier count by its level. A group-keyed size
// produces one total per group when the quiz is weighted and a single flat total otherwise.
func DifficultyTotal(kind models.AssignmentKind, size models.SizeSpec, difficulties []int, weighted bool) Total {
	if kind != models.AssignmentKindQuizRandom {
		sum := 0
		for _, d := range difficulties {
			sum += d
		}
		return Total{Flat: float64(sum)}
	}
	switch {
	case size.Tiers != nil:
		return Total{Flat: float64(tierSum(*size.Tiers))}
	case weighted:
		groups := make(map[string]float64, len(size.Groups))
		for key, tier := range size.Groups {
			groups[key] = float64(tierSum(tier))
		}
		return Total{Groups: groups}
	default:
		flat := 0
		for _, tier := range size.Groups {
			flat += tierSum(tier)
		}
		return Total{Flat: float64(flat)}
	}
}

func tierSum(t models.Tier) int {
	return t[0]*1 + t[1]*2 + t[2]*3
}

// Fraction is the weighted share of the total score a task of the given difficulty carries.
func Fraction(weight, totalDifficulty float64, difficulty int) float64 {
	if totalDifficulty == 0 {
		return 0
	}
	return (weight / totalDifficulty) * float64(difficulty)
}

// GradeTask scores one answer. Choice and name tasks are all-or-nothing; combine-terms tasks earn
// fraction/len(solution) for each submitted pair that exactly matches a solution pair.
func GradeTask(taskType models.TaskType, answer, solution models.AnswerValue, fraction float64) float64 {
	if !answer.IsSet() {
		return 0
	}
	switch taskType {
	case models.TaskTypeCombineTerms:
		if len(solution.Pairs) == 0 {
			return 0
		}
		correct := make(map[models.TermPair]bool, len(solution.Pairs))
		for _, pair := range solution.Pairs {
			correct[pair] = true
		}
		unit := fraction / float64(len(solution.Pairs))
		score := 0.0
		for _, pair := range answer.Pairs {
			if correct[pair] {
				score += unit
			}
		}
		return score
	default:
		if answer.Equal(solution) {
			return fraction
		}
		return 0
	}
}

// SolutionLookup resolves the effective solution of a pool task by id.
type SolutionLookup map[int64]models.AnswerValue

// QuizResult is the outcome of grading a quiz snapshot.
type QuizResult struct {
	Tasks    models.QuizTasks
	RawScore float64
	LMSScore float64
}

// GradeQuiz scores every answered task of the snapshot against the pool solutions. Unanswered
// tasks stay in the list without a score. A task missing from the pool aborts grading.
func GradeQuiz(tasks models.QuizTasks, solutions SolutionLookup, points float64) (QuizResult, error) {
	graded := make(models.QuizTasks, len(tasks))
	copy(graded, tasks)

	raw := 0.0
	for i := range graded {
		task := &graded[i]
		if !task.Answer.IsSet() {
			continue
		}
		solution, ok := solutions[task.Task.ID]
		if !ok {
			return QuizResult{}, appErrors.Clone(appErrors.ErrIntegrity, fmt.Sprintf("task %d is not part of the assignment", task.Task.ID))
		}
		score := GradeTask(task.Task.Type, task.Answer, solution, task.Fraction)
		task.Score = &score
		raw += score
	}
	return QuizResult{Tasks: graded, RawScore: raw, LMSScore: QuizLMSScore(raw, points)}, nil
}

// QuizLMSScore scales a raw quiz score onto the LMS points.
func QuizLMSScore(raw, points float64) float64 {
	return Round2((raw / 100) * points)
}

// TaskSubmissionLMSScore scales summed evaluator scores onto the LMS points.
func TaskSubmissionLMSScore(raw, maxTaskScore, points float64, size int) float64 {
	if maxTaskScore == 0 || size == 0 {
		return 0
	}
	relative := raw / maxTaskScore
	return Round2(relative * (points / float64(size)))
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
