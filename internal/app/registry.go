package app

import (
	"math/rand"
	"sort"

	"brocode-session-service/internal/domain"
)

// Registry holds the ordered question progress records for one session.
// Updates replace the affected record rather than mutating it in place, so
// snapshots handed out earlier stay stable.
type Registry struct {
	records []domain.Submission
	byID    map[string]int
}

// NewRegistry builds the presentation order from the raw question list:
// questions are grouped by tier (easy, medium, hard), ordered within each
// tier either stably by question code or by a Fisher-Yates shuffle when rnd
// is non-nil, then concatenated and assigned ordinals. Duplicate question
// identifiers are dropped, keeping the first occurrence.
func NewRegistry(questions []domain.Question, rnd *rand.Rand) *Registry {
	seen := make(map[string]struct{}, len(questions))
	tiers := make(map[domain.Tier][]domain.Question)
	for _, q := range questions {
		if _, ok := seen[q.ID]; ok {
			continue
		}
		seen[q.ID] = struct{}{}
		tier := domain.TierOf(q.Code)
		tiers[tier] = append(tiers[tier], q)
	}

	r := &Registry{byID: make(map[string]int, len(seen))}
	for _, tier := range []domain.Tier{domain.TierEasy, domain.TierMedium, domain.TierHard, domain.TierUnknown} {
		group := tiers[tier]
		if rnd != nil {
			for i := len(group) - 1; i > 0; i-- {
				j := rnd.Intn(i + 1)
				group[i], group[j] = group[j], group[i]
			}
		} else {
			sort.SliceStable(group, func(i, j int) bool { return group[i].Code < group[j].Code })
		}
		for _, q := range group {
			ordinal := len(r.records)
			r.records = append(r.records, domain.Submission{
				QuestionID: q.ID,
				Code:       q.Code,
				Ordinal:    ordinal,
				Status:     domain.StatusNotAttempted,
				LastResult: domain.ResultNone,
			})
			r.byID[q.ID] = ordinal
		}
	}
	return r
}

// Len returns the number of records.
func (r *Registry) Len() int {
	return len(r.records)
}

// ByOrdinal returns the record at the given presentation position.
func (r *Registry) ByOrdinal(ordinal int) (domain.Submission, error) {
	if ordinal < 0 || ordinal >= len(r.records) {
		return domain.Submission{}, domain.ErrOrdinalOutOfRange
	}
	return r.records[ordinal], nil
}

// ByID returns the record for a question identifier.
func (r *Registry) ByID(questionID string) (domain.Submission, error) {
	idx, ok := r.byID[questionID]
	if !ok {
		return domain.Submission{}, domain.ErrQuestionNotFound
	}
	return r.records[idx], nil
}

// Apply replaces exactly one record with the result of mutate applied to a
// copy of it, leaving every other record untouched.
func (r *Registry) Apply(questionID string, mutate func(domain.Submission) domain.Submission) (domain.Submission, error) {
	idx, ok := r.byID[questionID]
	if !ok {
		return domain.Submission{}, domain.ErrQuestionNotFound
	}
	updated := mutate(r.records[idx])
	// Identity and position are not the caller's to change.
	updated.QuestionID = r.records[idx].QuestionID
	updated.Code = r.records[idx].Code
	updated.Ordinal = r.records[idx].Ordinal
	r.records[idx] = updated
	return updated, nil
}

// Reconcile overwrites local records from server-held submission state.
// Records with no matching server submission keep their initialized defaults.
// Applying the same snapshot twice has the same effect as applying it once.
func (r *Registry) Reconcile(submissions []domain.ServerSubmission) {
	for _, sub := range submissions {
		idx, ok := r.byID[sub.QuestionID]
		if !ok {
			continue
		}
		rec := r.records[idx]
		rec.Status = sub.Status
		if !rec.Status.Valid() {
			rec.Status = domain.StatusNotAttempted
		}
		if sub.CodeAnswer != "" {
			rec.Answer = sub.CodeAnswer
		}
		rec.IsCorrect = sub.IsCorrect
		rec.IsLocked = sub.IsLocked
		rec.Attempts = sub.Attempts
		rec.LastResult = sub.LastResult
		if rec.LastResult == "" {
			rec.LastResult = domain.ResultNone
		}
		r.records[idx] = rec
	}
}

// Snapshot returns a copy of all records in presentation order.
func (r *Registry) Snapshot() []domain.Submission {
	out := make([]domain.Submission, len(r.records))
	copy(out, r.records)
	return out
}

// Counts aggregates the three semantic status counts over all records.
func (r *Registry) Counts() (saved, flagged, unattempted int) {
	for _, rec := range r.records {
		switch rec.Status {
		case domain.StatusSaved:
			saved++
		case domain.StatusFlagged:
			flagged++
		case domain.StatusNotAttempted:
			unattempted++
		}
	}
	return saved, flagged, unattempted
}
