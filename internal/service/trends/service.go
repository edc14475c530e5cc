// Package trends computes day-bucketed, demographically filtered summaries
// over measurement records.
package trends

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/diarisk/health-api/internal/model"
	"github.com/diarisk/health-api/internal/repository"
	"github.com/diarisk/health-api/pkg/shield"
)

// ErrWindowTooLarge is returned when the requested range touches more owners
// than the configured working-set bound.
var ErrWindowTooLarge = errors.New("aggregation window touches too many owners")

type Service struct {
	measurements repository.MeasurementRepository
	users        repository.UserRepository
	shaper       *shield.Shaper
	maxOwners    int
	logger       zerolog.Logger
}

func NewService(
	measurements repository.MeasurementRepository,
	users repository.UserRepository,
	shaper *shield.Shaper,
	maxOwners int,
	logger zerolog.Logger,
) *Service {
	if maxOwners <= 0 {
		maxOwners = 5000
	}
	return &Service{
		measurements: measurements,
		users:        users,
		shaper:       shaper,
		maxOwners:    maxOwners,
		logger:       logger,
	}
}

// Trends aggregates admitted measurements into day buckets sorted ascending
// by date. An empty admitted set yields an empty slice.
func (s *Service) Trends(ctx context.Context, filter model.AggregateFilter) ([]*model.TrendBucket, error) {
	admitted, err := s.admitOwners(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(admitted) == 0 {
		return []*model.TrendBucket{}, nil
	}

	buckets := make(map[string]*accumulator)
	r := model.DateRange{From: filter.From, To: filter.To}
	err = s.measurements.ScanByRange(ctx, r, func(m *model.Measurement) error {
		if _, ok := admitted[m.OwnerID]; !ok {
			return nil
		}
		view, ok := s.shaper.OpenMeasurement(m)
		if !ok {
			return nil
		}
		if !finiteBiomarkers(view) {
			return nil
		}
		day := m.CreatedAt.UTC().Format("2006-01-02")
		acc, exists := buckets[day]
		if !exists {
			acc = &accumulator{}
			buckets[day] = acc
		}
		acc.add(view)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan measurements: %w", err)
	}

	out := make([]*model.TrendBucket, 0, len(buckets))
	for day, acc := range buckets {
		out = append(out, acc.bucket(day))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// RiskTrends is the risk-only projection of Trends.
func (s *Service) RiskTrends(ctx context.Context, filter model.AggregateFilter) ([]*model.RiskBucket, error) {
	full, err := s.Trends(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]*model.RiskBucket, 0, len(full))
	for _, b := range full {
		out = append(out, &model.RiskBucket{
			Date:             b.Date,
			Count:            b.Count,
			RiskDistribution: b.RiskDistribution,
		})
	}
	return out, nil
}

// admitOwners resolves the distinct owners in the window and applies the
// demographic filters against their decoded protected fields. Owners whose
// payload fails to decode are dropped; owners without a birthdate are dropped
// only when an age filter is active.
func (s *Service) admitOwners(ctx context.Context, filter model.AggregateFilter) (map[uuid.UUID]struct{}, error) {
	r := model.DateRange{From: filter.From, To: filter.To}
	ownerIDs, err := s.measurements.DistinctOwners(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve owners: %w", err)
	}
	if len(ownerIDs) > s.maxOwners {
		return nil, ErrWindowTooLarge
	}
	if len(ownerIDs) == 0 {
		return map[uuid.UUID]struct{}{}, nil
	}

	owners, err := s.users.GetByIDs(ctx, ownerIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load owners: %w", err)
	}

	ageFiltered := filter.AgeBucket != "" && filter.AgeBucket != model.AgeBucketAll
	now := time.Now().UTC()

	admitted := make(map[uuid.UUID]struct{}, len(owners))
	for _, owner := range owners {
		sensitive, err := s.shaper.UserSensitive(owner)
		if err != nil {
			s.logger.Warn().Str("owner_id", owner.ID.String()).Msg("dropping owner with unreadable demographics")
			continue
		}
		if !matchesAll(filter.Gender, sensitive.Gender) {
			continue
		}
		if !matchesAll(filter.Position, sensitive.Position) {
			continue
		}
		if ageFiltered {
			if sensitive.Birthdate == "" {
				continue
			}
			age, err := shield.DeriveAge(sensitive.Birthdate, now)
			if err != nil {
				continue
			}
			if !inAgeBucket(age, filter.AgeBucket) {
				continue
			}
		}
		admitted[owner.ID] = struct{}{}
	}
	return admitted, nil
}

func matchesAll(want, got string) bool {
	if want == "" || strings.EqualFold(want, "all") {
		return true
	}
	return strings.EqualFold(want, got)
}

func inAgeBucket(age int, bucket string) bool {
	switch bucket {
	case model.AgeBucketUnder30:
		return age < 30
	case model.AgeBucket30To50:
		return age >= 30 && age <= 50
	case model.AgeBucketOver50:
		return age > 50
	default:
		return true
	}
}

func finiteBiomarkers(v *model.MeasurementView) bool {
	for _, f := range []*float64{v.Pregnancies, v.Glucose, v.BloodPressure, v.Insulin, v.BMI} {
		if f == nil {
			return false
		}
		if math.IsNaN(*f) || math.IsInf(*f, 0) {
			return false
		}
	}
	return true
}

// accumulator collects per-day sums before the final rounding pass.
type accumulator struct {
	count          int
	pregnanciesSum float64
	glucoseSum     float64
	pressureSum    float64
	insulinSum     float64
	bmiSum         float64
	probabilitySum float64
	scored         int
	low            int
	medium         int
	high           int
}

func (a *accumulator) add(v *model.MeasurementView) {
	a.count++
	a.pregnanciesSum += *v.Pregnancies
	a.glucoseSum += *v.Glucose
	a.pressureSum += *v.BloodPressure
	a.insulinSum += *v.Insulin
	a.bmiSum += *v.BMI
	if v.Probability != nil {
		a.probabilitySum += *v.Probability
		a.scored++
	}
	if v.RiskLevel != nil {
		switch classifyRisk(*v.RiskLevel) {
		case "low":
			a.low++
		case "medium":
			a.medium++
		case "high":
			a.high++
		}
	}
}

func (a *accumulator) bucket(day string) *model.TrendBucket {
	n := float64(a.count)
	meanProbability := 0.0
	if a.scored > 0 {
		meanProbability = round2(a.probabilitySum / float64(a.scored))
	}
	return &model.TrendBucket{
		Date:              day,
		Count:             a.count,
		MeanPregnancies:   round1(a.pregnanciesSum / n),
		MeanGlucose:       round1(a.glucoseSum / n),
		MeanBloodPressure: round1(a.pressureSum / n),
		MeanInsulin:       round1(a.insulinSum / n),
		MeanBMI:           round1(a.bmiSum / n),
		MeanProbability:   meanProbability,
		RiskDistribution:  distribute(a.low, a.medium, a.high, a.count),
	}
}

// classifyRisk maps a free-form risk label to a class by case-insensitive
// substring. Unrecognized labels map to no class.
func classifyRisk(label string) string {
	l := strings.ToLower(label)
	switch {
	case strings.Contains(l, "low"):
		return "low"
	case strings.Contains(l, "medium"):
		return "medium"
	case strings.Contains(l, "high"):
		return "high"
	default:
		return ""
	}
}

// distribute turns class counts into integer percentages of the bucket total
// that sum to 100 when every record carries a recognized class, using largest
// remainders for the leftover points.
func distribute(low, medium, high, total int) model.RiskDistribution {
	if total == 0 {
		return model.RiskDistribution{}
	}
	counts := [3]int{low, medium, high}
	floors := [3]int{}
	remainders := [3]float64{}
	sum := 0
	for i, c := range counts {
		exact := float64(c) * 100 / float64(total)
		floors[i] = int(math.Floor(exact))
		remainders[i] = exact - float64(floors[i])
		sum += floors[i]
	}
	target := int(math.Round(float64(low+medium+high) * 100 / float64(total)))
	for sum < target {
		best := 0
		for i := 1; i < 3; i++ {
			if remainders[i] > remainders[best] {
				best = i
			}
		}
		floors[best]++
		remainders[best] = -1
		sum++
	}
	return model.RiskDistribution{Low: floors[0], Medium: floors[1], High: floors[2]}
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

func round2(v float64) float64 { return math.Round(v*100) / 100 }
