package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusBroken   Status = "BROKEN"
	StatusArchived Status = "ARCHIVED"
	StatusReplaced Status = "REPLACED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusBroken, StatusArchived, StatusReplaced:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusArchived || s == StatusReplaced
}

// Open reports whether the status is still evaluated each cycle.
func (s Status) Open() bool {
	return s == StatusActive || s == StatusBroken
}

// CanTransition reports whether from -> to is a legal forward move.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusActive:
		return to == StatusBroken || to == StatusArchived || to == StatusReplaced
	case StatusBroken:
		return to == StatusArchived
	}
	return false
}

type ArchiveReason string

const (
	ReasonStopLossMomentum ArchiveReason = "STOP_LOSS_MOMENTUM"
	ReasonTTLExpired       ArchiveReason = "TTL_EXPIRED"
	ReasonReplaced         ArchiveReason = "REPLACED"
)

type ArchivePhase string

const (
	PhaseProfit ArchivePhase = "PROFIT"
	PhaseFlat   ArchivePhase = "FLAT"
	PhaseLoss   ArchivePhase = "LOSS"
)

// PhaseFor buckets a return (percent) into a phase using a symmetric band.
func PhaseFor(returnPct, band float64) ArchivePhase {
	switch {
	case returnPct >= band:
		return PhaseProfit
	case returnPct <= -band:
		return PhaseLoss
	default:
		return PhaseFlat
	}
}

// ScoreLabelFor maps a 0..10 score to a coarse label.
func ScoreLabelFor(score float64) string {
	switch {
	case score >= 8:
		return "strong"
	case score >= 6:
		return "good"
	case score >= 4:
		return "fair"
	default:
		return "weak"
	}
}

type SwingDetail struct {
	HorizonDetail
	GapPct float64 `json:"gap_pct"`
}

type PositionDetail struct {
	HorizonDetail
	ExtensionPct float64 `json:"extension_pct"`
}

type LongTermDetail struct {
	HorizonDetail
	RelStrength float64 `json:"rel_strength"`
}

// RecommendationDetail holds the scoring evidence for exactly one horizon.
type RecommendationDetail struct {
	Swing    *SwingDetail    `json:"swing,omitempty"`
	Position *PositionDetail `json:"position,omitempty"`
	LongTerm *LongTermDetail `json:"longterm,omitempty"`
}

// DetailFor builds the detail variant matching the strategy.
func DetailFor(strategy Horizon, c ScanCandidate) RecommendationDetail {
	hd := c.Scores.For(strategy).Detail
	switch strategy {
	case HorizonPosition:
		return RecommendationDetail{Position: &PositionDetail{HorizonDetail: hd, ExtensionPct: c.ExtensionPct}}
	case HorizonLongTerm:
		return RecommendationDetail{LongTerm: &LongTermDetail{HorizonDetail: hd, RelStrength: c.RelStrength}}
	default:
		return RecommendationDetail{Swing: &SwingDetail{HorizonDetail: hd, GapPct: c.GapPct}}
	}
}

func (d RecommendationDetail) Horizon() (Horizon, bool) {
	n := 0
	var h Horizon
	if d.Swing != nil {
		n++
		h = HorizonSwing
	}
	if d.Position != nil {
		n++
		h = HorizonPosition
	}
	if d.LongTerm != nil {
		n++
		h = HorizonLongTerm
	}
	return h, n == 1
}

type BrokenSnapshot struct {
	At        time.Time `json:"at"`
	ReturnPct float64   `json:"return_pct"`
}

type ArchiveSnapshot struct {
	At        time.Time     `json:"at"`
	ReturnPct float64       `json:"return_pct"`
	Price     float64       `json:"price"`
	Reason    ArchiveReason `json:"reason"`
	Phase     ArchivePhase  `json:"phase"`
}

// Recommendation is the durable lifecycle entity. The anchor close and
// the terminal snapshots can only be written once; status moves only
// through the transition methods.
type Recommendation struct {
	ID              string
	Symbol          string
	Name            string
	AnchorDate      time.Time
	Strategy        Horizon
	Score           float64
	ScoreLabel      string
	Detail          RecommendationDetail
	LastPrice       float64
	LastReturnPct   float64
	LastEvaluatedAt *time.Time
	CreatedAt       time.Time
	// Version is the optimistic-lock counter; zero means not yet stored.
	Version int64

	anchorClose     float64
	status          Status
	statusChangedAt time.Time
	broken          *BrokenSnapshot
	archive         *ArchiveSnapshot
	replacedBy      string
}

type NewRecommendationParams struct {
	ID          string
	Symbol      string
	Name        string
	Strategy    Horizon
	AnchorDate  time.Time
	AnchorClose float64
	Score       float64
	Detail      RecommendationDetail
	Now         time.Time
}

func NewRecommendation(p NewRecommendationParams) (*Recommendation, error) {
	if p.ID == "" || p.Symbol == "" {
		return nil, fmt.Errorf("%w: recommendation needs id and symbol", ErrInvariantViolation)
	}
	if p.AnchorClose <= 0 {
		return nil, fmt.Errorf("%w: anchor close must be positive, got %v", ErrInvariantViolation, p.AnchorClose)
	}
	if _, err := ParseHorizon(string(p.Strategy)); err != nil {
		return nil, err
	}
	return &Recommendation{
		ID:              p.ID,
		Symbol:          p.Symbol,
		Name:            p.Name,
		AnchorDate:      TradingDay(p.AnchorDate),
		Strategy:        p.Strategy,
		Score:           p.Score,
		ScoreLabel:      ScoreLabelFor(p.Score),
		Detail:          p.Detail,
		LastPrice:       p.AnchorClose,
		CreatedAt:       p.Now,
		anchorClose:     p.AnchorClose,
		status:          StatusActive,
		statusChangedAt: p.Now,
	}, nil
}

func (r *Recommendation) AnchorClose() float64 { return r.anchorClose }
func (r *Recommendation) Status() Status { return r.status }
func (r *Recommendation) StatusChangedAt() time.Time { return r.statusChangedAt }
func (r *Recommendation) ReplacedBy() string { return r.replacedBy }

func (r *Recommendation) Broken() (BrokenSnapshot, bool) {
	if r.broken == nil {
		return BrokenSnapshot{}, false
	}
	return *r.broken, true
}

func (r *Recommendation) Archived() (ArchiveSnapshot, bool) {
	if r.archive == nil {
		return ArchiveSnapshot{}, false
	}
	return *r.archive, true
}

// ReturnPct is the percent move of price against the anchor close.
func (r *Recommendation) ReturnPct(price float64) float64 {
	return (price/r.anchorClose - 1) * 100
}

// Track records the latest observed price.
func (r *Recommendation) Track(price float64, at time.Time) float64 {
	ret := r.ReturnPct(price)
	r.LastPrice = price
	r.LastReturnPct = ret
	t := at
	r.LastEvaluatedAt = &t
	return ret
}

// Reinforce refreshes the score of an ACTIVE recommendation.
func (r *Recommendation) Reinforce(score float64, detail RecommendationDetail) error {
	if r.status != StatusActive {
		return fmt.Errorf("%w: reinforce %s in status %s", ErrInvalidTransition, r.ID, r.status)
	}
	r.Score = score
	r.ScoreLabel = ScoreLabelFor(score)
	r.Detail = detail
	return nil
}

// MarkBroken moves ACTIVE to BROKEN and freezes the broken snapshot.
func (r *Recommendation) MarkBroken(at time.Time, price float64) error {
	if r.broken != nil {
		return fmt.Errorf("%w: broken snapshot already set on %s", ErrInvariantViolation, r.ID)
	}
	if err := r.transition(StatusBroken, at); err != nil {
		return err
	}
	r.broken = &BrokenSnapshot{At: at, ReturnPct: r.ReturnPct(price)}
	return nil
}

// Retire archives the recommendation with the given reason.
func (r *Recommendation) Retire(reason ArchiveReason, at time.Time, price, phaseBand float64) error {
	if reason == ReasonReplaced {
		return fmt.Errorf("%w: use Replace for superseded recommendations", ErrInvariantViolation)
	}
	return r.freeze(StatusArchived, reason, at, price, phaseBand)
}

// Replace marks an ACTIVE recommendation as superseded by byID.
func (r *Recommendation) Replace(byID string, at time.Time, price, phaseBand float64) error {
	if byID == "" || byID == r.ID {
		return fmt.Errorf("%w: invalid replacement id %q", ErrInvariantViolation, byID)
	}
	if err := r.freeze(StatusReplaced, ReasonReplaced, at, price, phaseBand); err != nil {
		return err
	}
	r.replacedBy = byID
	return nil
}

func (r *Recommendation) freeze(to Status, reason ArchiveReason, at time.Time, price, band float64) error {
	if r.archive != nil {
		return fmt.Errorf("%w: archive snapshot already set on %s", ErrInvariantViolation, r.ID)
	}
	if price <= 0 {
		return fmt.Errorf("%w: archive price must be positive", ErrInvariantViolation)
	}
	if err := r.transition(to, at); err != nil {
		return err
	}
	ret := r.ReturnPct(price)
	r.archive = &ArchiveSnapshot{
		At:        at,
		ReturnPct: ret,
		Price:     price,
		Reason:    reason,
		Phase:     PhaseFor(ret, band),
	}
	return nil
}

func (r *Recommendation) transition(to Status, at time.Time) error {
	if !CanTransition(r.status, to) {
		return fmt.Errorf("%w: %s -> %s on %s", ErrInvalidTransition, r.status, to, r.ID)
	}
	r.status = to
	r.statusChangedAt = at
	return nil
}

// RecommendationRecord is the flat persisted and serialized form.
type RecommendationRecord struct {
	ID               string               `json:"id"`
	Symbol           string               `json:"symbol"`
	Name             string               `json:"name"`
	AnchorDate       time.Time            `json:"anchor_date"`
	AnchorClose      float64              `json:"anchor_close"`
	Strategy         Horizon              `json:"strategy"`
	Score            float64              `json:"score"`
	ScoreLabel       string               `json:"score_label"`
	Status           Status               `json:"status"`
	BrokenAt         *time.Time           `json:"broken_at,omitempty"`
	BrokenReturnPct  *float64             `json:"broken_return_pct,omitempty"`
	ArchivedAt       *time.Time           `json:"archived_at,omitempty"`
	ArchiveReturnPct *float64             `json:"archive_return_pct,omitempty"`
	ArchivePrice     *float64             `json:"archive_price,omitempty"`
	ArchiveReason    ArchiveReason        `json:"archive_reason,omitempty"`
	ArchivePhase     ArchivePhase         `json:"archive_phase,omitempty"`
	ReplacedBy       string               `json:"replaced_by,omitempty"`
	StatusChangedAt  time.Time            `json:"status_changed_at"`
	LastPrice        float64              `json:"last_price"`
	LastReturnPct    float64              `json:"last_return_pct"`
	LastEvaluatedAt  *time.Time           `json:"last_evaluated_at,omitempty"`
	Detail           RecommendationDetail `json:"detail"`
	Version          int64                `json:"version"`
	CreatedAt        time.Time            `json:"created_at"`
}

func (r *Recommendation) Record() RecommendationRecord {
	rec := RecommendationRecord{
		ID:              r.ID,
		Symbol:          r.Symbol,
		Name:            r.Name,
		AnchorDate:      r.AnchorDate,
		AnchorClose:     r.anchorClose,
		Strategy:        r.Strategy,
		Score:           r.Score,
		ScoreLabel:      r.ScoreLabel,
		Status:          r.status,
		ReplacedBy:      r.replacedBy,
		StatusChangedAt: r.statusChangedAt,
		LastPrice:       r.LastPrice,
		LastReturnPct:   r.LastReturnPct,
		LastEvaluatedAt: r.LastEvaluatedAt,
		Detail:          r.Detail,
		Version:         r.Version,
		CreatedAt:       r.CreatedAt,
	}
	if b := r.broken; b != nil {
		at, ret := b.At, b.ReturnPct
		rec.BrokenAt, rec.BrokenReturnPct = &at, &ret
	}
	if a := r.archive; a != nil {
		at, ret, price := a.At, a.ReturnPct, a.Price
		rec.ArchivedAt, rec.ArchiveReturnPct, rec.ArchivePrice = &at, &ret, &price
		rec.ArchiveReason, rec.ArchivePhase = a.Reason, a.Phase
	}
	return rec
}

// RestoreRecommendation rebuilds a recommendation from its stored record.
func RestoreRecommendation(rec RecommendationRecord) (*Recommendation, error) {
	if !rec.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q for %s", ErrInvariantViolation, rec.Status, rec.ID)
	}
	if rec.AnchorClose <= 0 {
		return nil, fmt.Errorf("%w: stored anchor close %v for %s", ErrInvariantViolation, rec.AnchorClose, rec.ID)
	}
	r := &Recommendation{
		ID:              rec.ID,
		Symbol:          rec.Symbol,
		Name:            rec.Name,
		AnchorDate:      rec.AnchorDate,
		Strategy:        rec.Strategy,
		Score:           rec.Score,
		ScoreLabel:      rec.ScoreLabel,
		Detail:          rec.Detail,
		LastPrice:       rec.LastPrice,
		LastReturnPct:   rec.LastReturnPct,
		LastEvaluatedAt: rec.LastEvaluatedAt,
		CreatedAt:       rec.CreatedAt,
		Version:         rec.Version,
		anchorClose:     rec.AnchorClose,
		status:          rec.Status,
		statusChangedAt: rec.StatusChangedAt,
		replacedBy:      rec.ReplacedBy,
	}
	if rec.BrokenAt != nil && rec.BrokenReturnPct != nil {
		r.broken = &BrokenSnapshot{At: *rec.BrokenAt, ReturnPct: *rec.BrokenReturnPct}
	}
	if rec.ArchivedAt != nil && rec.ArchiveReturnPct != nil && rec.ArchivePrice != nil {
		r.archive = &ArchiveSnapshot{
			At:        *rec.ArchivedAt,
			ReturnPct: *rec.ArchiveReturnPct,
			Price:     *rec.ArchivePrice,
			Reason:    rec.ArchiveReason,
			Phase:     rec.ArchivePhase,
		}
	}
	return r, nil
}

func (r *Recommendation) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Record())
}
