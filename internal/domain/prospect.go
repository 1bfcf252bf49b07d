package domain

import (
	"fmt"
	"math"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ProspectStatus string

const (
	ProspectPending   ProspectStatus = "en_attente"
	ProspectConfirmed ProspectStatus = "confirme"
	ProspectRejected  ProspectStatus = "rejeter"
)

func ParseProspectStatus(raw string) (ProspectStatus, bool) {
	switch s := ProspectStatus(strings.TrimSpace(raw)); s {
	case ProspectPending, ProspectConfirmed, ProspectRejected:
		return s, true
	default:
		return "", false
	}
}

// OtherChoice is the sentinel value that enables the free-text fallback fields.
const OtherChoice = "autre"

var (
	EducationLevels = []string{"bac", "licence", "master", OtherChoice}
	BacSeries       = []string{"tse", "tsexp", "tseco", "tss", "tll", OtherChoice}
	Programs        = []string{"ig", "rit", "irs", "gl", "gc", "gpg", "fc", "ba", "mm", "grh", "glt", "cim", "gea", "audit", OtherChoice}
)

const maxTelephoneLength = 8

// Education groups the conditional schooling fields collected at intake.
type Education struct {
	Level          string `json:"niveau_etude"`
	LevelOther     string `json:"niveau_etude_autre"`
	BacSeries      string `json:"serie_bac"`
	BacSeriesOther string `json:"serie_bac_autre"`
	Program        string `json:"filiere_souhaitee"`
	ProgramOther   string `json:"filiere_souhaitee_autre"`
}

// LevelDisplay returns the free text when the level is "autre".
func (e Education) LevelDisplay() string { return displayChoice(e.Level, e.LevelOther) }

func (e Education) BacSeriesDisplay() string { return displayChoice(e.BacSeries, e.BacSeriesOther) }

func (e Education) ProgramDisplay() string { return displayChoice(e.Program, e.ProgramOther) }

func displayChoice(choice, other string) string {
	if choice == OtherChoice && strings.TrimSpace(other) != "" {
		return strings.TrimSpace(other)
	}
	return choice
}

// Prospect is a person referred through an affiliation code.
type Prospect struct {
	ID           uuid.UUID
	Name         string
	Email        *string
	Telephone    string
	EnrolledAt   time.Time
	Status       ProspectStatus
	InfluencerID uuid.UUID
	RemiseID     *uuid.UUID
	Education    Education
}

// ProspectDraft is unvalidated intake input.
type ProspectDraft struct {
	Name      string
	Email     string
	Telephone string
	Education Education
}

// Normalize trims the draft and validates it. Checks run in a fixed order so
// the first reported problem is stable for the form.
func (d ProspectDraft) Normalize() (ProspectDraft, error) {
	out := ProspectDraft{
		Name:      strings.TrimSpace(d.Name),
		Email:     strings.ToLower(strings.TrimSpace(d.Email)),
		Telephone: strings.TrimSpace(d.Telephone),
		Education: Education{
			Level:          strings.ToLower(strings.TrimSpace(d.Education.Level)),
			LevelOther:     strings.TrimSpace(d.Education.LevelOther),
			BacSeries:      strings.ToLower(strings.TrimSpace(d.Education.BacSeries)),
			BacSeriesOther: strings.TrimSpace(d.Education.BacSeriesOther),
			Program:        strings.ToLower(strings.TrimSpace(d.Education.Program)),
			ProgramOther:   strings.TrimSpace(d.Education.ProgramOther),
		},
	}

	if out.Name == "" {
		return ProspectDraft{}, fmt.Errorf("%w: nom is required", ErrInvalidInput)
	}
	if out.Telephone == "" {
		return ProspectDraft{}, fmt.Errorf("%w: telephone is required", ErrInvalidInput)
	}
	if len(out.Telephone) > maxTelephoneLength {
		return ProspectDraft{}, fmt.Errorf("%w: telephone must be at most %d characters", ErrInvalidInput, maxTelephoneLength)
	}
	if out.Email != "" {
		if _, err := mail.ParseAddress(out.Email); err != nil {
			return ProspectDraft{}, fmt.Errorf("%w: invalid email", ErrInvalidInput)
		}
	}

	edu := out.Education
	if edu.Level != "" && !contains(EducationLevels, edu.Level) {
		return ProspectDraft{}, fmt.Errorf("%w: unknown niveau_etude %q", ErrInvalidInput, edu.Level)
	}
	if edu.Level == OtherChoice && edu.LevelOther == "" {
		return ProspectDraft{}, fmt.Errorf("%w: niveau_etude_autre is required when niveau_etude is autre", ErrInvalidInput)
	}
	if edu.Level == "bac" {
		if edu.BacSeries == "" {
			return ProspectDraft{}, fmt.Errorf("%w: serie_bac is required when niveau_etude is bac", ErrInvalidInput)
		}
		if !contains(BacSeries, edu.BacSeries) {
			return ProspectDraft{}, fmt.Errorf("%w: unknown serie_bac %q", ErrInvalidInput, edu.BacSeries)
		}
		if edu.BacSeries == OtherChoice && edu.BacSeriesOther == "" {
			return ProspectDraft{}, fmt.Errorf("%w: serie_bac_autre is required when serie_bac is autre", ErrInvalidInput)
		}
	} else {
		edu.BacSeries = ""
		edu.BacSeriesOther = ""
	}
	if edu.Program == "" {
		return ProspectDraft{}, fmt.Errorf("%w: filiere_souhaitee is required", ErrInvalidInput)
	}
	if !contains(Programs, edu.Program) {
		return ProspectDraft{}, fmt.Errorf("%w: unknown filiere_souhaitee %q", ErrInvalidInput, edu.Program)
	}
	if edu.Program == OtherChoice && edu.ProgramOther == "" {
		return ProspectDraft{}, fmt.Errorf("%w: filiere_souhaitee_autre is required when filiere_souhaitee is autre", ErrInvalidInput)
	}
	if edu.Level != OtherChoice {
		edu.LevelOther = ""
	}
	if edu.Program != OtherChoice {
		edu.ProgramOther = ""
	}
	out.Education = edu
	return out, nil
}

// NewProspect builds a pending prospect from a normalized draft.
func NewProspect(influencerID uuid.UUID, draft ProspectDraft, now time.Time) Prospect {
	p := Prospect{
		ID:           uuid.New(),
		Name:         draft.Name,
		Telephone:    draft.Telephone,
		EnrolledAt:   now,
		Status:       ProspectPending,
		InfluencerID: influencerID,
		Education:    draft.Education,
	}
	if draft.Email != "" {
		email := draft.Email
		p.Email = &email
	}
	return p
}

// Validate confirms a pending prospect.
func (p *Prospect) Validate() error {
	switch p.Status {
	case ProspectPending:
		p.Status = ProspectConfirmed
		return nil
	case ProspectConfirmed:
		return ErrAlreadyConfirmed
	default:
		return fmt.Errorf("%w: only pending prospects can be validated", ErrInvalidTransition)
	}
}

// Reject moves a pending or confirmed prospect to rejected.
func (p *Prospect) Reject() error {
	if p.Status == ProspectRejected {
		return ErrAlreadyRejected
	}
	p.Status = ProspectRejected
	return nil
}

// EligibleForRemise reports whether the prospect can be covered by a new remise.
func (p Prospect) EligibleForRemise() bool {
	return p.Status == ProspectConfirmed && p.RemiseID == nil
}

// StatusCounts is a per-status tally of prospects.
type StatusCounts struct {
	Pending   int `json:"en_attente"`
	Confirmed int `json:"confirme"`
	Rejected  int `json:"rejeter"`
}

func (c StatusCounts) Total() int { return c.Pending + c.Confirmed + c.Rejected }

func (c *StatusCounts) Add(status ProspectStatus, n int) {
	switch status {
	case ProspectPending:
		c.Pending += n
	case ProspectConfirmed:
		c.Confirmed += n
	case ProspectRejected:
		c.Rejected += n
	}
}

// ConversionRate is confirmed / (confirmed + rejected) as a percentage rounded
// to 2 decimals; 0 when nothing has been decided yet.
func ConversionRate(confirmed, rejected int) float64 {
	decided := confirmed + rejected
	if decided <= 0 {
		return 0
	}
	return Round2(float64(confirmed) / float64(decided) * 100)
}

func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
