package domain

const (
	EventInfluencerCreated = "influencer.created"
	EventInfluencerDeleted = "influencer.deleted"
	EventProspectSubmitted = "prospect.submitted"
	EventProspectConfirmed = "prospect.confirmed"
	EventProspectRejected  = "prospect.rejected"
	EventRemiseCreated     = "remise.created"
	EventRemisePaid        = "remise.paid"
)

// InfluencerCreatedPayload carries what the welcome and affiliation-link emails need.
type InfluencerCreatedPayload struct {
	InfluencerID    string `json:"influencer_id"`
	Name            string `json:"nom"`
	Email           string `json:"email"`
	AffiliationCode string `json:"code_affiliation"`
	AffiliationLink string `json:"affiliation_link"`
	OccurredAt      string `json:"occurred_at"`
}

type InfluencerDeletedPayload struct {
	InfluencerID string `json:"influencer_id"`
	DeletedBy    string `json:"deleted_by"`
	OccurredAt   string `json:"occurred_at"`
}

type ProspectEventPayload struct {
	ProspectID   string `json:"prospect_id"`
	InfluencerID string `json:"influencer_id"`
	Status       string `json:"statut"`
	ActorID      string `json:"actor_id,omitempty"`
	OccurredAt   string `json:"occurred_at"`
}

// RemiseEventPayload is shared by remise.created and remise.paid.
type RemiseEventPayload struct {
	RemiseID        string   `json:"remise_id"`
	InfluencerID    string   `json:"influencer_id"`
	InfluencerName  string   `json:"influencer_nom"`
	InfluencerEmail string   `json:"influencer_email"`
	Amount          string   `json:"montant"`
	Currency        string   `json:"devise"`
	Description     string   `json:"description"`
	ProspectIDs     []string `json:"prospect_ids,omitempty"`
	Status          string   `json:"statut"`
	OccurredAt      string   `json:"occurred_at"`
}
