package triage

import (
	"context"
	"time"
)

const (
	// FilterAll is the sentinel filter value that disables a categorical filter.
	FilterAll = "All"
	// DefaultCategory buckets complaints that carry no category.
	DefaultCategory = "Uncategorized"
	// DefaultUrgency buckets complaints that carry no urgency.
	DefaultUrgency = "Unknown"
	// DefaultCollection is the document-store collection holding complaints.
	DefaultCollection = "complaints"
)

// Urgency levels produced by the classification backend.
const (
	UrgencyHigh   = "High"
	UrgencyMedium = "Medium"
	UrgencyLow    = "Low"
)

// Identity is the identity-provider view of a signed-in visitor.
type Identity struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
}

// Profile carries the mutable profile fields accepted by UpdateProfile.
type Profile struct {
	DisplayName string `json:"display_name"`
}

// IdentityProvider is the collaborator surface consumed from the external
// identity service. Sign-in style calls report failure through their error;
// success is observed through OnAuthStateChanged.
type IdentityProvider interface {
	OnAuthStateChanged(fn func(*Identity)) (unsubscribe func())
	SignIn(ctx context.Context, email, password string) error
	CreateAccount(ctx context.Context, email, password string) (Identity, error)
	SignInWithProvider(ctx context.Context) error
	SignOut(ctx context.Context) error
	UpdateProfile(ctx context.Context, identity Identity, profile Profile) error
	CurrentIdentity(ctx context.Context) (*Identity, error)
}

// OrderDirection is the direction of an ordered query or sort.
type OrderDirection string

const (
	Ascending  OrderDirection = "asc"
	Descending OrderDirection = "desc"
)

// Query describes an ordered subscription against a document-store collection.
type Query struct {
	Collection string
	OrderBy    string
	Direction  OrderDirection
}

// DocumentStore is the collaborator surface consumed from the real-time
// document store. Every onSnapshot call carries the complete collection.
type DocumentStore interface {
	Subscribe(ctx context.Context, query Query, onSnapshot func([]Complaint), onError func(error)) (unsubscribe func(), err error)
}

// Snapshot is an immutable point-in-time copy of the complaint collection.
type Snapshot struct {
	Complaints []Complaint `json:"complaints"`
	Version    uint64      `json:"version"`
	ReceivedAt time.Time   `json:"received_at"`
}

// Len reports the number of complaints in the snapshot.
func (s Snapshot) Len() int {
	return len(s.Complaints)
}

// Analysis is the classification verdict returned by the backend.
type Analysis struct {
	Urgency         string `json:"urgency"`
	Category        string `json:"category"`
	SuggestedAction string `json:"suggested_action"`
	Summary         string `json:"summary,omitempty"`
	Sentiment       string `json:"sentiment,omitempty"`
}

// AnalysisResult is the submission endpoint's success payload.
type AnalysisResult struct {
	ID       string   `json:"id"`
	Message  string   `json:"message,omitempty"`
	Analysis Analysis `json:"analysis"`
}
