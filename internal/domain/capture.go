package domain

import (
	"time"

	"github.com/google/uuid"
)

// State is the position of a capture in the conversation flow.
type State string

const (
	StateInitial          State = "initial"
	StateReceiving        State = "receiving"
	StateProcessingAudio  State = "processing_audio"
	StateProcessingPhotos State = "processing_photos"
	StateValidating       State = "validating"
	StateReadyToPublish   State = "ready_to_publish"
	StateAwaitingApproval State = "awaiting_approval"
	StatePublishing       State = "publishing"
	StateCompleted        State = "completed"
	StateError            State = "error"
)

// CaptureTTL is how long a capture survives without activity before the
// sweep evicts it.
const CaptureTTL = 24 * time.Hour

// ProcessedPhoto is one photo after the studio has categorized and scored it.
type ProcessedPhoto struct {
	Ref         string `json:"ref"`
	EnhancedRef string `json:"enhancedRef,omitempty"`
	Category    string `json:"category"`
	Score       int    `json:"score"` // 0-100
}

// PublishResult is the outcome of pushing a finished listing to one
// external destination.
type PublishResult struct {
	Destination string `json:"destination"`
	Success     bool   `json:"success"`
	ID          string `json:"id,omitempty"`
	URL         string `json:"url,omitempty"`
	Error       string `json:"error,omitempty"`
}

// CaptureRecord is the unit of work for one prospective listing: everything
// collected so far from one conversation. ID, OwnerID, Channel and
// ChannelAddress are immutable after creation; State and the data fields are
// mutated only by the orchestrator, which the gateway serializes per address.
type CaptureRecord struct {
	ID             string `json:"id"`
	OwnerID        string `json:"ownerId"`
	Channel        string `json:"channel"`
	ChannelAddress string `json:"channelAddress"`

	State  State          `json:"state"`
	Fields PropertyFields `json:"fields"`

	AudioRefs []string         `json:"audioRefs,omitempty"` // append-only
	PhotoRefs []string         `json:"photoRefs,omitempty"` // append-only
	Photos    []ProcessedPhoto `json:"photos,omitempty"`    // curated selection, descending score

	Missing  []string `json:"missing"`            // recomputed after every merge
	Warnings []string `json:"warnings,omitempty"` // advisory only, never blocks

	Results []PublishResult `json:"results,omitempty"` // attached on completion

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// NewCapture creates a fresh record for a conversation that has just started.
func NewCapture(channel, address, ownerID string) *CaptureRecord {
	now := time.Now()
	return &CaptureRecord{
		ID:             uuid.NewString(),
		OwnerID:        ownerID,
		Channel:        channel,
		ChannelAddress: address,
		State:          StateInitial,
		Missing:        RequiredFields(),
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(CaptureTTL),
	}
}

// SetState moves the capture to a new state and refreshes the activity
// timestamps. Every mutation goes through here or Touch so ExpiresAt always
// tracks UpdatedAt+TTL.
func (c *CaptureRecord) SetState(s State) {
	c.State = s
	c.Touch()
}

// Touch refreshes UpdatedAt and the derived ExpiresAt. Read-only queries must
// not call it.
func (c *CaptureRecord) Touch() {
	c.UpdatedAt = time.Now()
	c.ExpiresAt = c.UpdatedAt.Add(CaptureTTL)
}

// Expired reports whether the capture has been idle past its TTL.
func (c *CaptureRecord) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// RequiredFields returns the names of the sacred fields a capture needs
// before it can be published.
func RequiredFields() []string {
	return []string{FieldPrice, FieldArea, FieldBathrooms, FieldAddress}
}

const (
	FieldPrice     = "price"
	FieldArea      = "area"
	FieldBathrooms = "bathrooms"
	FieldAddress   = "address"
)
