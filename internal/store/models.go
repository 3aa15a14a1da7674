package store

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

const (
	StatusPending        = "PENDING"
	StatusProcessed      = "PROCESSED"
	StatusIgnored        = "IGNORED"
	StatusFailed         = "FAILED"
	StatusNeedsReview    = "NEEDS_REVIEW"
	StatusActionRequired = "ACTION_REQUIRED"
	StatusResolved       = "RESOLVED"
	StatusAccessDenied   = "ACCESS_DENIED"
)

const (
	OriginCustomer  = "customer"
	OriginFlow      = "flow"
	OriginAlert     = "alert"
	OriginSystem    = "system"
	OriginBroadcast = "broadcast"
)

const (
	StateIdle                     = "IDLE"
	StateAwaitingProposalResponse = "AWAITING_PROPOSAL_RESPONSE"
)

const (
	OrderPending     = "pending"
	OrderConfirmed   = "confirmed"
	OrderRejected    = "rejected"
	OrderCompleted   = "completed"
	OrderCancelled   = "cancelled"
	OrderNegotiating = "negotiating"
)

const (
	PlanFree = "free"
	PlanPaid = "paid"

	WorkspaceActive    = "active"
	WorkspaceSuspended = "suspended"
)

// MaxRelatedItems bounds Item.RelatedItemIDs.
const MaxRelatedItems = 20

type Workspace struct {
	ID                  string
	Name                string
	Status              string
	Plan                string
	AIActive            bool
	AllowGlobalAI       bool
	AIBlocked           bool
	UsageLimitOverride  *int64
	BusinessName        string
	BusinessDescription string
	BusinessHours       string
	Location            string
	Tone                string
}

// AISettings is one stored settings row, either a workspace's own or the
// global admin row. Nil knobs mean "not set here".
type AISettings struct {
	OpenAIKey          string
	AnthropicKey       string
	CustomerProvider   string
	CustomerModel      string
	CoachProvider      string
	CoachModel         string
	EmbeddingProvider  string
	EmbeddingModel     string
	Temperature        *float64
	MaxTokens          *int
	TopP               *float64
	RateLimitPerMinute *int
	RetryAttempts      *int
	PromptTemplate     string
}

// WorkspacePatch carries the fields update_config may change. Nil means untouched.
type WorkspacePatch struct {
	BusinessName        *string
	BusinessDescription *string
	BusinessHours       *string
	Location            *string
	Tone                *string
	AIActive            *bool
	PromptTemplate      *string
	Temperature         *float64
	RateLimitPerMinute  *int
}

// Empty reports whether the patch changes nothing.
func (p WorkspacePatch) Empty() bool {
	return p.BusinessName == nil && p.BusinessDescription == nil && p.BusinessHours == nil &&
		p.Location == nil && p.Tone == nil && p.AIActive == nil && p.PromptTemplate == nil &&
		p.Temperature == nil && p.RateLimitPerMinute == nil
}

type Customer struct {
	ID                  string
	WorkspaceID         string
	PlatformUserID      string
	Name                string
	AIPaused            bool
	AIPausedAt          *time.Time
	ConversationState   string
	ConversationContext map[string]any
}

type Post struct {
	ID             string
	WorkspaceID    string
	PlatformPostID string
	Caption        string
	Content        string
}

type Interaction struct {
	ID                string
	WorkspaceID       string
	CustomerID        string
	PostID            string
	AuthorID          string
	AuthorName        string
	PlatformMessageID string
	Origin            string
	Content           string
	Response          string
	Status            string
	Metadata          map[string]any
	CreatedAt         time.Time
}

// ItemMeta holds the structured product fields rendered into prompts.
type ItemMeta struct {
	Price    *float64 `json:"price,omitempty"`
	Discount *float64 `json:"discount,omitempty"`
	InStock  *bool    `json:"inStock,omitempty"`
	Stock    *int     `json:"stock,omitempty"`
}

type Item struct {
	ID             string
	WorkspaceID    string
	Name           string
	Content        string
	Category       string
	Meta           ItemMeta
	Embedding      *pgvector.Vector
	RelatedItemIDs []string
	IsVerified     bool
	ExpiresAt      *time.Time
	SourceID       string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	// Similarity is set by vector queries only.
	Similarity float64
}

type Order struct {
	ID             string
	WorkspaceID    string
	CustomerID     string
	InteractionID  string
	ItemName       string
	Quantity       int
	TotalAmount    float64
	Status         string
	SellerNote     string
	SellerProposal string
	CreatedAt      time.Time
}

type FeedbackEntry struct {
	WorkspaceID   string
	InteractionID string
	Query         string
	Context       string
	Confidence    float64
	Reason        string
}

type UsageEntry struct {
	WorkspaceID string
	Role        string
	Operation   string
	Provider    string
	Model       string
	TokensIn    int
	TokensOut   int
	LatencyMs   int64
	Attempts    int
	Success     bool
	Error       string
}

// BroadcastTarget is a customer reachable on the platform.
type BroadcastTarget struct {
	CustomerID string
	AuthorID   string
	AuthorName string
}
