// Package domain defines the persistence models for part requests, offers,
// moderation records, notifications, reviews, and supplier profiles. These
// types are mapped with GORM and form the core data layer of the marketplace
// pipeline.
package domain

import "time"

// PartRequest statuses. A request only ever moves forward through
// pending → offer_received → contact_unlocked → completed, or diverts to
// cancelled from any non-terminal state.
const (
	RequestStatusPending         = "pending"
	RequestStatusOfferReceived   = "offer_received"
	RequestStatusContactUnlocked = "contact_unlocked"
	RequestStatusCompleted       = "completed"
	RequestStatusCancelled       = "cancelled"
)

// Offer statuses. All three non-pending statuses are terminal; the
// contact_unlocked / transaction_completed flags progress only from accepted.
const (
	OfferStatusPending  = "pending"
	OfferStatusAccepted = "accepted"
	OfferStatusRejected = "rejected"
	OfferStatusExpired  = "expired"
)

// Moderation decisions rendered by the adjudicator.
const (
	DecisionApproved    = "approved"
	DecisionRejected    = "rejected"
	DecisionNeedsReview = "needs_human_review"
)

// Notification channels.
const (
	ChannelSMS      = "sms"
	ChannelWhatsApp = "whatsapp"
	ChannelEmail    = "email"
)

// PartRequest is a buyer's durable ask for a specific vehicle component.
// Content fields belong to the buyer; Status belongs to the pipeline and is
// only ever mutated through conditional transitions. Rows are never deleted.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - BuyerID: identifier of the request owner; indexed for retrieval.
//   - Make/Model/Year: vehicle descriptor.
//   - PartName: requested component; PartNameCanon is the case-folded,
//     whitespace-collapsed form used for duplicate suppression.
//   - Phone: contact phone used for rate windows and duplicate checks.
//   - Location: free-text area string matched against supplier profiles.
//   - PhotoURL: optional photo reference.
//   - Status: lifecycle status (see RequestStatus* constants).
type PartRequest struct {
	ID            string    `json:"id"              gorm:"type:char(36);primaryKey"`
	BuyerID       string    `json:"buyer_id"        gorm:"type:varchar(64);not null;index:idx_buyer_requests"`
	Make          string    `json:"make"            gorm:"type:varchar(64);not null"`
	Model         string    `json:"model"           gorm:"type:varchar(64);not null"`
	Year          int       `json:"year"            gorm:"not null"`
	PartName      string    `json:"part_name"       gorm:"type:varchar(255);not null"`
	PartNameCanon string    `json:"-"               gorm:"type:varchar(255);not null;index:idx_request_dedupe,priority:2"`
	Description   string    `json:"description"     gorm:"type:text"`
	Phone         string    `json:"phone"           gorm:"type:varchar(32);not null;index:idx_request_dedupe,priority:1"`
	Location      string    `json:"location"        gorm:"type:varchar(128)"`
	PhotoURL      string    `json:"photo_url,omitempty" gorm:"type:varchar(512)"`
	Status        string    `json:"status"          gorm:"type:varchar(24);not null;default:'pending';check:status IN ('pending','offer_received','contact_unlocked','completed','cancelled');index"`
	CreatedAt     time.Time `json:"created_at"      gorm:"index"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName returns the database table name for PartRequest.
func (PartRequest) TableName() string { return "part_requests" }

// ModerationRecord is the single automated adjudication outcome for a
// request. Immutable once written; the unique index on RequestID enforces
// at-most-one automated record per request. Human overrides happen through
// direct administrative status mutation, not here.
type ModerationRecord struct {
	ID         string    `json:"id"         gorm:"type:char(36);primaryKey"`
	RequestID  string    `json:"request_id" gorm:"type:char(36);not null;uniqueIndex:ux_moderation_request"`
	Decision   string    `json:"decision"   gorm:"type:varchar(24);not null;check:decision IN ('approved','rejected','needs_human_review')"`
	Confidence float64   `json:"confidence" gorm:"not null"`
	Rationale  string    `json:"rationale"  gorm:"type:text"`
	CreatedAt  time.Time `json:"created_at"`

	// Request is the adjudicated submission.
	Request PartRequest `json:"-" gorm:"foreignKey:RequestID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ModerationRecord.
func (ModerationRecord) TableName() string { return "moderation_records" }

// Offer is a seller's priced response to a part request. Content fields
// belong to the seller; Status and the two progress flags belong to the
// pipeline.
//
// Invariants:
//   - At most one sibling offer per request holds status=accepted.
//   - ContactUnlocked=true implies Status=accepted.
//   - TransactionCompleted=true implies ContactUnlocked=true and the parent
//     request's status=completed.
type Offer struct {
	ID                   string     `json:"id"         gorm:"type:char(36);primaryKey"`
	RequestID            string     `json:"request_id" gorm:"type:char(36);not null;index:idx_request_offers"`
	SellerID             string     `json:"seller_id"  gorm:"type:varchar(64);not null;index"`
	BuyerID              string     `json:"buyer_id,omitempty" gorm:"type:varchar(64);index"` // denormalized on accept
	Price                float64    `json:"price"      gorm:"not null"`
	Message              string     `json:"message,omitempty" gorm:"type:text"`
	Status               string     `json:"status"     gorm:"type:varchar(16);not null;default:'pending';check:status IN ('pending','accepted','rejected','expired');index"`
	ContactUnlocked      bool       `json:"contact_unlocked"      gorm:"not null;default:false"`
	TransactionCompleted bool       `json:"transaction_completed" gorm:"not null;default:false;index"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`

	// Request is the parent ask. Offers are cascade-deleted with it.
	Request PartRequest `json:"-" gorm:"foreignKey:RequestID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Offer.
func (Offer) TableName() string { return "offers" }

// NotificationRecord is one dispatch attempt toward a user on a single
// channel. The pipeline's responsibility ends at durable creation of the row;
// Sent/SentAt are flipped asynchronously by the out-of-process delivery
// worker.
type NotificationRecord struct {
	ID          string     `json:"id"          gorm:"type:char(36);primaryKey"`
	UserID      string     `json:"user_id"     gorm:"type:varchar(64);not null;index"`
	Channel     string     `json:"channel"     gorm:"type:varchar(16);not null;check:channel IN ('sms','whatsapp','email')"`
	Destination string     `json:"destination" gorm:"type:varchar(255);not null"`
	Message     string     `json:"message"     gorm:"type:text;not null"`
	Sent        bool       `json:"sent"        gorm:"not null;default:false;index"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// TableName returns the database table name for NotificationRecord.
func (NotificationRecord) TableName() string { return "notification_records" }

// Review is a buyer's rating of a seller for one completed transaction.
// A buyer can rate a given offer exactly once (unique index); a second
// submission is a conflict, never an overwrite.
type Review struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	OfferID    string    `json:"offer_id"    gorm:"type:char(36);not null;index;uniqueIndex:ux_review_offer_reviewer"`
	ReviewerID string    `json:"reviewer_id" gorm:"type:varchar(64);not null;index;uniqueIndex:ux_review_offer_reviewer"`
	SellerID   string    `json:"seller_id"   gorm:"type:varchar(64);not null;index"`
	Rating     int       `json:"rating"      gorm:"not null;check:rating BETWEEN 1 AND 5"`
	Comment    string    `json:"comment,omitempty" gorm:"type:text"`
	CreatedAt  time.Time `json:"created_at"`

	// Offer is the rated transaction. Reviews are cascade-deleted with it.
	Offer Offer `json:"-" gorm:"foreignKey:OfferID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Review.
func (Review) TableName() string { return "reviews" }

// SupplierProfile describes a seller account eligible for new-request
// fan-out. Location is a free-text area string matched by substring against
// request locations; Channel is the supplier's preferred notification
// channel.
type SupplierProfile struct {
	ID        string    `json:"id"       gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"  gorm:"type:varchar(64);not null;uniqueIndex:ux_supplier_user"`
	Name      string    `json:"name"     gorm:"type:varchar(128);not null"`
	Location  string    `json:"location" gorm:"type:varchar(128);not null;index"`
	Phone     string    `json:"phone"    gorm:"type:varchar(32);not null"`
	Channel   string    `json:"channel"  gorm:"type:varchar(16);not null;default:'whatsapp';check:channel IN ('sms','whatsapp','email')"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for SupplierProfile.
func (SupplierProfile) TableName() string { return "supplier_profiles" }
