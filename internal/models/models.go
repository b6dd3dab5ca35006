package models

import "time"

type Role string

const (
	RoleRenter Role = "renter"
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
)

type User struct {
	ID    ID     `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

type PropertyStatus string

const (
	PropertyAvailable PropertyStatus = "available"
	PropertyPending   PropertyStatus = "pending"
	PropertyRented    PropertyStatus = "rented"
)

// OpenForDeals reports whether a deal may be created or signed.
func (s PropertyStatus) OpenForDeals() bool {
	return s == PropertyAvailable || s == PropertyPending
}

type Property struct {
	ID      ID             `json:"id"`
	OwnerID ID             `json:"ownerId"`
	Title   string         `json:"title"`
	Status  PropertyStatus `json:"status"`
}

type PublicKey struct {
	UserID    ID        `json:"userId"`
	PEM       string    `json:"publicKey"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Message struct {
	ID         ID        `json:"id"`
	PropertyID ID        `json:"propertyId"`
	SenderID   ID        `json:"senderId"`
	ReceiverID ID        `json:"receiverId"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
	Read       bool      `json:"read"`
}

type DealStatus string

const (
	DealPending   DealStatus = "pending"
	DealCompleted DealStatus = "completed"
	DealCancelled DealStatus = "cancelled"
)

// Active deals count against the one-deal-per-property rule.
func (s DealStatus) Active() bool {
	return s == DealPending || s == DealCompleted
}

type SignatureSlot struct {
	Signed   bool       `json:"signed"`
	SignedAt *time.Time `json:"signedAt"`
}

type Signatures struct {
	Owner  SignatureSlot `json:"owner"`
	Renter SignatureSlot `json:"renter"`
}

type Deal struct {
	ID              ID         `json:"id"`
	PropertyID      ID         `json:"propertyId"`
	OwnerID         ID         `json:"ownerId"`
	RenterID        ID         `json:"renterId"`
	StartDate       time.Time  `json:"startDate"`
	EndDate         time.Time  `json:"endDate"`
	MonthlyRent     float64    `json:"monthlyRent"`
	SecurityDeposit float64    `json:"securityDeposit"`
	Terms           string     `json:"terms"`
	Signatures      Signatures `json:"signatures"`
	Status          DealStatus `json:"status"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Party is one side of a deal.
type Party string

const (
	PartyOwner  Party = "owner"
	PartyRenter Party = "renter"
)

// PartyOf returns which side userID is on. The owner wins if the same user
// somehow appears on both sides.
func (d *Deal) PartyOf(userID ID) (Party, bool) {
	switch userID {
	case d.OwnerID:
		return PartyOwner, true
	case d.RenterID:
		return PartyRenter, true
	}
	return "", false
}

// Counterparty returns the user on the other side of p.
func (d *Deal) Counterparty(p Party) ID {
	if p == PartyOwner {
		return d.RenterID
	}
	return d.OwnerID
}

func (d *Deal) Slot(p Party) *SignatureSlot {
	if p == PartyOwner {
		return &d.Signatures.Owner
	}
	return &d.Signatures.Renter
}

func (d *Deal) FullySigned() bool {
	return d.Signatures.Owner.Signed && d.Signatures.Renter.Signed
}
