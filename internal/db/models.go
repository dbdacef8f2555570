package db

import "time"

const (
	RoleUser     = "user"
	RoleBusiness = "business"
	RoleAdmin    = "admin"
)

type User struct {
	ID              int64      `json:"id"`
	Email           string     `json:"email"`
	DisplayName     string     `json:"display_name"`
	Bio             string     `json:"bio"`
	AvatarURL       string     `json:"avatar_url"`
	Role            string     `json:"role"`
	HomeSuburb      string     `json:"home_suburb"`
	HomeRegion      string     `json:"home_region"`
	HomeLat         *float64   `json:"home_lat,omitempty"`
	HomeLng         *float64   `json:"home_lng,omitempty"`
	TermsAcceptedAt *time.Time `json:"terms_accepted_at,omitempty"`
	OnboardedAt     *time.Time `json:"onboarded_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

func (u *User) AcceptedTerms() bool { return u.TermsAcceptedAt != nil }

// PublicUser is what other users get to see.
type PublicUser struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
	Bio         string `json:"bio"`
	HomeSuburb  string `json:"home_suburb"`
	Role        string `json:"role"`
}

func (u *User) Public() PublicUser {
	return PublicUser{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		Bio:         u.Bio,
		HomeSuburb:  u.HomeSuburb,
		Role:        u.Role,
	}
}

type Post struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Category     string    `json:"category"`
	Severity     string    `json:"severity"`
	Status       string    `json:"status"`
	Lat          float64   `json:"lat"`
	Lng          float64   `json:"lng"`
	LocationText string    `json:"location_text"`
	Suburb       string    `json:"suburb"`
	Region       string    `json:"region"`
	PhotoURL     string    `json:"photo_url"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	// computed at query time
	LikeCount    int         `json:"like_count"`
	CommentCount int         `json:"comment_count"`
	Liked        bool        `json:"liked"`
	Author       *PublicUser `json:"author,omitempty"`
}

type Comment struct {
	ID        int64       `json:"id"`
	PostID    int64       `json:"post_id"`
	UserID    int64       `json:"user_id"`
	ParentID  *int64      `json:"parent_id,omitempty"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
	Author    *PublicUser `json:"author,omitempty"`
}

type Conversation struct {
	ID        int64     `json:"id"`
	UserA     int64     `json:"user_a"`
	UserB     int64     `json:"user_b"`
	CreatedAt time.Time `json:"created_at"`
}

// Other returns the participant that is not userID.
func (c *Conversation) Other(userID int64) int64 {
	if c.UserA == userID {
		return c.UserB
	}
	return c.UserA
}

type ConversationSummary struct {
	Conversation
	OtherUser   PublicUser `json:"other_user"`
	LastMessage *Message   `json:"last_message,omitempty"`
	UnreadCount int        `json:"unread_count"`
}

type Message struct {
	ID             int64      `json:"id"`
	ConversationID int64      `json:"conversation_id"`
	SenderID       int64      `json:"sender_id"`
	Content        string     `json:"content"`
	CreatedAt      time.Time  `json:"created_at"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
}

const (
	AdPending  = "pending"
	AdApproved = "approved"
	AdRejected = "rejected"
	AdPaused   = "paused"
)

type Ad struct {
	ID               int64     `json:"id"`
	OwnerID          int64     `json:"owner_id"`
	BusinessName     string    `json:"business_name"`
	Title            string    `json:"title"`
	Content          string    `json:"content"`
	ImageURL         string    `json:"image_url"`
	CTAURL           string    `json:"cta_url"`
	CTAText          string    `json:"cta_text"`
	Suburb           string    `json:"suburb"`
	Region           string    `json:"region"`
	Status           string    `json:"status"`
	DailyBudgetCents int64     `json:"daily_budget_cents"`
	Impressions      int64     `json:"impressions"`
	Clicks           int64     `json:"clicks"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type Story struct {
	ID        int64       `json:"id"`
	UserID    int64       `json:"user_id"`
	Content   string      `json:"content"`
	MediaURL  string      `json:"media_url"`
	Suburb    string      `json:"suburb"`
	CreatedAt time.Time   `json:"created_at"`
	ExpiresAt time.Time   `json:"expires_at"`
	Viewed    bool        `json:"viewed"`
	Author    *PublicUser `json:"author,omitempty"`
}

type PushSubscription struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Endpoint  string    `json:"endpoint"`
	P256dh    string    `json:"p256dh"`
	Auth      string    `json:"auth"`
	CreatedAt time.Time `json:"created_at"`
}

type NotificationPrefs struct {
	UserID      int64    `json:"user_id"`
	Enabled     bool     `json:"enabled"`
	Categories  []string `json:"categories"`
	MinSeverity string   `json:"min_severity"`
	Regions     []string `json:"regions"`
	RadiusKm    float64  `json:"radius_km"`
}

// DefaultNotificationPrefs applies to users who never saved preferences.
func DefaultNotificationPrefs(userID int64) NotificationPrefs {
	return NotificationPrefs{
		UserID:      userID,
		Enabled:     true,
		Categories:  []string{},
		MinSeverity: "high",
		Regions:     []string{},
	}
}

type Notification struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	IncidentID string     `json:"incident_id"`
	Title      string     `json:"title"`
	Body       string     `json:"body"`
	CreatedAt  time.Time  `json:"created_at"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
}

// Subscriber is a user who may receive notifications, with the
// preferences in effect for them.
type Subscriber struct {
	User    User
	Prefs   NotificationPrefs
	HasPush bool
}
