// Package domain defines the persistence models for users, chat groups,
// memberships, and messages. These types are mapped with GORM and form the
// core data layer of the group chat service.
package domain

import "time"

// User is the local projection of an identity-provider account. Rows are
// upserted from session claims and only carry what message expansion needs.
type User struct {
	ID        string    `json:"id"         gorm:"type:varchar(64);primaryKey"`
	Name      string    `json:"name"       gorm:"type:varchar(255);not null;default:''"`
	Role      string    `json:"role"       gorm:"type:varchar(32);not null;default:''"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Group is a chat channel owned by a manager.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - ManagerID: the user allowed to edit or delete the group.
//   - Members: denormalized member list, one GroupMember row per user.
//   - LastMessageID: most recent message, nil for an empty group.
//   - LastSeq: sequence number handed to the most recent message.
type Group struct {
	ID            string        `json:"id"                        gorm:"type:char(36);primaryKey"`
	Name          string        `json:"name"                      gorm:"type:varchar(255);not null"`
	ManagerID     string        `json:"manager_id"                gorm:"type:varchar(64);not null;index:idx_group_manager"`
	Members       []GroupMember `json:"members,omitempty"         gorm:"foreignKey:GroupID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	LastMessageID *string       `json:"last_message_id,omitempty" gorm:"type:char(36)"`
	LastSeq       int64         `json:"-"                         gorm:"not null;default:0"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// TableName returns the database table name for Group.
func (Group) TableName() string { return "chat_groups" }

// MemberIDs returns the user ids in g.Members in stored order.
func (g Group) MemberIDs() []string {
	out := make([]string, 0, len(g.Members))
	for _, m := range g.Members {
		out = append(out, m.UserID)
	}
	return out
}

// GroupMember is one entry of a group's member list.
type GroupMember struct {
	GroupID string    `json:"-"        gorm:"type:char(36);primaryKey"`
	UserID  string    `json:"user_id"  gorm:"type:varchar(64);primaryKey;index:idx_member_user"`
	AddedAt time.Time `json:"added_at" gorm:"autoCreateTime"`
}

// TableName returns the database table name for GroupMember.
func (GroupMember) TableName() string { return "group_members" }

// UserGroup is a user's membership record within a group. It tracks the
// read progress of that user; a nil LastReadMessageID means nothing read.
type UserGroup struct {
	ID                string    `json:"id"                             gorm:"type:char(36);primaryKey"`
	UserID            string    `json:"user_id"                        gorm:"type:varchar(64);not null;uniqueIndex:ux_user_group,priority:1"`
	GroupID           string    `json:"group_id"                       gorm:"type:char(36);not null;uniqueIndex:ux_user_group,priority:2;index:idx_user_groups_group"`
	LastReadMessageID *string   `json:"last_read_message_id,omitempty" gorm:"type:char(36)"`
	JoinedAt          time.Time `json:"joined_at"                      gorm:"autoCreateTime"`

	Group Group `json:"-" gorm:"foreignKey:GroupID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for UserGroup.
func (UserGroup) TableName() string { return "user_groups" }

// Message is a single immutable chat entry within a group.
//
// Seq is assigned per group inside the send transaction and gives a strict
// total order; SentAt never decreases along it. SenderName is not stored,
// it is filled by queries that join users.
type Message struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	GroupID    string    `json:"group_id"    gorm:"type:char(36);not null;uniqueIndex:ux_group_seq,priority:1"`
	SenderID   string    `json:"sender_id"   gorm:"type:varchar(64);not null;index:idx_msg_sender"`
	SenderName string    `json:"sender_name" gorm:"->;-:migration"`
	Content    string    `json:"content"     gorm:"type:text;not null"`
	Seq        int64     `json:"seq"         gorm:"not null;uniqueIndex:ux_group_seq,priority:2"`
	SentAt     time.Time `json:"sent_at"     gorm:"not null"`

	Group Group `json:"-" gorm:"foreignKey:GroupID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }
