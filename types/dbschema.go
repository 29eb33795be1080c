package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// StringList is a recipient list stored as a JSON array in a text column.
// Keeping the JSON quoting lets the store match a full URI inside the
// column without matching substrings of other URIs.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = StringList{}
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*l = StringList{}
		return nil
	case []byte:
		return json.Unmarshal(v, (*[]string)(l))
	case string:
		return json.Unmarshal([]byte(v), (*[]string)(l))
	default:
		return fmt.Errorf("unsupported type for StringList: %T", src)
	}
}

// Actor is a db model of a local or known actor.
type Actor struct {
	ID            string    `json:"id" gorm:"primaryKey;type:text"`
	Username      string    `json:"username" gorm:"type:text;uniqueIndex"`
	Name          string    `json:"name" gorm:"type:text"`
	Summary       string    `json:"summary" gorm:"type:text"`
	PublicKeyPem  string    `json:"publickey" gorm:"type:text"`
	PrivateKeyPem string    `json:"-" gorm:"type:text"`
	CreatedAt     time.Time `json:"cdate"`
	UpdatedAt     time.Time `json:"mdate"`
}

// Local reports whether this node holds the actor's private key.
func (a Actor) Local() bool {
	return a.PrivateKeyPem != ""
}

// Activity is a db model of a received or originated activity. The object
// payload is stored as opaque JSON text; only the dispatcher interprets it.
type Activity struct {
	ID        string     `json:"id" gorm:"primaryKey;type:text"`
	ActorID   string     `json:"actor" gorm:"type:text;index"`
	Type      string     `json:"type" gorm:"type:text"`
	Object    string     `json:"object" gorm:"type:text"`
	To        StringList `json:"to" gorm:"column:to_recipients;type:text"`
	CC        StringList `json:"cc" gorm:"column:cc_recipients;type:text"`
	Published time.Time  `json:"published" gorm:"index"`
	CreatedAt time.Time  `json:"cdate"`
}

// Note is a db model of a content object referenced by a Create.
type Note struct {
	ID           string         `json:"id" gorm:"primaryKey;type:text"`
	AttributedTo string         `json:"attributedTo" gorm:"type:text;index"`
	Content      string         `json:"content" gorm:"type:text"`
	To           StringList     `json:"to" gorm:"column:to_recipients;type:text"`
	CC           StringList     `json:"cc" gorm:"column:cc_recipients;type:text"`
	Published    time.Time      `json:"published" gorm:"index"`
	InReplyTo    string         `json:"inReplyTo" gorm:"type:text"`
	Tags         pq.StringArray `json:"tags" gorm:"type:text[]"`
	CreatedAt    time.Time      `json:"cdate"`
}

// FollowRelation is a db model of a directed follow edge.
// At most one non-rejected relation may exist per (follower, following) pair.
type FollowRelation struct {
	ID          string    `json:"id" gorm:"primaryKey;type:text"`
	FollowerID  string    `json:"follower" gorm:"type:text;index:idx_follow_pair"`
	FollowingID string    `json:"following" gorm:"type:text;index:idx_follow_pair"`
	Status      string    `json:"status" gorm:"type:text"`
	CreatedAt   time.Time `json:"cdate"`
	UpdatedAt   time.Time `json:"mdate"`
}
