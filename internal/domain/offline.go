package domain

import (
	"fmt"
	"time"
)

type SavedProperty struct {
	UserID     string    `json:"userId"`
	PropertyID string    `json:"propertyId"`
	SavedAt    time.Time `json:"savedAt"`
}

type PhotoStatus string

const (
	PhotoPending  PhotoStatus = "pending"
	PhotoUploaded PhotoStatus = "uploaded"
	PhotoFailed   PhotoStatus = "failed"
)

func (s PhotoStatus) Valid() bool {
	return s == PhotoPending || s == PhotoUploaded || s == PhotoFailed
}

// MaxPhotoBytes caps a picked photo's decoded size.
const MaxPhotoBytes = 5 << 20

// PhotoPayload is what the UI hands over when a photo is picked.
// Data is a data URI or bare base64.
type PhotoPayload struct {
	Data     string `json:"data" validate:"required,datauri|base64"`
	FileName string `json:"fileName" validate:"required,max=255"`
	FileSize int64  `json:"fileSize" validate:"gt=0,lte=5242880"`
	MIMEType string `json:"mimeType" validate:"required,startswith=image/"`
}

type PendingPhotoUpload struct {
	ID         string      `json:"id"`
	Seq        uint64      `json:"seq"`
	PropertyID string      `json:"propertyId"`
	Data       string      `json:"data"`
	FileName   string      `json:"fileName"`
	FileSize   int64       `json:"fileSize"`
	MIMEType   string      `json:"mimeType"`
	EnqueuedAt time.Time   `json:"enqueuedAt"`
	Status     PhotoStatus `json:"status"`
}

// PhotoKey addresses a locally stored photo blob.
func PhotoKey(propertyID string, index int) string {
	return fmt.Sprintf("%s-%d", propertyID, index)
}

type OfflineSnapshot struct {
	Properties      []Property        `json:"properties"`
	SavedProperties []SavedProperty   `json:"savedProperties"`
	Photos          map[string]string `json:"photos"`
	LastSync        time.Time         `json:"lastSync"`
}

// RecentSearch is one entry of the recent-search list.
type RecentSearch struct {
	ID          string         `json:"id"`
	Filter      PropertyFilter `json:"filter"`
	ResultCount int            `json:"resultCount"`
	Timestamp   time.Time      `json:"timestamp"`
}

type MessageKind string

const (
	MessageText   MessageKind = "text"
	MessageSystem MessageKind = "system"
)

type Message struct {
	ID         string      `json:"id"`
	ThreadID   string      `json:"threadId"`
	SenderID   string      `json:"senderId"`
	ReceiverID string      `json:"receiverId"`
	PropertyID string      `json:"propertyId,omitempty"`
	Content    string      `json:"content"`
	Timestamp  time.Time   `json:"timestamp"`
	Read       bool        `json:"read"`
	Kind       MessageKind `json:"type"`
}

type MessageThread struct {
	ID              string    `json:"id"`
	ParticipantID   string    `json:"participantId"`
	ParticipantName string    `json:"participantName"`
	ParticipantRole Role      `json:"participantRole"`
	PropertyTitle   string    `json:"propertyTitle,omitempty"`
	LastMessage     string    `json:"lastMessage"`
	LastMessageTime time.Time `json:"lastMessageTime"`
	UnreadCount     int       `json:"unreadCount"`
}
