// Package queue defines message payloads exchanged over the message broker.
package queue

// Activity message types.
const (
	TypeReservationJoined = "reservation.joined"
	TypeReservationLeft   = "reservation.left"
	TypeEventDeleted      = "event.deleted"
	TypeEventLiked        = "event.liked"
)

// ActivityMessage is published after a reservation or lifecycle transaction
// commits. It carries enough information for downstream consumers to log,
// notify or feed analytics without querying the primary database.
type ActivityMessage struct {
	Type                string `json:"type"`
	EventID             string `json:"event_id"`
	ParticipantID       string `json:"participant_id,omitempty"`
	ActorID             string `json:"actor_id,omitempty"`
	ReservationID       string `json:"reservation_id,omitempty"`
	AttendeeCount       int    `json:"attendee_count"`
	RemovedReservations int    `json:"removed_reservations,omitempty"`
	LikesCount          int    `json:"likes_count,omitempty"`
	OccurredAt          string `json:"occurred_at"`
}

// AssetCleanupMessage asks the cleanup consumer to delete an asset whose
// best-effort deletion failed inline.
type AssetCleanupMessage struct {
	Ref      string `json:"ref"`
	EventID  string `json:"event_id,omitempty"`
	Reason   string `json:"reason"`
	FailedAt string `json:"failed_at"`
}
