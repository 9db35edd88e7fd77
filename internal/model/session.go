package model

import "time"

// Session is one scheduled, capacity-bounded occurrence of a workshop.
// Participants are stored in the `session_participants` table; the
// ParticipantCount column mirrors the number of those rows and is only
// changed together with them, so it can be compared against Capacity in a
// single conditional UPDATE.
//
// Fields:
//  ID               – primary key identifier.
//  WorkshopID       – owning workshop.
//  StartsAt         – date and time of the session (UTC).
//  Location         – venue or meeting link.
//  Capacity         – maximum number of participants (>= 1).
//  PriceRef         – payment provider price identifier for paid workshops.
//  ParticipantCount – number of admitted participants.
type Session struct {
	ID               uint64    // sessions.id
	WorkshopID       uint64    // sessions.workshop_id
	StartsAt         time.Time // sessions.starts_at
	Location         string    // sessions.location
	Capacity         uint32    // sessions.capacity
	PriceRef         string    // sessions.price_ref
	ParticipantCount uint32    // sessions.participant_count
	CreatedAt        time.Time // sessions.created_at
	UpdatedAt        time.Time // sessions.updated_at
}

// Availability returns the number of places left, capacity minus admitted
// participants.  It is only meaningful for the row it was read from and
// must not be cached across a booking decision.
func (s Session) Availability() int {
	return int(s.Capacity) - int(s.ParticipantCount)
}

// Participant links a user to a session they were admitted to.
type Participant struct {
	SessionID uint64    // session_participants.session_id
	UserID    uint64    // session_participants.user_id
	Email     string    // users.email (joined for admin listings)
	CreatedAt time.Time // session_participants.created_at
}
