package model

import "time"

// Workshop is a catalogue entry offered by the organisation.  A workshop
// owns one or more sessions; its price applies to every session.  A price
// of zero marks the workshop as free, which lets users register without
// going through the payment provider.
//
// Fields:
//  ID               – primary key identifier.
//  Title            – display title.
//  Organiser        – optional organiser name.
//  ShortDescription – teaser shown in listings.
//  FullDescription  – long form description.
//  ImageURL         – optional cover image.
//  Duration         – free-form duration text (e.g. "2 hours").
//  Category         – catalogue category.
//  PriceCents       – price in minor units; never negative.
//  Website          – optional external link.
//  SessionIDs       – sessions owned by the workshop, ordered by start time.
type Workshop struct {
	ID               uint64    // workshops.id
	Title            string    // workshops.title
	Organiser        string    // workshops.organiser
	ShortDescription string    // workshops.short_description
	FullDescription  string    // workshops.full_description
	ImageURL         string    // workshops.image_url
	Duration         string    // workshops.duration
	Category         string    // workshops.category
	PriceCents       uint32    // workshops.price_cents
	Website          string    // workshops.website
	SessionIDs       []uint64  // derived from sessions.workshop_id
	CreatedAt        time.Time // workshops.created_at
	UpdatedAt        time.Time // workshops.updated_at
}

// IsFree reports whether sessions of the workshop can be booked without payment.
func (w Workshop) IsFree() bool { return w.PriceCents == 0 }
