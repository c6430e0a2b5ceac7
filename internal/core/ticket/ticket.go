// Package ticket models the five ticket variants sold on the marketplace.
// A ticket is a shared base record plus a kind-specific payload selected by
// the business_type tag; the JSON form of the whole record is the asset's
// off-ledger metadata.
package ticket

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tokility/tokilityd/internal/core/economics"
)

// BusinessType tags the kind-specific payload of a ticket.
type BusinessType string

const (
	Concert     BusinessType = "concert"
	Conference  BusinessType = "conference"
	Cinema      BusinessType = "cinema"
	Restaurant  BusinessType = "restaurant"
	Appointment BusinessType = "appointment"
)

var ErrUnknownBusinessType = errors.New("unknown business type")

// ConcertDetails describe a concert admission.
type ConcertDetails struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Location string `json:"location"`
	Datetime string `json:"datetime"`
}

// CinemaDetails describe a seated cinema admission.
type CinemaDetails struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Datetime string `json:"datetime"`
	Seat     int    `json:"seat"`
	Row      int    `json:"row"`
}

// ConferenceDetails describe a conference pass.
type ConferenceDetails struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Duration string `json:"duration"`
	Datetime string `json:"datetime"`
}

// AppointmentDetails describe a booked appointment slot.
type AppointmentDetails struct {
	Duration   int    `json:"duration"`
	Datetime   string `json:"datetime"`
	DoctorName string `json:"doctor_name"`
}

// RestaurantDetails describe a restaurant reservation.
type RestaurantDetails struct {
	Type     string `json:"type"`
	Datetime string `json:"datetime"`
	Name     string `json:"name"`
}

// Ticket is the full metadata record of one marketplace asset. Exactly one
// of the detail fields is set, matching BusinessType.
type Ticket struct {
	Configuration economics.Configuration `json:"asa_configuration"`
	BusinessType  BusinessType            `json:"business_type"`
	Issuer        string                  `json:"issuer"`

	Concert     *ConcertDetails     `json:"concert,omitempty"`
	Conference  *ConferenceDetails  `json:"conference,omitempty"`
	Cinema      *CinemaDetails      `json:"cinema,omitempty"`
	Restaurant  *RestaurantDetails  `json:"restaurant,omitempty"`
	Appointment *AppointmentDetails `json:"appointment,omitempty"`
}

// Validate checks that the tag matches the populated payload and that the
// embedded configuration is sound.
func (t *Ticket) Validate() error {
	if err := t.Configuration.Validate(); err != nil {
		return err
	}
	var want bool
	switch t.BusinessType {
	case Concert:
		want = t.Concert != nil
	case Conference:
		want = t.Conference != nil
	case Cinema:
		want = t.Cinema != nil
	case Restaurant:
		want = t.Restaurant != nil
	case Appointment:
		want = t.Appointment != nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBusinessType, t.BusinessType)
	}
	if !want {
		return fmt.Errorf("business type %q has no matching details", t.BusinessType)
	}
	return nil
}

// Describe returns a short human-readable summary of the ticket, dispatched
// on the business type.
func (t *Ticket) Describe() string {
	switch t.BusinessType {
	case Concert:
		if t.Concert != nil {
			return fmt.Sprintf("concert %s at %s, %s", t.Concert.Name, t.Concert.Location, t.Concert.Datetime)
		}
	case Conference:
		if t.Conference != nil {
			return fmt.Sprintf("conference %s (%s), %s", t.Conference.Name, t.Conference.Duration, t.Conference.Datetime)
		}
	case Cinema:
		if t.Cinema != nil {
			return fmt.Sprintf("cinema %s row %d seat %d, %s", t.Cinema.Name, t.Cinema.Row, t.Cinema.Seat, t.Cinema.Datetime)
		}
	case Restaurant:
		if t.Restaurant != nil {
			return fmt.Sprintf("restaurant %s, %s", t.Restaurant.Name, t.Restaurant.Datetime)
		}
	case Appointment:
		if t.Appointment != nil {
			return fmt.Sprintf("appointment with %s, %s", t.Appointment.DoctorName, t.Appointment.Datetime)
		}
	}
	return string(t.BusinessType)
}

// Encode serializes the ticket metadata to its canonical JSON form.
func (t *Ticket) Encode() ([]byte, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(t)
}

// Decode parses ticket metadata produced by Encode.
func Decode(data []byte) (*Ticket, error) {
	var t Ticket
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}
