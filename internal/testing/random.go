package testing

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/tokility/tokilityd/internal/core/economics"
	"github.com/tokility/tokilityd/internal/core/ticket"
)

// RandomConfig generates a valid randomized term sheet issued by the
// given creator. The resale ceiling always leaves room above the creator
// fee, so any generated sheet admits at least one legal ask.
func RandomConfig(rng *rand.Rand, creator *Account) economics.Configuration {
	primary := 100_000 + uint64(rng.Intn(1_900_000))
	creatorFee := 1_000 + uint64(rng.Intn(200_000))
	platformFee := 1_000 + uint64(rng.Intn(50_000))
	cap := creatorFee + primary + uint64(rng.Intn(2_000_000))

	deadline := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).
		Add(time.Duration(1+rng.Intn(365*24)) * time.Hour)

	return economics.Configuration{
		PrimaryPrice:   primary,
		PlatformFee:    platformFee,
		ResaleCap:      cap,
		CreatorFee:     creatorFee,
		ResaleAllowed:  rng.Intn(4) != 0,
		ResaleDeadline: deadline.Unix(),
		GiftingAllowed: rng.Intn(4) != 0,
		CreatorAddress: creator.Address,
	}
}

// RandomTicket wraps a random term sheet in one of the five ticket
// variants.
func RandomTicket(rng *rand.Rand, creator *Account) *ticket.Ticket {
	config := RandomConfig(rng, creator)
	tk := &ticket.Ticket{
		Configuration: config,
		Issuer:        creator.Address,
	}
	when := time.Unix(config.ResaleDeadline, 0).Format(time.RFC3339)
	switch rng.Intn(5) {
	case 0:
		tk.BusinessType = ticket.Concert
		tk.Concert = &ticket.ConcertDetails{Type: "concert", Name: fmt.Sprintf("Show %d", rng.Intn(1000)), Location: "Main Arena", Datetime: when}
	case 1:
		tk.BusinessType = ticket.Conference
		tk.Conference = &ticket.ConferenceDetails{Type: "conference", Name: "GopherMeet", Duration: "2 days", Datetime: when}
	case 2:
		tk.BusinessType = ticket.Cinema
		tk.Cinema = &ticket.CinemaDetails{Type: "cinema", Name: "Premiere", Datetime: when, Seat: 1 + rng.Intn(30), Row: 1 + rng.Intn(20)}
	case 3:
		tk.BusinessType = ticket.Restaurant
		tk.Restaurant = &ticket.RestaurantDetails{Type: "restaurant", Name: "Chez Gopher", Datetime: when}
	default:
		tk.BusinessType = ticket.Appointment
		tk.Appointment = &ticket.AppointmentDetails{Duration: 30, Datetime: when, DoctorName: "Dr. Pike"}
	}
	return tk
}
