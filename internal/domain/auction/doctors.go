package auction

const (
	highTier int64 = 18000
	midTier  int64 = 16000
)

// Offers returns the doctors available for an amount. At 180.00 or more
// every doctor is offered and some are available now; from 160.00 the first
// three are offered for today or tomorrow; below that nobody is.
func Offers(amountCents int64) []Doctor {
	high := amountCents >= highTier
	mid := amountCents >= midTier

	pick := func(cond bool, yes, no string) string {
		if cond {
			return yes
		}
		return no
	}

	base := []Doctor{
		{
			ID:           "SP-123456",
			Name:         "Dr. Roberto Silva",
			UF:           "SP",
			CRM:          "123456",
			Specialty:    "cardiology",
			PriceCents:   max64(18000, amountCents),
			Availability: pick(high, AvailableNow, pick(mid, AvailableToday, AvailableTomorrow)),
		},
		{
			ID:           "RJ-234567",
			Name:         "Dra. Maria Santos",
			UF:           "RJ",
			CRM:          "234567",
			Specialty:    "general",
			PriceCents:   max64(17000, amountCents),
			Availability: pick(mid, AvailableToday, AvailableTomorrow),
		},
		{
			ID:           "MG-345678",
			Name:         "Dr. João Oliveira",
			UF:           "MG",
			CRM:          "345678",
			Specialty:    "psychiatry",
			PriceCents:   19000,
			Availability: pick(high, AvailableNow, AvailableToday),
		},
		{
			ID:           "SP-456789",
			Name:         "Dra. Ana Costa",
			UF:           "SP",
			CRM:          "456789",
			Specialty:    "dermatology",
			PriceCents:   20000,
			Availability: AvailableToday,
		},
	}

	switch {
	case high:
		return base
	case mid:
		return base[:3]
	default:
		return []Doctor{}
	}
}

// FindOffer returns the offered doctor with id, if any.
func FindOffer(amountCents int64, id string) (Doctor, bool) {
	for _, d := range Offers(amountCents) {
		if d.ID == id {
			return d, true
		}
	}
	return Doctor{}, false
}

// SearchStatus derives the bid status from a set of offers.
func SearchStatus(doctors []Doctor) string {
	if len(doctors) == 0 {
		return StatusNotFound
	}
	for _, d := range doctors {
		if d.Availability == AvailableNow {
			return StatusFoundImmediate
		}
	}
	return StatusFoundScheduled
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
