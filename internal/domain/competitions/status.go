package competitions

// PublicStatus is the lifecycle stage shown on the public calendar.
type PublicStatus string

const (
	PublicOpen        PublicStatus = "open"
	PublicReserved    PublicStatus = "reserved"
	PublicConfirmed   PublicStatus = "confirmed"
	PublicAnnounced   PublicStatus = "announced"
	PublicSuspended   PublicStatus = "suspended"
	PublicUnavailable PublicStatus = "unavailable"
)

var publicLabels = map[PublicStatus]string{
	PublicOpen:        "Abierto",
	PublicReserved:    "Reservado",
	PublicConfirmed:   "Confirmado",
	PublicAnnounced:   "Anunciado",
	PublicSuspended:   "Suspendido",
	PublicUnavailable: "No disponible",
}

// PublicStatuses lists every public status in display order.
func PublicStatuses() []PublicStatus {
	return []PublicStatus{PublicOpen, PublicReserved, PublicConfirmed, PublicAnnounced, PublicSuspended, PublicUnavailable}
}

func (s PublicStatus) Valid() bool {
	_, ok := publicLabels[s]
	return ok
}

// Label is the Spanish display name.
func (s PublicStatus) Label() string {
	if label, ok := publicLabels[s]; ok {
		return label
	}
	return string(s)
}

// InternalStatus is the organizing progress tracked by delegates.
type InternalStatus string

const (
	InternalAskedForHelp     InternalStatus = "asked_for_help"
	InternalLookingForVenue  InternalStatus = "looking_for_venue"
	InternalVenueFound       InternalStatus = "venue_found"
	InternalWCAApproved      InternalStatus = "wca_approved"
	InternalRegistrationOpen InternalStatus = "registration_open"
	InternalCelebrated       InternalStatus = "celebrated"
	InternalCancelled        InternalStatus = "cancelled"
)

var internalLabels = map[InternalStatus]string{
	InternalAskedForHelp:     "Pidió ayuda",
	InternalLookingForVenue:  "Buscando sede",
	InternalVenueFound:       "Sede encontrada",
	InternalWCAApproved:      "Aprobada por la WCA",
	InternalRegistrationOpen: "Registro abierto",
	InternalCelebrated:       "Celebrada",
	InternalCancelled:        "Cancelada",
}

// InternalStatuses lists every internal status in workflow order.
func InternalStatuses() []InternalStatus {
	return []InternalStatus{
		InternalAskedForHelp, InternalLookingForVenue, InternalVenueFound,
		InternalWCAApproved, InternalRegistrationOpen, InternalCelebrated, InternalCancelled,
	}
}

func (s InternalStatus) Valid() bool {
	_, ok := internalLabels[s]
	return ok
}

func (s InternalStatus) Label() string {
	if label, ok := internalLabels[s]; ok {
		return label
	}
	return string(s)
}
