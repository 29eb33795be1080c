package vocab

const (
	ContextActivityStreams = "https://www.w3.org/ns/activitystreams"
	ContextSecurity        = "https://w3id.org/security/v1"

	// PublicAddressee marks an activity as publicly addressed.
	PublicAddressee = "https://www.w3.org/ns/activitystreams#Public"

	ContentTypeActivityJSON = "application/activity+json"
	ContentTypeLDJSON       = "application/ld+json"
	ContentTypeJRD          = "application/jrd+json"
)

const (
	TypePerson            = "Person"
	TypeNote              = "Note"
	TypeKey               = "Key"
	TypeOrderedCollection = "OrderedCollection"
)

const (
	FollowPending  = "pending"
	FollowAccepted = "accepted"
	FollowRejected = "rejected"
)

// ActivityKind lifts the wire type string into a closed variant so inbox
// dispatch stays exhaustive.
type ActivityKind int

const (
	KindUnknown ActivityKind = iota
	KindCreate
	KindFollow
	KindAccept
	KindUndo
)

func ParseActivityKind(s string) ActivityKind {
	switch s {
	case "Create":
		return KindCreate
	case "Follow":
		return KindFollow
	case "Accept":
		return KindAccept
	case "Undo":
		return KindUndo
	default:
		return KindUnknown
	}
}

func (k ActivityKind) String() string {
	switch k {
	case KindCreate:
		return "Create"
	case KindFollow:
		return "Follow"
	case KindAccept:
		return "Accept"
	case KindUndo:
		return "Undo"
	default:
		return "Unknown"
	}
}
