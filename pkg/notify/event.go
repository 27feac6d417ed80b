package notify

import "strings"

// Kind is the model an inbound event is about
type Kind int

const (
	// KindOther is any model without a dedicated kind
	KindOther Kind = iota
	// KindUser covers user and user_report events
	KindUser
	// KindSegment covers segment and users_segment events
	KindSegment
	// KindShip covers connector settings events
	KindShip
	// KindReport covers batch report events
	KindReport
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindSegment:
		return "segment"
	case KindShip:
		return "ship"
	case KindReport:
		return "report"
	default:
		return "other"
	}
}

// ReportUpdate is the canonical event whose sub-events are delivered to
// event handlers one by one
const ReportUpdate = "report:update"

// modelAliases maps raw model names onto canonical ones
var modelAliases = map[string]string{
	"user_report":   "user",
	"users_segment": "segment",
}

var kinds = map[string]Kind{
	"user":    KindUser,
	"segment": KindSegment,
	"ship":    KindShip,
	"report":  KindReport,
}

// EventName is a canonical "<model>:<action>" event name
type EventName struct {
	Kind   Kind
	Model  string
	Action string
}

// String returns the routing key
func (e EventName) String() string {
	return e.Model + ":" + e.Action
}

// Canonicalize parses an event subject such as "user_report:update" into
// its canonical name, here "user:update".
func Canonicalize(subject string) EventName {
	model, action, _ := strings.Cut(strings.TrimSpace(subject), ":")
	if alias, ok := modelAliases[model]; ok {
		model = alias
	}
	return EventName{
		Kind:   kinds[model],
		Model:  model,
		Action: action,
	}
}
