package rail

import "errors"

// Sentinel errors for every recoverable command failure. Callers match them
// with errors.Is; Kind converts them to stable wire identifiers for command
// reject messages.
var (
	ErrPortOccupied         = errors.New("port already bound to a segment")
	ErrSelfLoop             = errors.New("segment endpoints resolve to the same port")
	ErrInvalidGeometry      = errors.New("curve endpoints inconsistent with junction positions")
	ErrSegmentOccupied      = errors.New("segment is occupied by a train")
	ErrPortNotOccupied      = errors.New("exit direction has no segment")
	ErrSameDirection        = errors.New("exit direction equals arrival direction")
	ErrInvalidArrival       = errors.New("arrival direction has no segment")
	ErrNoRoute              = errors.New("junction has no selectable exit")
	ErrUnreachable          = errors.New("destination junction is unreachable")
	ErrInconsistentSnapshot = errors.New("snapshot references ids that do not resolve")
	ErrUnknownJunction      = errors.New("junction does not exist")
	ErrUnknownSegment       = errors.New("segment does not exist")
)

var kinds = map[error]string{
	ErrPortOccupied:         "portOccupied",
	ErrSelfLoop:             "selfLoop",
	ErrInvalidGeometry:      "invalidGeometry",
	ErrSegmentOccupied:      "segmentOccupied",
	ErrPortNotOccupied:      "portNotOccupied",
	ErrSameDirection:        "sameDirection",
	ErrInvalidArrival:       "invalidArrival",
	ErrNoRoute:              "noRoute",
	ErrUnreachable:          "unreachable",
	ErrInconsistentSnapshot: "inconsistentSnapshot",
	ErrUnknownJunction:      "unknownJunction",
	ErrUnknownSegment:       "unknownSegment",
}

// Kind returns the stable wire identifier for a command failure, or "internal"
// when the error does not wrap one of the sentinel kinds.
func Kind(err error) string {
	for sentinel, kind := range kinds {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return "internal"
}
