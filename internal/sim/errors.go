package sim

import (
	"errors"

	"tracks-and-trains/server/internal/rail"
)

// Simulation-level command failures. Track-level kinds live in the rail
// package; these cover trains, which the graph knows nothing about.
var (
	ErrUnknownTrain = errors.New("train does not exist")
	ErrTrainMoving  = errors.New("train must be stopped")
	ErrTrainCrashed = errors.New("train is crashed")
	ErrBadCommand   = errors.New("command payload missing or malformed")
)

var simKinds = map[error]string{
	ErrUnknownTrain: "unknownTrain",
	ErrTrainMoving:  "trainMoving",
	ErrTrainCrashed: "trainCrashed",
	ErrBadCommand:   "badCommand",
}

// reasonFor converts a command failure into its stable wire identifier.
func reasonFor(err error) string {
	for sentinel, kind := range simKinds {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return rail.Kind(err)
}
