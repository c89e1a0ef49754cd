package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/glyphcast/internal/incantation"
)

// Pinger is implemented by dependencies that can report reachability, such
// as castlog.PostgresSink.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck returns a Checker named name that pings p.
func PingCheck(name string, p Pinger) Checker {
	return Checker{
		Name: name,
		Check: func(ctx context.Context) error {
			if err := p.Ping(ctx); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
			return nil
		},
	}
}

// LibraryCheck fails while lib holds no entries. An empty library makes
// every cast a miss.
func LibraryCheck(lib *incantation.Library) Checker {
	return Checker{
		Name: "library",
		Check: func(context.Context) error {
			if lib == nil || lib.Len() == 0 {
				return errors.New("no incantations loaded")
			}
			return nil
		},
	}
}
