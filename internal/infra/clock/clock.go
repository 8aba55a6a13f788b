package clock

import (
	"fmt"
	"time"

	"post-drip-bot/internal/domain"
)

// System реализует domain.Clock в часовом поясе площадки, а не машины.
type System struct {
	loc *time.Location
}

var _ domain.Clock = (*System)(nil)

// NewSystem создаёт часы в указанном поясе IANA.
func NewSystem(tz string) (*System, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("часовой пояс %q: %w", tz, err)
	}
	return &System{loc: loc}, nil
}

// Now возвращает текущее время в поясе площадки.
func (c *System) Now() time.Time {
	return time.Now().In(c.loc)
}

// Location возвращает пояс площадки.
func (c *System) Location() *time.Location {
	return c.loc
}
