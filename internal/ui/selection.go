package ui

import (
	"errors"
	"fmt"
	"slices"
)

// Selection errors
var (
	ErrLastModel     = errors.New("at least one model must stay selected")
	ErrUnknownModel  = errors.New("unknown model")
	ErrTooManyModels = errors.New("too many models selected")
)

// Selection is the ordered set of models a message is sent to
type Selection struct {
	ids   []string
	max   int
	known func(id string) bool
}

// NewSelection starts from initial, dropping unknown ids and anything past
// max. When nothing valid remains, the first known model from fallback is
// selected.
func NewSelection(initial []string, max int, known func(id string) bool, fallback []string) *Selection {
	if max < 1 {
		max = 1
	}
	s := &Selection{max: max, known: known}
	for _, id := range initial {
		if len(s.ids) == max {
			break
		}
		if known(id) && !slices.Contains(s.ids, id) {
			s.ids = append(s.ids, id)
		}
	}
	if len(s.ids) == 0 {
		for _, id := range fallback {
			if known(id) {
				s.ids = append(s.ids, id)
				break
			}
		}
	}
	return s
}

// IDs returns the selected models in selection order
func (s *Selection) IDs() []string {
	return slices.Clone(s.ids)
}

// Has reports whether id is selected
func (s *Selection) Has(id string) bool {
	return slices.Contains(s.ids, id)
}

// Len returns the number of selected models
func (s *Selection) Len() int {
	return len(s.ids)
}

// Max returns the selection limit
func (s *Selection) Max() int {
	return s.max
}

// Toggle adds or removes id. It reports whether id is selected afterwards.
func (s *Selection) Toggle(id string) (bool, error) {
	if !s.known(id) {
		return false, fmt.Errorf("%w: %s", ErrUnknownModel, id)
	}
	if i := slices.Index(s.ids, id); i >= 0 {
		if len(s.ids) == 1 {
			return true, ErrLastModel
		}
		s.ids = slices.Delete(s.ids, i, i+1)
		return false, nil
	}
	if len(s.ids) >= s.max {
		return false, fmt.Errorf("%w: limit is %d", ErrTooManyModels, s.max)
	}
	s.ids = append(s.ids, id)
	return true, nil
}
