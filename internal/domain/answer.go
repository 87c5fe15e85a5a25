package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

type answerKind uint8

const (
	answerNone answerKind = iota
	answerSingle
	answerMulti
)

// Answer is either no answer, a single option index or a set of option indexes.
// The zero value is "no answer".
type Answer struct {
	kind    answerKind
	indexes []int
}

// NoAnswer is the empty submission used for timeouts.
func NoAnswer() Answer { return Answer{} }

// SingleAnswer selects exactly one option.
func SingleAnswer(index int) Answer {
	return Answer{kind: answerSingle, indexes: []int{index}}
}

// MultiAnswer selects a set of options. Duplicates are collapsed and the set is kept sorted.
func MultiAnswer(indexes ...int) Answer {
	set := slices.Clone(indexes)
	slices.Sort(set)
	return Answer{kind: answerMulti, indexes: slices.Compact(set)}
}

func (a Answer) IsNone() bool { return a.kind == answerNone }

func (a Answer) IsMulti() bool { return a.kind == answerMulti }

// Index returns the selected option of a single answer.
func (a Answer) Index() (int, bool) {
	if a.kind != answerSingle {
		return 0, false
	}
	return a.indexes[0], true
}

// Indexes returns a copy of the selected options in ascending order.
func (a Answer) Indexes() []int {
	return slices.Clone(a.indexes)
}

// SameSelection reports whether both answers select exactly the same options.
func (a Answer) SameSelection(other Answer) bool {
	if a.IsNone() || other.IsNone() {
		return false
	}
	left, right := a.Indexes(), other.Indexes()
	slices.Sort(left)
	slices.Sort(right)
	return slices.Equal(slices.Compact(left), slices.Compact(right))
}

// Text joins the option labels selected by the answer.
func (a Answer) Text(options []string) string {
	parts := make([]string, 0, len(a.indexes))
	for _, idx := range a.indexes {
		if idx >= 0 && idx < len(options) {
			parts = append(parts, options[idx])
		}
	}
	return strings.Join(parts, ", ")
}

func (a Answer) String() string {
	switch a.kind {
	case answerSingle:
		return fmt.Sprintf("%d", a.indexes[0])
	case answerMulti:
		return fmt.Sprintf("%v", a.indexes)
	default:
		return "none"
	}
}

// MarshalJSON encodes no answer as null, a single answer as a number and a set as an array.
func (a Answer) MarshalJSON() ([]byte, error) {
	switch a.kind {
	case answerSingle:
		return json.Marshal(a.indexes[0])
	case answerMulti:
		return json.Marshal(a.indexes)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts null, an index, an option letter ("A".."Z") or an array of either.
func (a *Answer) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = NoAnswer()
		return nil
	}

	if data[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("%w: answer: %v", ErrInvalidArgument, err)
		}
		indexes := make([]int, 0, len(raw))
		for _, item := range raw {
			idx, err := decodeIndex(item)
			if err != nil {
				return err
			}
			indexes = append(indexes, idx)
		}
		*a = MultiAnswer(indexes...)
		return nil
	}

	idx, err := decodeIndex(data)
	if err != nil {
		return err
	}
	*a = SingleAnswer(idx)
	return nil
}

func decodeIndex(data []byte) (int, error) {
	var idx int
	if err := json.Unmarshal(data, &idx); err == nil {
		if idx < 0 {
			return 0, fmt.Errorf("%w: negative option index %d", ErrInvalidArgument, idx)
		}
		return idx, nil
	}

	var letter string
	if err := json.Unmarshal(data, &letter); err != nil {
		return 0, fmt.Errorf("%w: answer must be an index or option letter", ErrInvalidArgument)
	}
	letter = strings.ToUpper(strings.TrimSpace(letter))
	if len(letter) != 1 || letter[0] < 'A' || letter[0] > 'Z' {
		return 0, fmt.Errorf("%w: unknown option %q", ErrInvalidArgument, letter)
	}
	return int(letter[0] - 'A'), nil
}
