package plink

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"
)

type (
	// Cue is an action scheduled to happen at a given program position. Cues
	// are ordered only by their Time.
	Cue struct {
		Time   Tick
		Action Action
	}

	// Action is what a Cue does when it is played. The set of actions is
	// closed; switch over the concrete types to handle them. CodeStatement is
	// currently the only one.
	Action interface {
		isAction()
	}

	// CodeStatement is a piece of code to be evaluated by the cue executor.
	// The transport does not care what the code means.
	CodeStatement string

	// Score is the list of all cues of a piece. The list is not kept in time
	// order: cues can be appended in any order, and the PlayCursor sorts them
	// when playback starts.
	Score struct {
		Cues []Cue
	}

	// cueRecord is the serialized form of a single Cue. The fields are
	// pointers so that missing fields can be told apart from zero values.
	cueRecord struct {
		Time *int64  `json:"time" yaml:"time"`
		Code *string `json:"code,omitempty" yaml:"code,omitempty"`
	}

	scoreRecord struct {
		CueList *[]cueRecord `json:"cueList" yaml:"cueList"`
	}
)

// ErrUnknownCueAction is returned when decoding a cue that has no recognized
// action field. One such cue fails the decoding of the whole score.
var ErrUnknownCueAction = errors.New("unknown cue action")

// ErrMissingField is returned when decoding a score without a cue list, or a
// cue without a time. Like ErrUnknownCueAction, it fails the whole score.
var ErrMissingField = errors.New("missing field")

func (CodeStatement) isAction() {}

func (c CodeStatement) String() string {
	return string(c)
}

func (c Cue) String() string {
	return fmt.Sprintf("%v %v", c.Time, c.Action)
}

// Len returns the number of cues in the score.
func (s Score) Len() int {
	return len(s.Cues)
}

// Append adds cues to the end of the score, without sorting.
func (s *Score) Append(cues ...Cue) {
	s.Cues = append(s.Cues, cues...)
}

// Copy makes a copy of the Score that does not share the cue slice.
func (s Score) Copy() Score {
	return Score{Cues: slices.Clone(s.Cues)}
}

// Sorted returns a copy of the score with the cues in time order. Cues with
// equal times keep their relative order.
func (s Score) Sorted() Score {
	ret := s.Copy()
	slices.SortStableFunc(ret.Cues, func(a, b Cue) int { return a.Time.Compare(b.Time) })
	return ret
}

// End returns the time of the latest cue in the score, or 0 if the score is
// empty.
func (s Score) End() Tick {
	var end Tick
	for _, c := range s.Cues {
		if c.Time > end {
			end = c.Time
		}
	}
	return end
}

func (s Score) record() (scoreRecord, error) {
	cues := make([]cueRecord, len(s.Cues))
	ret := scoreRecord{CueList: &cues}
	for i, c := range s.Cues {
		t := int64(c.Time)
		cues[i].Time = &t
		switch a := c.Action.(type) {
		case CodeStatement:
			code := string(a)
			cues[i].Code = &code
		default:
			return scoreRecord{}, fmt.Errorf("cue %d: %w: %T", i, ErrUnknownCueAction, c.Action)
		}
	}
	return ret, nil
}

func (r scoreRecord) score() (Score, error) {
	if r.CueList == nil {
		return Score{}, fmt.Errorf("%w: cueList", ErrMissingField)
	}
	ret := Score{Cues: make([]Cue, len(*r.CueList))}
	for i, c := range *r.CueList {
		if c.Time == nil {
			return Score{}, fmt.Errorf("cue %d: %w: time", i, ErrMissingField)
		}
		if c.Code == nil {
			return Score{}, fmt.Errorf("cue %d: %w", i, ErrUnknownCueAction)
		}
		ret.Cues[i] = Cue{Time: Tick(*c.Time), Action: CodeStatement(*c.Code)}
	}
	return ret, nil
}

func (s Score) MarshalJSON() ([]byte, error) {
	r, err := s.record()
	if err != nil {
		return nil, err
	}
	return json.Marshal(r)
}

func (s *Score) UnmarshalJSON(data []byte) error {
	var r scoreRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	ret, err := r.score()
	if err != nil {
		return err
	}
	*s = ret
	return nil
}

func (s Score) MarshalYAML() (interface{}, error) {
	return s.record()
}

func (s *Score) UnmarshalYAML(value *yaml.Node) error {
	var r scoreRecord
	if err := value.Decode(&r); err != nil {
		return err
	}
	ret, err := r.score()
	if err != nil {
		return err
	}
	*s = ret
	return nil
}

// ParseScore decodes a score from either .json or .yml contents. JSON is
// tried first.
func ParseScore(data []byte) (Score, error) {
	var s Score
	errJSON := json.Unmarshal(data, &s)
	if errJSON == nil {
		return s, nil
	}
	s = Score{}
	errYaml := yaml.Unmarshal(data, &s)
	if errYaml == nil {
		return s, nil
	}
	for _, err := range []error{errJSON, errYaml} {
		if errors.Is(err, ErrUnknownCueAction) || errors.Is(err, ErrMissingField) {
			return Score{}, err
		}
	}
	return Score{}, fmt.Errorf("the score could not be parsed as .json (%v) or .yml (%v)", errJSON, errYaml)
}
