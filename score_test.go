package plink_test

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/kineticfactory/plink"
)

const scoreJSON = `{"cueList":[{"time":48,"code":"ch1.note(60)"},{"time":0,"code":"start()"},{"time":24,"code":""}]}`

func TestScoreJSONRoundTrip(t *testing.T) {
	var first plink.Score
	if err := json.Unmarshal([]byte(scoreJSON), &first); err != nil {
		t.Fatalf("could not decode score: %v", err)
	}
	if first.Len() != 3 {
		t.Fatalf("cue count: got %v, expected 3", first.Len())
	}
	if first.Cues[0].Time != 48 || first.Cues[0].Action != plink.CodeStatement("ch1.note(60)") {
		t.Fatalf("first cue: got %v, expected 48 / ch1.note(60)", first.Cues[0])
	}
	encoded, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("could not encode score: %v", err)
	}
	var second plink.Score
	if err := json.Unmarshal(encoded, &second); err != nil {
		t.Fatalf("could not decode encoded score: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("round trip mismatch: got %v, expected %v", second, first)
	}
}

func TestScoreYAMLRoundTrip(t *testing.T) {
	score := plink.Score{Cues: []plink.Cue{
		{Time: 12, Action: plink.CodeStatement("a()")},
		{Time: -3, Action: plink.CodeStatement("b()")},
	}}
	encoded, err := yaml.Marshal(score)
	if err != nil {
		t.Fatalf("could not encode score: %v", err)
	}
	var decoded plink.Score
	if err := yaml.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("could not decode score: %v", err)
	}
	if !reflect.DeepEqual(score, decoded) {
		t.Fatalf("round trip mismatch: got %v, expected %v", decoded, score)
	}
}

func TestScoreMissingCodeFailsWholeDecode(t *testing.T) {
	data := `{"cueList":[{"time":0,"code":"ok()"},{"time":24}]}`
	var s plink.Score
	err := json.Unmarshal([]byte(data), &s)
	if !errors.Is(err, plink.ErrUnknownCueAction) {
		t.Fatalf("expected ErrUnknownCueAction, got %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("no cues should be recovered, got %v", s.Len())
	}
	if _, err := plink.ParseScore([]byte(data)); !errors.Is(err, plink.ErrUnknownCueAction) {
		t.Fatalf("ParseScore: expected ErrUnknownCueAction, got %v", err)
	}
	if _, err := plink.ParseScore([]byte("cueList:\n  - time: 3\n")); !errors.Is(err, plink.ErrUnknownCueAction) {
		t.Fatalf("ParseScore yaml: expected ErrUnknownCueAction, got %v", err)
	}
}

func TestScoreMissingFieldsFailDecode(t *testing.T) {
	for _, data := range []string{
		`{"cueList":[{"code":"ch1 gate 1"}]}`,
		`{"cueList":[{"time":0,"code":"a()"},{"code":"b()"}]}`,
		`{"cues":[{"time":1,"code":"x"}]}`,
		`{}`,
		"tempo: 100\nfoo: bar\n",
		"cueList:\n  - code: x()\n",
	} {
		if _, err := plink.ParseScore([]byte(data)); !errors.Is(err, plink.ErrMissingField) {
			t.Errorf("ParseScore(%q): got %v, expected ErrMissingField", data, err)
		}
	}
	var s plink.Score
	if err := json.Unmarshal([]byte(`{"cueList":[{"code":"x"}]}`), &s); !errors.Is(err, plink.ErrMissingField) {
		t.Fatalf("json: got %v, expected ErrMissingField", err)
	}
	if err := yaml.Unmarshal([]byte("foo: bar\n"), &s); !errors.Is(err, plink.ErrMissingField) {
		t.Fatalf("yaml: got %v, expected ErrMissingField", err)
	}
	empty, err := plink.ParseScore([]byte(`{"cueList":[]}`))
	if err != nil || empty.Len() != 0 {
		t.Fatalf("empty cue list: got %v (%v), expected an empty score", empty, err)
	}
}

func TestParseScoreYAML(t *testing.T) {
	s, err := plink.ParseScore([]byte("cueList:\n  - time: 3\n    code: x()\n"))
	if err != nil {
		t.Fatalf("ParseScore failed: %v", err)
	}
	if s.Len() != 1 || s.Cues[0].Time != 3 || s.Cues[0].Action != plink.CodeStatement("x()") {
		t.Fatalf("unexpected score: %v", s)
	}
}

func TestScoreSortedIsStable(t *testing.T) {
	var s plink.Score
	s.Append(
		plink.Cue{Time: 24, Action: plink.CodeStatement("c")},
		plink.Cue{Time: 0, Action: plink.CodeStatement("a")},
		plink.Cue{Time: 24, Action: plink.CodeStatement("d")},
		plink.Cue{Time: 0, Action: plink.CodeStatement("b")},
	)
	sorted := s.Sorted()
	var got string
	for _, c := range sorted.Cues {
		got += string(c.Action.(plink.CodeStatement))
	}
	if got != "abcd" {
		t.Fatalf("sorted order: got %q, expected %q", got, "abcd")
	}
	if s.Cues[0].Action != plink.CodeStatement("c") {
		t.Fatalf("Sorted should not modify the receiver")
	}
	if s.End() != 24 {
		t.Fatalf("End: got %v, expected 24", int64(s.End()))
	}
}
