package memos

import (
	"reflect"
	"testing"
)

func TestParseTags(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		want    []string
	}{
		{name: "single", content: "#rust hello world", want: []string{"#rust"}},
		{name: "comma-separated", content: "#a,#b hello", want: []string{"#a", "#b"}},
		{name: "first-line-only", content: "hello\n#later", want: nil},
		{name: "bare-hash", content: "# heading", want: nil},
		{name: "duplicates", content: "#go #go #rust", want: []string{"#go", "#rust"}},
		{name: "empty", content: "", want: nil},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			got := ParseTags(testCase.content).Names()
			if len(got) == 0 && len(testCase.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, testCase.want) {
				t.Fatalf("expected %v, got %v", testCase.want, got)
			}
		})
	}
}

func TestStripTags(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		want    string
	}{
		{name: "leading-tag", content: "#rust hello world", want: "hello world"},
		{name: "tag-only-first-line", content: "#a,#b\nbody", want: "body"},
		{name: "prefix-names", content: "#go #golang notes", want: "notes"},
		{name: "later-lines-untouched", content: "#go intro\nsee #go", want: "intro\nsee #go"},
		{name: "no-tags", content: "  plain  ", want: "plain"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			got := StripTags(testCase.content, ParseTags(testCase.content))
			if got != testCase.want {
				t.Fatalf("expected %q, got %q", testCase.want, got)
			}
		})
	}
}

func TestTagSetEncodeAndDecode(t *testing.T) {
	set := NewTagSet("#a", "", "#b", "#a")
	if set.Len() != 2 {
		t.Fatalf("expected two members, got %v", set.Names())
	}
	if encoded := set.Encode(); encoded != "#a,#b," {
		t.Fatalf("unexpected encoding %q", encoded)
	}
	decoded := DecodeTags("#a,#b,")
	if !reflect.DeepEqual(decoded.Names(), []string{"#a", "#b"}) {
		t.Fatalf("unexpected decoding %v", decoded.Names())
	}
	if NewTagSet().Encode() != "" {
		t.Fatalf("empty set must encode to an empty string")
	}
}

func TestTagSetRename(t *testing.T) {
	set := NewTagSet("#a", "#b", "#c")
	if !set.Rename("#b", "#x") {
		t.Fatalf("expected rename to report presence")
	}
	if !reflect.DeepEqual(set.Names(), []string{"#a", "#x", "#c"}) {
		t.Fatalf("rename must keep order, got %v", set.Names())
	}
	if !set.Rename("#a", "#c") {
		t.Fatalf("expected merge rename to report presence")
	}
	if !reflect.DeepEqual(set.Names(), []string{"#x", "#c"}) {
		t.Fatalf("merge rename must drop the source, got %v", set.Names())
	}
	if set.Rename("#missing", "#y") {
		t.Fatalf("expected absent source to report false")
	}
	set.Remove("#x")
	if set.Contains("#x") || set.Len() != 1 {
		t.Fatalf("remove failed: %v", set.Names())
	}
}

func TestLikeTagPatternMatchesStoredForm(t *testing.T) {
	if pattern := likeTagPattern("#go"); pattern != "%#go,%" {
		t.Fatalf("unexpected pattern %q", pattern)
	}
}
