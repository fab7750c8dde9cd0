package memos

import (
	"sort"
	"strings"
	"unicode"
)

// TagSet is an ordered set of hashtag names. Names keep their leading '#'.
type TagSet struct {
	names []string
}

// NewTagSet builds a set from names, dropping blanks and duplicates.
func NewTagSet(names ...string) TagSet {
	var set TagSet
	for _, name := range names {
		set.Add(name)
	}
	return set
}

// ParseTags collects hashtags from the first line of content. A hashtag is a token
// starting with '#' and longer than one character; tokens split on whitespace and commas.
func ParseTags(content string) TagSet {
	firstLine, _, _ := strings.Cut(content, "\n")
	tokens := strings.FieldsFunc(firstLine, func(r rune) bool {
		return unicode.IsSpace(r) || r == ','
	})
	var set TagSet
	for _, token := range tokens {
		if strings.HasPrefix(token, "#") && len(token) > 1 {
			set.Add(token)
		}
	}
	return set
}

// DecodeTags reads the stored "#a,#b," column form.
func DecodeTags(column string) TagSet {
	return NewTagSet(strings.Split(column, ",")...)
}

// Add inserts name when absent.
func (s *TagSet) Add(name string) {
	name = strings.TrimSpace(name)
	if name == "" || s.Contains(name) {
		return
	}
	s.names = append(s.names, name)
}

// Remove deletes name when present.
func (s *TagSet) Remove(name string) {
	for index, existing := range s.names {
		if existing == name {
			s.names = append(s.names[:index:index], s.names[index+1:]...)
			return
		}
	}
}

// Rename replaces from with to in place, keeping order. It reports whether from was present.
func (s *TagSet) Rename(from, to string) bool {
	for index, existing := range s.names {
		if existing != from {
			continue
		}
		if s.Contains(to) {
			s.Remove(from)
			return true
		}
		s.names[index] = to
		return true
	}
	return false
}

// Contains reports membership.
func (s TagSet) Contains(name string) bool {
	for _, existing := range s.names {
		if existing == name {
			return true
		}
	}
	return false
}

// Names returns a copy of the members in insertion order.
func (s TagSet) Names() []string {
	return append([]string(nil), s.names...)
}

// Len returns the number of members.
func (s TagSet) Len() int {
	return len(s.names)
}

// Encode renders the column form: every name followed by a comma, or "" when empty.
func (s TagSet) Encode() string {
	if len(s.names) == 0 {
		return ""
	}
	return strings.Join(s.names, ",") + ","
}

// StripTags removes the set's hashtags from the first line of content. A first line left
// blank is dropped. The result is trimmed.
func StripTags(content string, tags TagSet) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")

	// Longer names first so "#go" never eats into "#golang".
	names := tags.Names()
	sort.SliceStable(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })

	first := lines[0]
	for _, name := range names {
		first = strings.ReplaceAll(first, name+",", "")
		first = strings.ReplaceAll(first, name+" ", "")
		first = strings.ReplaceAll(first, name, "")
	}
	if strings.TrimSpace(first) == "" {
		lines = lines[1:]
	} else {
		lines[0] = first
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// likeTagPattern matches the stored column form of name inside a LIKE predicate.
func likeTagPattern(name string) string {
	return "%" + name + ",%"
}
