// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package outline

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pdiddy/dpsprep/pkg/types"
)

// State is the pairing state of one list while its strings are scanned.
// Strings alternate: the first opens a bookmark as its title, the next is
// that bookmark's target.
type State int

const (
	ExpectingTitle State = iota
	ExpectingTarget
)

func (s State) String() string {
	switch s {
	case ExpectingTitle:
		return "expecting-title"
	case ExpectingTarget:
		return "expecting-target"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// next is the transition taken on every string.
func (s State) next() State {
	if s == ExpectingTitle {
		return ExpectingTarget
	}
	return ExpectingTitle
}

// Role is how a string was interpreted during flattening.
type Role int

const (
	RoleTitle Role = iota
	RoleTarget
)

func (r Role) String() string {
	if r == RoleTitle {
		return "title"
	}
	return "target"
}

// Pairing records how one string was classified and the transition it
// caused. Pairings exposes these so desynchronized input can be
// inspected.
type Pairing struct {
	Text  string
	Role  Role
	Level int
	From  State
	To    State
}

// Flatten walks root in pre-order and returns one bookmark per title.
// Strings directly in root and in lists directly inside root are level 0;
// every further list adds one level. Pairing is positional and lenient:
// a target without a `#<page>` fragment leaves the page unset, and a
// missing target shifts the pairing for the rest of that list.
func Flatten(root List) []types.Bookmark {
	w := &walker{}
	w.walk(root)
	return w.out
}

// FlattenStrict is Flatten but rejects targets that carry no page number
// and lists that end with a title still waiting for its target.
func FlattenStrict(root List) ([]types.Bookmark, error) {
	w := &walker{strict: true}
	w.walk(root)
	if w.err != nil {
		return nil, w.err
	}
	return w.out, nil
}

// Pairings returns the title/target classification of every string in
// root, in traversal order.
func Pairings(root List) []Pairing {
	w := &walker{trace: true}
	w.walk(root)
	return w.pairings
}

// PageFromTarget extracts the page number from an outline target such as
// "#12". The text between the first '#' and the next one, if any, must
// be a positive integer.
func PageFromTarget(target string) (int, bool) {
	_, frag, found := strings.Cut(target, "#")
	if !found {
		return 0, false
	}
	frag, _, _ = strings.Cut(frag, "#")
	n, err := strconv.Atoi(strings.TrimSpace(frag))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

type walker struct {
	strict   bool
	trace    bool
	out      []types.Bookmark
	pairings []Pairing
	err      error
}

func (w *walker) walk(root List) {
	w.frame(root, 0, 0)
}

// frame scans one list. Strings in it get level; lists inside it are
// scanned with childLevel.
func (w *walker) frame(nodes List, level, childLevel int) {
	state := ExpectingTitle
	open := -1 // index in w.out of the bookmark awaiting its target

	for _, n := range nodes {
		if w.err != nil {
			return
		}
		switch v := n.(type) {
		case List:
			w.frame(v, childLevel, childLevel+1)
		case String:
			next := state.next()
			role := RoleTitle
			if state == ExpectingTitle {
				w.out = append(w.out, types.Bookmark{Title: string(v), Level: level})
				open = len(w.out) - 1
			} else {
				role = RoleTarget
				if page, ok := PageFromTarget(string(v)); ok {
					w.out[open].PageNumber = page
				} else if w.strict {
					w.err = &MalformedOutlineError{
						Offset: -1,
						Reason: fmt.Sprintf("bookmark %q: target %q has no page number", w.out[open].Title, string(v)),
					}
					return
				}
			}
			if w.trace {
				w.pairings = append(w.pairings, Pairing{Text: string(v), Role: role, Level: level, From: state, To: next})
			}
			state = next
		}
	}

	if w.strict && state == ExpectingTarget {
		w.err = &MalformedOutlineError{
			Offset: -1,
			Reason: fmt.Sprintf("bookmark %q has no target", w.out[open].Title),
		}
	}
}
