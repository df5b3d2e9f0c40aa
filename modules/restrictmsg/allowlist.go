package restrictmsg

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Kufat/inspircd/extension"
)

// ItemName is the extension item holding allow-lists
const ItemName = "msgallow"

// ErrMalformedToken is returned when an allow-list token cannot be accepted
var ErrMalformedToken = errors.New("malformed allow-list token")

// AllowList holds, in arrival order, the UUIDs of the users an unregistered
// user may message
type AllowList []string

// Contains reports whether id is on the list
func (l AllowList) Contains(id string) bool {
	for _, v := range l {
		if v == id {
			return true
		}
	}
	return false
}

func (l AllowList) without(id string) AllowList {
	out := make(AllowList, 0, len(l))
	for _, v := range l {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// AllowListCodec converts an allow-list to and from its wire form, the
// UUIDs separated by single spaces
type AllowListCodec struct{}

// Encode joins the list with single spaces. The empty list encodes to "".
func (AllowListCodec) Encode(l AllowList) string {
	return strings.Join(l, " ")
}

// Decode splits text on runs of whitespace. Any bad token fails the whole
// decode; duplicates keep their first position.
func (AllowListCodec) Decode(text string) (AllowList, error) {
	fields := strings.Fields(text)
	list := make(AllowList, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for _, tok := range fields {
		if err := checkToken(tok); err != nil {
			return nil, err
		}
		if seen[tok] {
			continue
		}
		seen[tok] = true
		list = append(list, tok)
	}
	return list, nil
}

func checkToken(tok string) error {
	if !utf8.ValidString(tok) {
		return fmt.Errorf("%w: %q is not valid UTF-8", ErrMalformedToken, tok)
	}
	if strings.HasPrefix(tok, ":") {
		return fmt.Errorf("%w: %q starts with a colon", ErrMalformedToken, tok)
	}
	for _, r := range tok {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("%w: %q contains a control character", ErrMalformedToken, tok)
		}
	}
	return nil
}

// AllowListExt is the msgallow item. Lists are only kept for users on this
// server.
type AllowListExt struct {
	*extension.SimpleItem[AllowList]
}

// NewAllowListExt creates an empty msgallow item
func NewAllowListExt() *AllowListExt {
	return &AllowListExt{
		SimpleItem: extension.NewItem[AllowList](ItemName, AllowListCodec{}),
	}
}

type localEntity interface {
	IsLocal() bool
}

// Unserialize replaces a local user's list. Values sent for remote users
// are ignored, and a user's own UUID is dropped from its list.
func (x *AllowListExt) Unserialize(e extension.Extensible, text string) error {
	if l, ok := e.(localEntity); ok && !l.IsLocal() {
		return nil
	}
	if err := x.SimpleItem.Unserialize(e, text); err != nil {
		return err
	}

	list, ok := x.Get(e)
	if !ok || !list.Contains(e.UUID()) {
		return nil
	}
	if list = list.without(e.UUID()); len(list) == 0 {
		x.Unset(e)
	} else {
		x.Set(e, list)
	}
	return nil
}

// Contains reports whether e's list holds id
func (x *AllowListExt) Contains(e extension.Extensible, id string) bool {
	list, ok := x.Get(e)
	return ok && list.Contains(id)
}

// Grant appends id to e's list, creating it when needed. It returns false
// when id was already present or is e's own UUID.
func (x *AllowListExt) Grant(e extension.Extensible, id string) bool {
	if id == e.UUID() {
		return false
	}
	added := false
	x.Update(e, func(cur AllowList, ok bool) AllowList {
		if ok && cur.Contains(id) {
			return cur
		}
		added = true
		next := make(AllowList, len(cur), len(cur)+1)
		copy(next, cur)
		return append(next, id)
	})
	return added
}
