// Package history models a user's dish history.
package history

import "strings"

// Entry references one catalog dish by its identifying key.
type Entry struct {
	DishKey string
}

// History is the ordered list of dishes a user has had. Duplicates are meaningful:
// a dish eaten twice weighs twice in the composite embedding.
type History []Entry

// FromKeys builds a History from dish keys. Keys are kept verbatim: they must match
// the stored dish_name exactly.
func FromKeys(keys ...string) History {
	h := make(History, 0, len(keys))
	for _, k := range keys {
		h = append(h, Entry{DishKey: k})
	}
	return h
}

// Keys returns the dish keys in history order.
func (h History) Keys() []string {
	keys := make([]string, len(h))
	for i, e := range h {
		keys[i] = e.DishKey
	}
	return keys
}

// Valid reports the index of the first empty or whitespace-only key, or -1.
func (h History) Valid() int {
	for i, e := range h {
		if strings.TrimSpace(e.DishKey) == "" {
			return i
		}
	}
	return -1
}
