package plan

import (
	"fmt"
	"strings"
)

// ActionKind identifies a concrete action an actor can perform.
type ActionKind string

const (
	KindUnknown            ActionKind = "unknown"
	KindMove               ActionKind = "move"
	KindTalk               ActionKind = "talk"
	KindPutDown            ActionKind = "put_down"
	KindGiveMoney          ActionKind = "give_money"
	KindGiveItem           ActionKind = "give_item"
	KindExamine            ActionKind = "examine"
	KindNotifyReceptionist ActionKind = "notify_receptionist"
	KindPrepareMenu        ActionKind = "prepare_menu"
	KindNotifyDoctor       ActionKind = "notify_doctor"
	KindCook               ActionKind = "cook"
	KindWait               ActionKind = "wait"
	KindPayment            ActionKind = "payment"
)

// Kinds lists every known action kind in declaration order.
var Kinds = []ActionKind{
	KindMove,
	KindTalk,
	KindPutDown,
	KindGiveMoney,
	KindGiveItem,
	KindExamine,
	KindNotifyReceptionist,
	KindPrepareMenu,
	KindNotifyDoctor,
	KindCook,
	KindWait,
	KindPayment,
}

// Valid reports whether k is one of the known kinds.
func (k ActionKind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// String implements fmt.Stringer.
func (k ActionKind) String() string {
	return string(k)
}

// ParseActionKind accepts snake_case, CamelCase or spaced spellings
// ("put_down", "PutDown", "put down").
func ParseActionKind(s string) (ActionKind, error) {
	norm := normalizeKind(s)
	for _, k := range Kinds {
		if normalizeKind(string(k)) == norm {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("unknown action kind %q", s)
}

func normalizeKind(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "_", "")
	s = strings.ReplaceAll(s, "-", "")
	return strings.ReplaceAll(s, " ", "")
}
