package plan

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Params is the typed parameter set of one action kind. Each kind has its
// own struct so handlers read fields instead of looking up map keys.
type Params interface {
	Kind() ActionKind
}

// MoveParams moves the actor to a named area or entity.
type MoveParams struct {
	Destination string `json:"destination" validate:"required"`
}

// TalkParams starts a conversation.
type TalkParams struct {
	Target  string `json:"target" validate:"required"`
	Message string `json:"message,omitempty"`
}

// PutDownParams places a held item.
type PutDownParams struct {
	Item     string `json:"item" validate:"required"`
	Location string `json:"location,omitempty"`
}

// GiveMoneyParams hands money to another actor.
type GiveMoneyParams struct {
	Target string `json:"target" validate:"required"`
	Amount int    `json:"amount" validate:"gt=0"`
}

// GiveItemParams hands an item to another actor.
type GiveItemParams struct {
	Target string `json:"target" validate:"required"`
	Item   string `json:"item" validate:"required"`
}

// ExamineParams inspects an entity.
type ExamineParams struct {
	Target string `json:"target" validate:"required"`
}

// NotifyReceptionistParams alerts the receptionist.
type NotifyReceptionistParams struct {
	Message string `json:"message,omitempty"`
}

// PrepareMenuParams prepares the listed menu items.
type PrepareMenuParams struct {
	Items []string `json:"items" validate:"min=1,dive,required"`
}

// NotifyDoctorParams alerts the doctor about a patient.
type NotifyDoctorParams struct {
	Patient string `json:"patient,omitempty"`
	Message string `json:"message,omitempty"`
}

// CookParams cooks a dish.
type CookParams struct {
	Dish string `json:"dish" validate:"required"`
}

// WaitParams idles for the given number of simulated minutes.
type WaitParams struct {
	Minutes int `json:"minutes" validate:"gte=0"`
}

// PaymentParams settles a bill.
type PaymentParams struct {
	Target string `json:"target" validate:"required"`
	Amount int    `json:"amount" validate:"gte=0"`
	Item   string `json:"item,omitempty"`
}

func (MoveParams) Kind() ActionKind               { return KindMove }
func (TalkParams) Kind() ActionKind               { return KindTalk }
func (PutDownParams) Kind() ActionKind            { return KindPutDown }
func (GiveMoneyParams) Kind() ActionKind          { return KindGiveMoney }
func (GiveItemParams) Kind() ActionKind           { return KindGiveItem }
func (ExamineParams) Kind() ActionKind            { return KindExamine }
func (NotifyReceptionistParams) Kind() ActionKind { return KindNotifyReceptionist }
func (PrepareMenuParams) Kind() ActionKind        { return KindPrepareMenu }
func (NotifyDoctorParams) Kind() ActionKind       { return KindNotifyDoctor }
func (CookParams) Kind() ActionKind               { return KindCook }
func (WaitParams) Kind() ActionKind               { return KindWait }
func (PaymentParams) Kind() ActionKind            { return KindPayment }

// ParamsError reports parameters that could not be decoded or failed validation.
type ParamsError struct {
	Kind  ActionKind
	Cause error
}

func (e *ParamsError) Error() string {
	return fmt.Sprintf("invalid parameters for %s: %v", e.Kind, e.Cause)
}

func (e *ParamsError) Unwrap() error {
	return e.Cause
}

// IsParamsError returns true if the error is a ParamsError.
func IsParamsError(err error) bool {
	_, ok := err.(*ParamsError)
	return ok
}

func newParams(kind ActionKind) (Params, error) {
	switch kind {
	case KindMove:
		return &MoveParams{}, nil
	case KindTalk:
		return &TalkParams{}, nil
	case KindPutDown:
		return &PutDownParams{}, nil
	case KindGiveMoney:
		return &GiveMoneyParams{}, nil
	case KindGiveItem:
		return &GiveItemParams{}, nil
	case KindExamine:
		return &ExamineParams{}, nil
	case KindNotifyReceptionist:
		return &NotifyReceptionistParams{}, nil
	case KindPrepareMenu:
		return &PrepareMenuParams{}, nil
	case KindNotifyDoctor:
		return &NotifyDoctorParams{}, nil
	case KindCook:
		return &CookParams{}, nil
	case KindWait:
		return &WaitParams{}, nil
	case KindPayment:
		return &PaymentParams{}, nil
	default:
		return nil, fmt.Errorf("unknown action kind %q", kind)
	}
}

// DecodeParams decodes raw JSON parameters into the typed struct for kind
// and validates it. An empty or null payload decodes to the zero struct,
// which is then validated like any other.
func DecodeParams(kind ActionKind, raw json.RawMessage) (Params, error) {
	p, err := newParams(kind)
	if err != nil {
		return nil, &ParamsError{Kind: kind, Cause: err}
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.DisallowUnknownFields()
		if err := dec.Decode(p); err != nil {
			return nil, &ParamsError{Kind: kind, Cause: err}
		}
	}

	if err := validate.Struct(p); err != nil {
		return nil, &ParamsError{Kind: kind, Cause: err}
	}

	return deref(p), nil
}

// DecodeParamsMap is DecodeParams for callers holding a generic map, such as
// an HTTP body or a protobuf Struct.
func DecodeParamsMap(kind ActionKind, m map[string]any) (Params, error) {
	if len(m) == 0 {
		return DecodeParams(kind, nil)
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, &ParamsError{Kind: kind, Cause: err}
	}
	return DecodeParams(kind, raw)
}

// deref returns the value form; handlers type-switch on value types.
func deref(p Params) Params {
	switch v := p.(type) {
	case *MoveParams:
		return *v
	case *TalkParams:
		return *v
	case *PutDownParams:
		return *v
	case *GiveMoneyParams:
		return *v
	case *GiveItemParams:
		return *v
	case *ExamineParams:
		return *v
	case *NotifyReceptionistParams:
		return *v
	case *PrepareMenuParams:
		return *v
	case *NotifyDoctorParams:
		return *v
	case *CookParams:
		return *v
	case *WaitParams:
		return *v
	case *PaymentParams:
		return *v
	default:
		return p
	}
}
