// Package storage provides persistence for per-actor JSON documents: the
// daily plan, the short-term log and the long-term memory store.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DocumentStore persists opaque documents addressed by Key.
// Implementations must return a copy of stored bytes from Get.
type DocumentStore interface {
	// Get returns the document or a *NotFoundError.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Put creates or replaces the document.
	Put(ctx context.Context, key Key, data []byte) error

	// Delete removes the document or returns a *NotFoundError.
	Delete(ctx context.Context, key Key) error

	// List returns the names of an actor's documents of one kind, sorted ascending.
	List(ctx context.Context, actor string, kind Kind) ([]string, error)

	// Close releases backend resources.
	Close() error
}

// Kind groups documents of the same schema.
type Kind string

const (
	KindPlan      Kind = "plan"
	KindShortTerm Kind = "short_term"
	KindLongTerm  Kind = "long_term"
	KindBackup    Kind = "backup"
)

// currentName names singleton documents.
const currentName = "current"

// PlanDateLayout formats the date part of plan document names.
const PlanDateLayout = "20060102"

// Key addresses one document.
type Key struct {
	Actor string
	Kind  Kind
	Name  string
}

// PlanKey addresses an actor's plan for one calendar date.
func PlanKey(actor string, date time.Time) Key {
	return Key{Actor: actor, Kind: KindPlan, Name: date.Format(PlanDateLayout)}
}

// ShortTermKey addresses an actor's short-term log.
func ShortTermKey(actor string) Key {
	return Key{Actor: actor, Kind: KindShortTerm, Name: currentName}
}

// LongTermKey addresses an actor's long-term memory store.
func LongTermKey(actor string) Key {
	return Key{Actor: actor, Kind: KindLongTerm, Name: currentName}
}

// BackupKey addresses one memory snapshot.
func BackupKey(actor, id string) Key {
	return Key{Actor: actor, Kind: KindBackup, Name: id}
}

// String renders the key as "actor/kind/name".
func (k Key) String() string {
	return k.Actor + "/" + string(k.Kind) + "/" + k.Name
}

// Prefix returns the "actor/kind/" prefix shared by documents of one kind.
func Prefix(actor string, kind Kind) string {
	return actor + "/" + string(kind) + "/"
}

// Validate checks that every key segment is present and free of separators.
func (k Key) Validate() error {
	segments := [][2]string{{"actor", k.Actor}, {"kind", string(k.Kind)}, {"name", k.Name}}
	for _, seg := range segments {
		if seg[1] == "" {
			return &InvalidKeyError{Key: k, Reason: seg[0] + " is empty"}
		}
		if strings.Contains(seg[1], "/") {
			return &InvalidKeyError{Key: k, Reason: seg[0] + " contains '/'"}
		}
	}
	return nil
}

// ParseKey is the inverse of Key.String.
func ParseKey(s string) (Key, error) {
	parts := strings.SplitN(s, "/", 3)
	if len(parts) != 3 {
		return Key{}, fmt.Errorf("malformed document key %q", s)
	}
	k := Key{Actor: parts[0], Kind: Kind(parts[1]), Name: parts[2]}
	return k, k.Validate()
}

// GetJSON loads a document and decodes it into v.
func GetJSON(ctx context.Context, s DocumentStore, key Key, v any) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &SerializationError{Operation: "unmarshal", Cause: err}
	}
	return nil
}

// PutJSON encodes v and stores it.
func PutJSON(ctx context.Context, s DocumentStore, key Key, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return &SerializationError{Operation: "marshal", Cause: err}
	}
	return s.Put(ctx, key, data)
}

// NotFoundError indicates that the requested document does not exist.
type NotFoundError struct {
	EntityType string
	ID         string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.EntityType, e.ID)
}

// NewNotFound builds a NotFoundError for key.
func NewNotFound(key Key) *NotFoundError {
	return &NotFoundError{EntityType: string(key.Kind), ID: key.String()}
}

// IsNotFound reports whether err is or wraps a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// InvalidKeyError indicates a key that cannot be stored.
type InvalidKeyError struct {
	Key    Key
	Reason string
}

func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("invalid document key %q: %s", e.Key.String(), e.Reason)
}

// StorageUnavailableError indicates that the storage backend is unavailable.
type StorageUnavailableError struct {
	Cause error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable: %v", e.Cause)
}

func (e *StorageUnavailableError) Unwrap() error {
	return e.Cause
}

// SerializationError indicates a failure in data serialization/deserialization.
type SerializationError struct {
	Operation string
	Cause     error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization error during %s: %v", e.Operation, e.Cause)
}

func (e *SerializationError) Unwrap() error {
	return e.Cause
}

// ErrClosed is returned by backends after Close.
var ErrClosed = errors.New("storage: closed")
