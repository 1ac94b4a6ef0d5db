// Package icons resolves contract icon references to catalogue entries.
// Sections and options only store the Ref; image bytes stay with the catalogue.
package icons

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrIconNotFound = errors.New("icon not found")

// Ref is a contract icon enum value. The zero value means "no icon".
type Ref string

const (
	RefDocument  Ref = "DOCUMENT"
	RefHandshake Ref = "HANDSHAKE"
	RefShield    Ref = "SHIELD"
	RefCalendar  Ref = "CALENDAR"
	RefMoney     Ref = "MONEY"
	RefTruck     Ref = "TRUCK"
	RefScale     Ref = "SCALE"
	RefLock      Ref = "LOCK"
	RefSignature Ref = "SIGNATURE"
	RefWarning   Ref = "WARNING"
)

// known lists every Ref in catalogue order with its default display name.
var known = []Entry{
	{Ref: RefDocument, DisplayName: "Document"},
	{Ref: RefHandshake, DisplayName: "Handshake"},
	{Ref: RefShield, DisplayName: "Shield"},
	{Ref: RefCalendar, DisplayName: "Calendar"},
	{Ref: RefMoney, DisplayName: "Money"},
	{Ref: RefTruck, DisplayName: "Delivery"},
	{Ref: RefScale, DisplayName: "Jurisdiction"},
	{Ref: RefLock, DisplayName: "Confidentiality"},
	{Ref: RefSignature, DisplayName: "Signature"},
	{Ref: RefWarning, DisplayName: "Liability"},
}

// Valid reports whether r is a known icon. The empty Ref is valid.
func (r Ref) Valid() bool {
	if r == "" {
		return true
	}
	_, ok := lookupKnown(r)
	return ok
}

// ParseRef accepts an icon name case-insensitively; "" means no icon.
func ParseRef(raw string) (Ref, error) {
	r := Ref(strings.ToUpper(strings.TrimSpace(raw)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrIconNotFound, raw)
	}
	return r, nil
}

// Refs returns every known icon reference.
func Refs() []Ref {
	out := make([]Ref, 0, len(known))
	for _, e := range known {
		out = append(out, e.Ref)
	}
	return out
}

func (r Ref) objectName() string {
	return strings.ToLower(string(r)) + ".svg"
}

func lookupKnown(r Ref) (Entry, bool) {
	for _, e := range known {
		if e.Ref == r {
			return e, true
		}
	}
	return Entry{}, false
}

// Entry describes an icon without its image.
type Entry struct {
	Ref         Ref    `json:"icon"`
	DisplayName string `json:"displayName"`
}

// Icon is a resolved catalogue entry.
type Icon struct {
	Ref         Ref    `json:"icon"`
	DisplayName string `json:"displayName"`
	ContentType string `json:"contentType"`
	Image       []byte `json:"image"`
}

// Catalogue is the read-only icon source.
type Catalogue interface {
	Resolve(ctx context.Context, ref Ref) (Icon, error)
	List(ctx context.Context) ([]Entry, error)
}

func notFound(ref Ref) error {
	return fmt.Errorf("%w: %s", ErrIconNotFound, ref)
}
