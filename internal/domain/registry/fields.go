package registry

import (
	"time"
)

// FieldName names a tracked attribute of RegisteredObject.  Values equal the
// storage column names.
type FieldName string

const (
	FieldObjectName       FieldName = "name"
	FieldApplicationDate  FieldName = "application_date"
	FieldRegistrationDate FieldName = "registration_date"
	FieldExpirationDate   FieldName = "expiration_date"
	FieldActual           FieldName = "actual"
	FieldPublicationURL   FieldName = "publication_url"
	FieldCreationYear     FieldName = "creation_year"
	FieldAbstract         FieldName = "abstract"
	FieldClaims           FieldName = "claims"
	FieldFirstUsageDate   FieldName = "first_usage_date"
	FieldPublicationYear  FieldName = "publication_year"
	FieldUpdateYear       FieldName = "update_year"
)

// Value returns the comparable value of field f: string, bool, time.Time or
// int for present values and nil for absent dates and years.
func (o *RegisteredObject) Value(f FieldName) interface{} {
	switch f {
	case FieldObjectName:
		return o.Name
	case FieldApplicationDate:
		return dateValue(o.ApplicationDate)
	case FieldRegistrationDate:
		return dateValue(o.RegistrationDate)
	case FieldExpirationDate:
		return dateValue(o.ExpirationDate)
	case FieldActual:
		return o.Actual
	case FieldPublicationURL:
		return o.PublicationURL
	case FieldCreationYear:
		return intValue(o.CreationYear)
	case FieldAbstract:
		return o.Abstract
	case FieldClaims:
		return o.Claims
	case FieldFirstUsageDate:
		return dateValue(o.FirstUsageDate)
	case FieldPublicationYear:
		return intValue(o.PublicationYear)
	case FieldUpdateYear:
		return intValue(o.UpdateYear)
	}
	return nil
}

// Set assigns a value produced by Value back onto the object.
func (o *RegisteredObject) Set(f FieldName, v interface{}) {
	switch f {
	case FieldObjectName:
		o.Name, _ = v.(string)
	case FieldApplicationDate:
		o.ApplicationDate = datePtrValue(v)
	case FieldRegistrationDate:
		o.RegistrationDate = datePtrValue(v)
	case FieldExpirationDate:
		o.ExpirationDate = datePtrValue(v)
	case FieldActual:
		o.Actual, _ = v.(bool)
	case FieldPublicationURL:
		o.PublicationURL, _ = v.(string)
	case FieldCreationYear:
		o.CreationYear = intPtrValue(v)
	case FieldAbstract:
		o.Abstract, _ = v.(string)
	case FieldClaims:
		o.Claims, _ = v.(string)
	case FieldFirstUsageDate:
		o.FirstUsageDate = datePtrValue(v)
	case FieldPublicationYear:
		o.PublicationYear = intPtrValue(v)
	case FieldUpdateYear:
		o.UpdateYear = intPtrValue(v)
	}
}

func dateValue(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return truncateDate(*t)
}

func intValue(i *int) interface{} {
	if i == nil {
		return nil
	}
	return *i
}

func datePtrValue(v interface{}) *time.Time {
	t, ok := v.(time.Time)
	if !ok {
		return nil
	}
	return &t
}

func intPtrValue(v interface{}) *int {
	i, ok := v.(int)
	if !ok {
		return nil
	}
	return &i
}

// FieldChange is one tracked field whose stored value differs from the
// snapshot value.
type FieldChange struct {
	Field    FieldName
	OldValue interface{}
	NewValue interface{}
}

// Diff compares the tracked fields of current against target and returns the
// changes in tracked order.  An empty result means unchanged.
func Diff(current, target *RegisteredObject, tracked []FieldName) []FieldChange {
	var changes []FieldChange
	for _, f := range tracked {
		oldV, newV := current.Value(f), target.Value(f)
		if sameValue(oldV, newV) {
			continue
		}
		changes = append(changes, FieldChange{Field: f, OldValue: oldV, NewValue: newV})
	}
	return changes
}

func sameValue(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return a == b
}
