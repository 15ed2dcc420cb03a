package service

import (
	"encoding/json"
	"errors"
	"fmt"
)

// entityKind identifies which store table a sync payload targets.
type entityKind string

const (
	kindParkingRecord   entityKind = "record"
	kindPayment         entityKind = "payment"
	kindSubscriber      entityKind = "subscriber"
	kindUser            entityKind = "user"
	kindEntryType       entityKind = "entry_type"
	kindTariffType      entityKind = "tariff_type"
	kindExpense         entityKind = "expense"
	kindExpenseCategory entityKind = "expense_category"
)

var (
	// ErrBadPayload means the body could not be decoded at all.
	ErrBadPayload = errors.New("invalid payload")
	// ErrUnknownEntity means the payload carried a discriminator the server
	// does not recognize, or could not be classified.
	ErrUnknownEntity = errors.New("unknown entity")
)

// entityTypeNames maps the explicit entity_type discriminator to a kind.
var entityTypeNames = map[string]entityKind{
	"parking_record":   kindParkingRecord,
	"payment":          kindPayment,
	"subscriber":       kindSubscriber,
	"user":             kindUser,
	"entry_type":       kindEntryType,
	"tariff_type":      kindTariffType,
	"expense":          kindExpense,
	"expense_category": kindExpenseCategory,
}

// tableNames maps the older table discriminator still sent by some clients.
var tableNames = map[string]entityKind{
	"users":              kindUser,
	"expense_categories": kindExpenseCategory,
	"entry_types":        kindEntryType,
	"tariff_types":       kindTariffType,
	"expenses":           kindExpense,
}

// classifyPayload decides which entity a sync push is for.
//
// Preference order: the explicit entity_type discriminator, then the table
// discriminator, then (only when allowLegacy is set) inference from which
// fields are present. The inference order is a wire contract with deployed
// tablets and must not be rearranged: a pension subscriber also carries a
// plate, so monthly_fee has to be checked before plate.
func classifyPayload(payload map[string]json.RawMessage, allowLegacy bool) (entityKind, error) {
	if raw, ok := payload["entity_type"]; ok {
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			return "", fmt.Errorf("%w: entity_type is not a string", ErrBadPayload)
		}
		kind, ok := entityTypeNames[name]
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrUnknownEntity, name)
		}
		return kind, nil
	}

	if raw, ok := payload["table"]; ok {
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			return "", fmt.Errorf("%w: table is not a string", ErrBadPayload)
		}
		kind, ok := tableNames[name]
		if !ok {
			return "", fmt.Errorf("%w: unknown table %q", ErrUnknownEntity, name)
		}
		return kind, nil
	}

	if !allowLegacy {
		return "", fmt.Errorf("%w: missing entity_type", ErrUnknownEntity)
	}

	_, hasSubscriberID := payload["subscriber_id"]
	_, hasAmount := payload["amount"]
	if hasSubscriberID && hasAmount {
		return kindPayment, nil
	}

	_, hasCategory := payload["category"]
	_, hasExpenseDate := payload["expense_date"]
	if hasCategory && hasExpenseDate {
		return kindExpense, nil
	}

	if _, ok := payload["monthly_fee"]; ok {
		return kindSubscriber, nil
	}

	if _, ok := payload["plate"]; ok {
		return kindParkingRecord, nil
	}

	return "", fmt.Errorf("%w: unrecognized data format", ErrUnknownEntity)
}

// hasField reports whether a key was present in the payload at all,
// distinguishing "absent" from "null" or zero.
func hasField(payload map[string]json.RawMessage, key string) bool {
	_, ok := payload[key]
	return ok
}
