package ap2

import (
	"encoding/json"

	"Danni-Agent/internal/a2a"
)

// MandateKind is the outcome of scanning a message for mandates.
type MandateKind int

const (
	KindNone MandateKind = iota
	KindIntent
	KindPayment
	KindMalformed
)

func (k MandateKind) String() string {
	switch k {
	case KindIntent:
		return "intent"
	case KindPayment:
		return "payment"
	case KindMalformed:
		return "malformed"
	default:
		return "none"
	}
}

// Detection is a tagged union; exactly one of Intent, Payment or Err is set
// unless Kind is KindNone.
type Detection struct {
	Kind    MandateKind
	Intent  *IntentMandate
	Payment *PaymentMandate
	Err     error

	// Ignored counts tagged parts after the one that decided the result.
	// They are neither decoded nor validated.
	Ignored int
}

type taggedPayload struct {
	Type string `json:"type"`
}

// DetectMandate scans the data parts of a message in array order. The first
// part carrying a mandate tag decides the outcome whatever its kind; only that
// part is validated, and a schema failure there makes the message malformed.
func DetectMandate(parts []a2a.Part) Detection {
	var (
		result  Detection
		decided bool
	)
	for _, part := range parts {
		kind := mandateTag(part)
		if kind == "" {
			continue
		}
		if decided {
			result.Ignored++
			continue
		}
		decided = true
		switch kind {
		case TypeIntentMandate:
			intent, err := DecodeIntentMandate(part.Data)
			if err != nil {
				result = Detection{Kind: KindMalformed, Err: err}
				continue
			}
			result = Detection{Kind: KindIntent, Intent: intent}
		case TypePaymentMandate:
			payment, err := DecodePaymentMandate(part.Data)
			if err != nil {
				result = Detection{Kind: KindMalformed, Err: err}
				continue
			}
			result = Detection{Kind: KindPayment, Payment: payment}
		}
	}
	return result
}

// mandateTag returns the mandate type of a data part, or "" when the part is
// not a tagged mandate object.
func mandateTag(part a2a.Part) string {
	if part.Type != a2a.PartData || len(part.Data) == 0 {
		return ""
	}
	var tag taggedPayload
	if err := json.Unmarshal(part.Data, &tag); err != nil {
		// not an object, or an object whose type is not a string
		return ""
	}
	switch tag.Type {
	case TypeIntentMandate, TypePaymentMandate:
		return tag.Type
	}
	return ""
}
