package ap2

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"Danni-Agent/internal/a2a"
	xerrors "Danni-Agent/internal/errors"
)

const (
	// CartTTL is how long a cart mandate can be paid after it is issued.
	CartTTL = 5 * time.Minute

	x402Version        = "0.2"
	paymentResource    = "/api/a2a"
	paymentMaxTimeoutS = 300
)

var (
	now      = time.Now
	validate = validator.New(validator.WithRequiredStructEnabled())
)

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// BuildCartMandate prices skillID and offers one payment requirement per
// settlement network so the client can pick either.
func BuildCartMandate(skillID, payTo string) (*CartMandate, error) {
	skill, ok := LookupSkill(skillID)
	if !ok {
		return nil, xerrors.New(CodeUnknownSkill,
			fmt.Sprintf("Unknown skill: %s. Available: %s", skillID, strings.Join(SkillIDs(), ", ")))
	}
	amount, err := BaseUnits(skill.Price)
	if err != nil {
		return nil, xerrors.Wrap(CodeUnknownSkill, err, "price table entry is invalid")
	}

	requirement := func(network, description string) PaymentRequirement {
		return PaymentRequirement{
			Scheme:            "exact",
			Network:           network,
			MaxAmountRequired: amount,
			Resource:          paymentResource,
			Description:       description,
			MimeType:          "application/json",
			PayTo:             payTo,
			MaxTimeoutSeconds: paymentMaxTimeoutS,
		}
	}

	issued := now()
	return &CartMandate{
		Type: TypeCartMandate,
		Contents: CartContents{
			Items: []CartItem{{
				SkillID:     skill.ID,
				Description: skill.Description,
				Price:       skill.Price,
				Network:     NetworkBaseSepolia,
				Asset:       USDCBaseSepolia,
			}},
			Total: skill.Price,
		},
		PaymentRequest: PaymentRequest{
			PayTo:       payTo,
			Network:     NetworkBaseSepolia,
			Asset:       USDCBaseSepolia,
			Amount:      amount,
			Facilitator: FacilitatorDefault,
			MethodData: &MethodData{X402: X402MethodData{
				Version: x402Version,
				PaymentRequirements: []PaymentRequirement{
					requirement(NetworkBaseSepolia, skill.Description),
					requirement(NetworkSkaleEuropa, skill.Description+" (SKALE — zero gas)"),
				},
			}},
		},
		ExpiresAt: timestamp(issued.Add(CartTTL)),
		Timestamp: timestamp(issued),
	}, nil
}

type intentWire struct {
	Type                         string         `json:"type" validate:"eq=ap2.mandates.IntentMandate"`
	Description                  *string        `json:"description" validate:"required"`
	SkillID                      *string        `json:"skillId" validate:"required"`
	Parameters                   map[string]any `json:"parameters"`
	IntentExpiry                 *string        `json:"intentExpiry"`
	UserCartConfirmationRequired *bool          `json:"userCartConfirmationRequired"`
}

type paymentWire struct {
	Type              string  `json:"type" validate:"eq=ap2.mandates.PaymentMandate"`
	PaymentPayload    *string `json:"paymentPayload" validate:"required"`
	TransactionHash   *string `json:"transactionHash"`
	UserAuthorization *string `json:"userAuthorization"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// DecodeIntentMandate schema-checks raw as an IntentMandate.
func DecodeIntentMandate(raw json.RawMessage) (*IntentMandate, error) {
	var w intentWire
	if err := decodeWire(raw, &w); err != nil {
		return nil, xerrors.Wrap(CodeMalformedMandate, err, "Invalid IntentMandate")
	}
	return &IntentMandate{
		Type:                         w.Type,
		Description:                  deref(w.Description),
		SkillID:                      deref(w.SkillID),
		Parameters:                   w.Parameters,
		IntentExpiry:                 deref(w.IntentExpiry),
		UserCartConfirmationRequired: w.UserCartConfirmationRequired,
	}, nil
}

// DecodePaymentMandate schema-checks raw as a PaymentMandate without the
// payload emptiness rule.
func DecodePaymentMandate(raw json.RawMessage) (*PaymentMandate, error) {
	var w paymentWire
	if err := decodeWire(raw, &w); err != nil {
		return nil, xerrors.Wrap(CodeMalformedMandate, err, "Invalid PaymentMandate")
	}
	return &PaymentMandate{
		Type:              w.Type,
		PaymentPayload:    deref(w.PaymentPayload),
		TransactionHash:   deref(w.TransactionHash),
		UserAuthorization: deref(w.UserAuthorization),
	}, nil
}

func decodeWire(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return err
	}
	if err := validate.Struct(v); err != nil {
		return a2a.DescribeValidation(err)
	}
	return nil
}

// ValidatePaymentMandate decodes raw and additionally rejects a blank payload.
func ValidatePaymentMandate(raw json.RawMessage) (*PaymentMandate, error) {
	mandate, err := DecodePaymentMandate(raw)
	if err != nil {
		return nil, err
	}
	if err := CheckPayload(mandate); err != nil {
		return nil, err
	}
	return mandate, nil
}

// CheckPayload enforces the rule the shape schema cannot express.
func CheckPayload(m *PaymentMandate) error {
	if strings.TrimSpace(m.PaymentPayload) == "" {
		return ErrEmptyPayload
	}
	return nil
}

// IsCartMandateExpired reports whether expiresAt lies in the past. An absent
// or unparseable timestamp never expires.
func IsCartMandateExpired(expiresAt string) bool {
	if expiresAt == "" {
		return false
	}
	deadline, err := time.Parse(time.RFC3339Nano, expiresAt)
	if err != nil {
		return false
	}
	return now().After(deadline)
}

// BuildPaymentReceipt records a settled payment.
func BuildPaymentReceipt(txHash, network, amount string) PaymentReceipt {
	return PaymentReceipt{
		Type:            TypePaymentReceipt,
		TransactionHash: txHash,
		Network:         network,
		Amount:          amount,
		PaidAt:          timestamp(now()),
		Status:          StatusCompleted,
	}
}

// BuildPaymentMetadata tags status under the x402 namespace and merges extra keys.
func BuildPaymentMetadata(status PaymentStatus, extra map[string]any) map[string]any {
	metadata := make(map[string]any, len(extra)+1)
	metadata[MetaStatus] = status
	for k, v := range extra {
		metadata[k] = v
	}
	return metadata
}
