package ap2

import (
	xerrors "Danni-Agent/internal/errors"
)

// Payment-domain JSON-RPC codes.
const (
	RPCPaymentRequired = -32010
	RPCPaymentInvalid  = -32011
	RPCPaymentExpired  = -32012
	RPCPaymentFailed   = -32013
)

const (
	CodeUnknownSkill     xerrors.Code = "PAYMENT_UNKNOWN_SKILL"
	CodeMalformedMandate xerrors.Code = "PAYMENT_MALFORMED_MANDATE"
	CodeEmptyPayload     xerrors.Code = "PAYMENT_EMPTY_PAYLOAD"
	CodeCartExpired      xerrors.Code = "PAYMENT_CART_EXPIRED"
	CodePaymentFailed    xerrors.Code = "PAYMENT_FAILED"
)

var (
	ErrUnknownSkill     = xerrors.New(CodeUnknownSkill, "")
	ErrMalformedMandate = xerrors.New(CodeMalformedMandate, "")
	ErrEmptyPayload     = xerrors.New(CodeEmptyPayload, "PaymentMandate paymentPayload cannot be empty")
	ErrCartExpired      = xerrors.New(CodeCartExpired, "Cart mandate has expired. Submit a new IntentMandate.")
)

func init() {
	xerrors.Register(CodeUnknownSkill, xerrors.Attributes{
		Message:  "unknown skill",
		Severity: xerrors.SeverityInfo,
		RPCCode:  RPCPaymentRequired,
	})
	xerrors.Register(CodeMalformedMandate, xerrors.Attributes{
		Message:  "Malformed AP2 mandate",
		Severity: xerrors.SeverityInfo,
		RPCCode:  RPCPaymentInvalid,
	})
	xerrors.Register(CodeEmptyPayload, xerrors.Attributes{
		Message:  "empty payment payload",
		Severity: xerrors.SeverityInfo,
		RPCCode:  RPCPaymentInvalid,
	})
	xerrors.Register(CodeCartExpired, xerrors.Attributes{
		Message:  "cart mandate expired",
		Severity: xerrors.SeverityInfo,
		RPCCode:  RPCPaymentExpired,
	})
	xerrors.Register(CodePaymentFailed, xerrors.Attributes{
		Message:  "Payment processing failed",
		Severity: xerrors.SeverityWarning,
		RPCCode:  RPCPaymentFailed,
	})
}
