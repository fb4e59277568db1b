package ap2

// Mandate type tags carried in the "type" field of data part payloads.
const (
	TypeIntentMandate  = "ap2.mandates.IntentMandate"
	TypeCartMandate    = "ap2.mandates.CartMandate"
	TypePaymentMandate = "ap2.mandates.PaymentMandate"
	TypePaymentReceipt = "ap2.mandates.PaymentReceipt"
)

// PaymentStatus is the x402 payment lifecycle tag attached to messages and artifacts.
type PaymentStatus string

const (
	StatusRequired  PaymentStatus = "payment-required"
	StatusSubmitted PaymentStatus = "payment-submitted"
	StatusVerified  PaymentStatus = "payment-verified"
	StatusCompleted PaymentStatus = "payment-completed"
	StatusFailed    PaymentStatus = "payment-failed"
)

// Metadata keys shared by every payment-tagged message and artifact.
const (
	MetaStatus   = "x402.payment.status"
	MetaRequired = "x402.payment.required"
	MetaPayload  = "x402.payment.payload"
	MetaReceipts = "x402.payment.receipts"
)

// Protocol extension URIs advertised to clients.
const (
	ExtensionX402V02 = "https://github.com/google-agentic-commerce/a2a-x402/blob/main/spec/v0.2"
	ExtensionAP2V01  = "https://github.com/google-agentic-commerce/ap2/tree/v0.1"
)

// IntentMandate asks for a priced cart for one skill.
type IntentMandate struct {
	Type                         string         `json:"type"`
	Description                  string         `json:"description"`
	SkillID                      string         `json:"skillId"`
	Parameters                   map[string]any `json:"parameters,omitempty"`
	IntentExpiry                 string         `json:"intentExpiry,omitempty"`
	UserCartConfirmationRequired *bool          `json:"userCartConfirmationRequired,omitempty"`
}

type CartItem struct {
	SkillID     string `json:"skillId"`
	Description string `json:"description"`
	Price       string `json:"price"`
	Network     string `json:"network"`
	Asset       string `json:"asset"`
}

type CartContents struct {
	Items []CartItem `json:"items"`
	Total string     `json:"total"`
}

// PaymentRequirement is one x402 "exact" scheme option a facilitator can settle.
type PaymentRequirement struct {
	Scheme            string `json:"scheme"`
	Network           string `json:"network"`
	MaxAmountRequired string `json:"maxAmountRequired"`
	Resource          string `json:"resource"`
	Description       string `json:"description"`
	MimeType          string `json:"mimeType,omitempty"`
	PayTo             string `json:"payTo"`
	MaxTimeoutSeconds int    `json:"maxTimeoutSeconds"`
	OutputSchema      any    `json:"outputSchema,omitempty"`
}

type X402MethodData struct {
	Version             string               `json:"version"`
	PaymentRequirements []PaymentRequirement `json:"paymentRequirements"`
}

type MethodData struct {
	X402 X402MethodData `json:"x402"`
}

type PaymentRequest struct {
	PayTo       string      `json:"payTo"`
	Network     string      `json:"network"`
	Asset       string      `json:"asset"`
	Amount      string      `json:"amount"`
	Facilitator string      `json:"facilitator"`
	MethodData  *MethodData `json:"methodData,omitempty"`
}

// CartMandate is the merchant's priced offer. It is embedded once as a task
// artifact and never mutated.
type CartMandate struct {
	Type              string         `json:"type"`
	Contents          CartContents   `json:"contents"`
	PaymentRequest    PaymentRequest `json:"paymentRequest"`
	ExpiresAt         string         `json:"expiresAt,omitempty"`
	MerchantSignature string         `json:"merchantSignature,omitempty"`
	Timestamp         string         `json:"timestamp,omitempty"`
}

// PaymentMandate carries the client's payment proof.
type PaymentMandate struct {
	Type              string `json:"type"`
	PaymentPayload    string `json:"paymentPayload"`
	TransactionHash   string `json:"transactionHash,omitempty"`
	UserAuthorization string `json:"userAuthorization,omitempty"`
}

type PaymentReceipt struct {
	Type            string        `json:"type"`
	TransactionHash string        `json:"transactionHash"`
	Network         string        `json:"network"`
	Amount          string        `json:"amount"`
	PaidAt          string        `json:"paidAt"`
	Status          PaymentStatus `json:"status"`
}
