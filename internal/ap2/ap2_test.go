package ap2

import (
	"encoding/json"
	stdErrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Danni-Agent/internal/a2a"
	xerrors "Danni-Agent/internal/errors"
)

func freezeClock(t *testing.T, at time.Time) {
	t.Helper()
	prev := now
	now = func() time.Time { return at }
	t.Cleanup(func() { now = prev })
}

func TestBuildCartMandatePricing(t *testing.T) {
	cases := []struct {
		skill  string
		total  string
		amount string
	}{
		{"brand-analysis", "$100", "100000000"},
		{"competitive-scan", "$5", "5000000"},
		{"market-pulse", "$5", "5000000"},
	}
	for _, tc := range cases {
		t.Run(tc.skill, func(t *testing.T) {
			cart, err := BuildCartMandate(tc.skill, "0xabc")
			require.NoError(t, err)
			assert.Equal(t, TypeCartMandate, cart.Type)
			assert.Equal(t, tc.total, cart.Contents.Total)
			assert.Equal(t, tc.amount, cart.PaymentRequest.Amount)
			require.Len(t, cart.Contents.Items, 1)
			assert.Equal(t, tc.skill, cart.Contents.Items[0].SkillID)
		})
	}
}

func TestBuildCartMandateRequirements(t *testing.T) {
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	freezeClock(t, issued)

	cart, err := BuildCartMandate("brand-analysis", "0xpay")
	require.NoError(t, err)

	assert.Equal(t, "2026-03-01T12:05:00Z", cart.ExpiresAt)
	assert.Equal(t, "2026-03-01T12:00:00Z", cart.Timestamp)
	assert.Equal(t, FacilitatorDefault, cart.PaymentRequest.Facilitator)
	assert.Equal(t, USDCBaseSepolia, cart.PaymentRequest.Asset)

	require.NotNil(t, cart.PaymentRequest.MethodData)
	x402 := cart.PaymentRequest.MethodData.X402
	assert.Equal(t, "0.2", x402.Version)
	require.Len(t, x402.PaymentRequirements, 2)

	base, skale := x402.PaymentRequirements[0], x402.PaymentRequirements[1]
	assert.Equal(t, NetworkBaseSepolia, base.Network)
	assert.Equal(t, NetworkSkaleEuropa, skale.Network)
	assert.Equal(t, "Strategic Brand Analysis (SKALE — zero gas)", skale.Description)
	for _, req := range x402.PaymentRequirements {
		assert.Equal(t, "exact", req.Scheme)
		assert.Equal(t, "100000000", req.MaxAmountRequired)
		assert.Equal(t, "/api/a2a", req.Resource)
		assert.Equal(t, "0xpay", req.PayTo)
		assert.Equal(t, 300, req.MaxTimeoutSeconds)
	}
}

func TestBuildCartMandateUnknownSkill(t *testing.T) {
	_, err := BuildCartMandate("poetry", "0x0")
	require.Error(t, err)
	assert.True(t, stdErrors.Is(err, ErrUnknownSkill))
	assert.Equal(t, "Unknown skill: poetry. Available: brand-analysis, competitive-scan, market-pulse", err.Error())
	assert.Equal(t, RPCPaymentRequired, xerrors.RPCCodeOf(err))
}

func TestIsCartMandateExpired(t *testing.T) {
	freezeClock(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	assert.False(t, IsCartMandateExpired(""))
	assert.False(t, IsCartMandateExpired("2026-03-01T12:00:01Z"))
	assert.True(t, IsCartMandateExpired("2026-03-01T11:59:59.999Z"))
	assert.False(t, IsCartMandateExpired("not-a-date"))
}

func TestValidatePaymentMandate(t *testing.T) {
	m, err := ValidatePaymentMandate(json.RawMessage(`{"type":"ap2.mandates.PaymentMandate","paymentPayload":"sig","transactionHash":"0x1"}`))
	require.NoError(t, err)
	assert.Equal(t, "sig", m.PaymentPayload)
	assert.Equal(t, "0x1", m.TransactionHash)

	_, err = ValidatePaymentMandate(json.RawMessage(`{"type":"ap2.mandates.PaymentMandate","paymentPayload":"   "}`))
	require.ErrorIs(t, err, ErrEmptyPayload)
	assert.Equal(t, "PaymentMandate paymentPayload cannot be empty", err.Error())

	_, err = ValidatePaymentMandate(json.RawMessage(`{"type":"ap2.mandates.PaymentMandate"}`))
	require.ErrorIs(t, err, ErrMalformedMandate)
	assert.Contains(t, err.Error(), "Invalid PaymentMandate")
}

func TestBuildPaymentReceiptAndMetadata(t *testing.T) {
	freezeClock(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	receipt := BuildPaymentReceipt("0xhash", NetworkBaseSepolia, "100000000")
	assert.Equal(t, TypePaymentReceipt, receipt.Type)
	assert.Equal(t, StatusCompleted, receipt.Status)
	assert.Equal(t, "2026-03-01T12:00:00Z", receipt.PaidAt)

	meta := BuildPaymentMetadata(StatusCompleted, map[string]any{MetaReceipts: []PaymentReceipt{receipt}})
	assert.Equal(t, StatusCompleted, meta[MetaStatus])
	assert.Len(t, meta[MetaReceipts], 1)

	assert.Equal(t, map[string]any{MetaStatus: StatusRequired}, BuildPaymentMetadata(StatusRequired, nil))
}

func dataPart(t *testing.T, raw string) a2a.Part {
	t.Helper()
	return a2a.Part{Type: a2a.PartData, MimeType: "application/json", Data: json.RawMessage(raw)}
}

func TestDetectMandate(t *testing.T) {
	intent := `{"type":"ap2.mandates.IntentMandate","skillId":"brand-analysis","description":"Brand review"}`
	payment := `{"type":"ap2.mandates.PaymentMandate","paymentPayload":"sig"}`

	t.Run("none", func(t *testing.T) {
		d := DetectMandate([]a2a.Part{a2a.TextPart("hello"), dataPart(t, `{"foo":1}`), dataPart(t, `[1,2]`)})
		assert.Equal(t, KindNone, d.Kind)
	})
	t.Run("intent", func(t *testing.T) {
		d := DetectMandate([]a2a.Part{a2a.TextPart("hello"), dataPart(t, intent)})
		require.Equal(t, KindIntent, d.Kind)
		assert.Equal(t, "brand-analysis", d.Intent.SkillID)
	})
	t.Run("payment", func(t *testing.T) {
		d := DetectMandate([]a2a.Part{dataPart(t, payment)})
		require.Equal(t, KindPayment, d.Kind)
		assert.Equal(t, "sig", d.Payment.PaymentPayload)
	})
	t.Run("first tagged part wins over later intent", func(t *testing.T) {
		d := DetectMandate([]a2a.Part{a2a.TextPart("pay"), dataPart(t, payment), dataPart(t, intent)})
		require.Equal(t, KindPayment, d.Kind)
		assert.Equal(t, "sig", d.Payment.PaymentPayload)
		assert.Equal(t, 1, d.Ignored)
	})
	t.Run("later malformed part is ignored", func(t *testing.T) {
		d := DetectMandate([]a2a.Part{dataPart(t, intent), dataPart(t, `{"type":"ap2.mandates.PaymentMandate"}`)})
		require.Equal(t, KindIntent, d.Kind)
		assert.Equal(t, "brand-analysis", d.Intent.SkillID)
		assert.Equal(t, 1, d.Ignored)
	})
	t.Run("malformed first part decides", func(t *testing.T) {
		d := DetectMandate([]a2a.Part{dataPart(t, `{"type":"ap2.mandates.PaymentMandate","paymentPayload":7}`), dataPart(t, intent)})
		require.Equal(t, KindMalformed, d.Kind)
		assert.True(t, stdErrors.Is(d.Err, ErrMalformedMandate))
		assert.Contains(t, d.Err.Error(), "Invalid PaymentMandate")
		assert.Equal(t, 1, d.Ignored)
	})
	t.Run("intent missing skill", func(t *testing.T) {
		d := DetectMandate([]a2a.Part{dataPart(t, `{"type":"ap2.mandates.IntentMandate","description":"x"}`)})
		require.Equal(t, KindMalformed, d.Kind)
		assert.Contains(t, d.Err.Error(), "Invalid IntentMandate")
	})
}

func TestLedgerNewestFirst(t *testing.T) {
	l := NewLedger()
	l.Record(Transaction{ID: "1"})
	l.Record(Transaction{ID: "2"})

	list := l.List()
	require.Len(t, list, 2)
	assert.Equal(t, "2", list[0].ID)
	assert.Equal(t, 2, l.Count())
}
