package fee

import (
	"net/mail"

	"github.com/shopspring/decimal"

	"github.com/trezcool/masomo-fees/core"
)

const receiptTemplate = "payment_receipt"

type receiptData struct {
	ParentName           string
	TotalAmount          string
	TransactionRef       string
	PaymentMethod        string
	Allocations          []receiptLine
	HasRemainder         bool
	UnallocatedRemainder string
}

type receiptLine struct {
	CategoryName string
	Amount       string
}

func formatAmount(d decimal.Decimal) string {
	return d.StringFixed(amountScale)
}

func newReceiptMessage(to mail.Address, rcpt Receipt) *core.EmailMessage {
	data := receiptData{
		ParentName:           to.Name,
		TotalAmount:          formatAmount(rcpt.TotalAmount),
		TransactionRef:       rcpt.TransactionRef,
		PaymentMethod:        rcpt.PaymentMethod,
		Allocations:          make([]receiptLine, 0, len(rcpt.Allocations)),
		HasRemainder:         rcpt.UnallocatedRemainder.IsPositive(),
		UnallocatedRemainder: formatAmount(rcpt.UnallocatedRemainder),
	}
	for _, l := range rcpt.Allocations {
		data.Allocations = append(data.Allocations, receiptLine{CategoryName: l.CategoryName, Amount: formatAmount(l.Amount)})
	}

	return &core.EmailMessage{
		To:           []mail.Address{to},
		Subject:      "Payment receipt " + rcpt.TransactionRef,
		TemplateName: receiptTemplate,
		TemplateData: data,
	}
}
