package processor_test

import (
	"context"
	"io"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/pocket-settlement/internal/processor"
)

var _ = Describe("Stub", func() {
	var (
		stub *processor.Stub
		ctx  context.Context
	)

	BeforeEach(func() {
		stub = processor.NewStub(slog.New(slog.NewTextHandler(io.Discard, nil)))
		ctx = context.Background()
	})

	It("should move the registered amount between pockets", func() {
		// Given
		stub.SetNextOrderID(42)
		order, err := stub.Register(ctx, processor.RegisterRequest{Amount: 9750, Reference: "reloc-1-payee"})
		Expect(err).ToNot(HaveOccurred())
		Expect(order.ID).To(Equal("42"))

		// When
		_, err = stub.Relocate(ctx, processor.RelocateRequest{OrderID: "42", FromSdRef: "tmp-1", ToSdRef: "payee-1"})

		// Then
		Expect(err).ToNot(HaveOccurred())
		Expect(stub.BalanceOf("payee-1")).To(Equal(int64(9750)))
		Expect(stub.Relocations()).To(ConsistOf(processor.Relocation{OrderID: "42", From: "tmp-1", To: "payee-1", Amount: 9750}))
	})

	It("should refuse to reuse an order for a second relocation", func() {
		order, _ := stub.Register(ctx, processor.RegisterRequest{Amount: 100})
		_, err := stub.Relocate(ctx, processor.RelocateRequest{OrderID: order.ID, FromSdRef: "a", ToSdRef: "b"})
		Expect(err).ToNot(HaveOccurred())

		_, err = stub.Relocate(ctx, processor.RelocateRequest{OrderID: order.ID, FromSdRef: "a", ToSdRef: "b"})

		Expect(processor.IsCode(err, "130")).To(BeTrue())
	})

	It("should return injected relocation failures in order", func() {
		order, _ := stub.Register(ctx, processor.RegisterRequest{Amount: 100})
		stub.FailNextRelocations(&processor.Rejection{Code: "109", Description: "busy"})

		_, err := stub.Relocate(ctx, processor.RelocateRequest{OrderID: order.ID, FromSdRef: "a", ToSdRef: "b"})
		Expect(processor.IsCode(err, "109")).To(BeTrue())

		_, err = stub.Relocate(ctx, processor.RelocateRequest{OrderID: order.ID, FromSdRef: "a", ToSdRef: "b"})
		Expect(err).ToNot(HaveOccurred())
	})

	It("should reject a card payout beyond the pocket balance", func() {
		stub.Credit("payee-1", 1000)

		_, err := stub.PayOutCard(ctx, processor.CardPayOutRequest{SdRef: "payee-1", Pan: "4111111111111111", Amount: 990, Fee: 20})

		Expect(processor.IsCode(err, "151")).To(BeTrue())
		Expect(stub.BalanceOf("payee-1")).To(Equal(int64(1000)))
	})
})
