package processor_test

import (
	"fmt"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/pocket-settlement/internal/processor"
	"github.com/frahmantamala/pocket-settlement/internal/signer"
)

func signedCallback(secret string, reference, state, orderState string) []byte {
	sig := signer.Sign([]string{"42", "900", reference, state, orderState}, secret)
	return []byte(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<operation>
  <order_id>42</order_id>
  <id>900</id>
  <reference>%s</reference>
  <state>%s</state>
  <order_state>%s</order_state>
  <signature>%s</signature>
</operation>`, reference, state, orderState, sig))
}

var _ = Describe("ParseNotification", func() {
	It("should accept a correctly signed callback", func() {
		n, err := processor.ParseNotification(signedCallback("secret", "idem-1", "approved", "COMPLETED"), "secret")

		Expect(err).ToNot(HaveOccurred())
		Expect(n.Reference).To(Equal("idem-1"))
		Expect(n.OrderID).To(Equal("42"))
		Expect(n.OperationID).To(Equal("900"))
		Expect(n.State).To(Equal("APPROVED"))
		Expect(n.Approved()).To(BeTrue())
	})

	It("should reject a callback signed with another secret", func() {
		_, err := processor.ParseNotification(signedCallback("other", "idem-1", "APPROVED", "COMPLETED"), "secret")

		Expect(err).To(MatchError(processor.ErrInvalidSignature))
	})

	It("should reject a callback with a tampered value", func() {
		body := string(signedCallback("secret", "idem-1", "REJECTED", ""))
		tampered := []byte(strings.Replace(body, "<state>REJECTED</state>", "<state>APPROVED</state>", 1))

		_, err := processor.ParseNotification(tampered, "secret")

		Expect(err).To(MatchError(processor.ErrInvalidSignature))
	})

	It("should verify values exactly as sent, surrounding whitespace included", func() {
		body := signedCallback("secret", " idem-1 ", "APPROVED", "COMPLETED")

		n, err := processor.ParseNotification(body, "secret")

		Expect(err).ToNot(HaveOccurred())
		Expect(n.Reference).To(Equal("idem-1"))
	})

	It("should reject a callback without a signature", func() {
		_, err := processor.ParseNotification([]byte(`<operation><reference>idem-1</reference><state>APPROVED</state></operation>`), "secret")

		Expect(err).To(MatchError(processor.ErrInvalidSignature))
	})

	It("should build a failure reason from code and description", func() {
		n := &processor.Notification{Code: "05", Description: "Do not honor", State: "REJECTED"}

		Expect(n.Approved()).To(BeFalse())
		Expect(n.FailureReason()).To(Equal("code 05: Do not honor"))
	})

	It("should fall back to the state for an unexplained failure", func() {
		n := &processor.Notification{State: "REJECTED"}

		Expect(n.FailureReason()).To(Equal("processor state REJECTED"))
	})
})
