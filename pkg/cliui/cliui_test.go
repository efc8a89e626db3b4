package cliui_test

import (
	"bytes"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/echoes/pkg/cliui"
	"github.com/papercomputeco/echoes/pkg/triplet"
)

var _ = Describe("cliui", func() {
	Describe("Step", func() {
		It("returns the error of fn and prints the failure mark", func() {
			var buf bytes.Buffer
			boom := errors.New("boom")

			err := cliui.Step(&buf, "draining", func() error { return boom })
			Expect(err).To(MatchError(boom))
			Expect(buf.String()).To(ContainSubstring("draining"))
			Expect(buf.String()).To(ContainSubstring(cliui.FailMark))
		})

		It("prints the success mark", func() {
			var buf bytes.Buffer
			Expect(cliui.Step(&buf, "migrating", func() error { return nil })).To(Succeed())
			Expect(buf.String()).To(ContainSubstring(cliui.SuccessMark))
		})
	})

	Describe("FormatDuration", func() {
		It("uses milliseconds under a second", func() {
			Expect(cliui.FormatDuration(12 * time.Millisecond)).To(Equal("12ms"))
		})

		It("uses seconds otherwise", func() {
			Expect(cliui.FormatDuration(3200 * time.Millisecond)).To(Equal("3.2s"))
		})
	})

	Describe("Status", func() {
		It("keeps the status text", func() {
			Expect(cliui.Status(triplet.StatusPublished)).To(ContainSubstring("published"))
			Expect(cliui.Status(triplet.Status("bogus"))).To(ContainSubstring("bogus"))
		})
	})
})
