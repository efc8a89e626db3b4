package reportcmder_test

import (
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	reportcmder "github.com/papercomputeco/echoes/cmd/echoes/report"
	"github.com/papercomputeco/echoes/pkg/lifecycle"
	"github.com/papercomputeco/echoes/pkg/triplet"
)

var _ = Describe("Markdown", func() {
	It("summarizes counts by status", func() {
		md := reportcmder.Markdown(reportcmder.Summary{
			Counts: lifecycle.Counts{
				Total:      3,
				Discovered: 2,
				Existing:   1,
				ByStatus: map[triplet.Status]int{
					triplet.StatusAtomOnly:  2,
					triplet.StatusPublished: 1,
				},
			},
			PendingMessages: 4,
		})

		Expect(md).To(ContainSubstring("**3** triplets (2 discovered, 1 existing), **4** buffered messages."))
		Expect(md).To(ContainSubstring("| atom-only | 2 |"))
		Expect(md).To(ContainSubstring("| published | 1 |"))
		Expect(md).To(ContainSubstring("| checking | 0 |"))
		Expect(md).To(ContainSubstring("_Nothing to publish._"))
	})

	It("caps the pending list", func() {
		var pending []triplet.Record
		for i := range 12 {
			pending = append(pending, triplet.Record{
				ID:      fmt.Sprintf("r%d", i),
				Triplet: triplet.Triplet{Subject: "I", Predicate: "like", Object: fmt.Sprintf("o%d", i)},
				Status:  triplet.StatusAtomOnly,
			})
		}

		md := reportcmder.Markdown(reportcmder.Summary{Pending: pending})
		Expect(md).To(ContainSubstring("`r9` I → like → o9 (atom-only)"))
		Expect(md).NotTo(ContainSubstring("`r10`"))
		Expect(md).To(ContainSubstring("and 2 more"))
	})
})
