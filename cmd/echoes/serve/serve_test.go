package servecmder

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("NewServeCmd", func() {
	It("registers the storage, api and event stream flags", func() {
		cmd := NewServeCmd()
		for _, name := range []string{
			"backend", "sqlite", "postgres-dsn", "max-value-bytes",
			"listen", "max-triplets", "eventstream", "kafka-brokers", "kafka-topic", "ledger",
			"workers", "queue-size", "retry-interval", "log-file",
		} {
			Expect(cmd.Flags().Lookup(name)).NotTo(BeNil(), name)
		}
	})

	It("retries skipped drains every five seconds by default", func() {
		cmd := NewServeCmd()
		Expect(cmd.Flags().Lookup("retry-interval").DefValue).To(Equal("5s"))
	})

	It("defaults listen from the config defaults", func() {
		cmd := NewServeCmd()
		Expect(cmd.Flags().Lookup("listen").DefValue).To(Equal(":8082"))
	})
})

var _ = Describe("apiURL", func() {
	It("prefixes a bare port with localhost", func() {
		Expect(apiURL(":8082")).To(Equal("http://localhost:8082"))
	})

	It("keeps an explicit host", func() {
		Expect(apiURL("0.0.0.0:9000")).To(Equal("http://0.0.0.0:9000"))
	})
})
