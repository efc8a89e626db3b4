package api

import (
	"bytes"
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/echoes/pkg/buffer"
	"github.com/papercomputeco/echoes/pkg/chunked"
	"github.com/papercomputeco/echoes/pkg/cleanup"
	"github.com/papercomputeco/echoes/pkg/extract"
	"github.com/papercomputeco/echoes/pkg/lifecycle"
	"github.com/papercomputeco/echoes/pkg/logger"
	"github.com/papercomputeco/echoes/pkg/storage/inmemory"
	"github.com/papercomputeco/echoes/pkg/triplet"
	testutils "github.com/papercomputeco/echoes/pkg/utils/test"
)

var _ = Describe("Handlers", func() {
	var (
		ctx      context.Context
		server   *Server
		triplets *chunked.Store[triplet.Record]
		messages *chunked.Store[triplet.RawMessage]
		mock     *testutils.MockLedger
		guard    *lifecycle.Guard
		machine  *lifecycle.Machine
	)

	do := func(method, path string, body any) (*http.Response, []byte) {
		var reader io.Reader
		if body != nil {
			raw, err := json.Marshal(body)
			Expect(err).NotTo(HaveOccurred())
			reader = bytes.NewReader(raw)
		}

		req, err := http.NewRequest(method, path, reader)
		Expect(err).NotTo(HaveOccurred())
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := server.app.Test(req, -1)
		Expect(err).NotTo(HaveOccurred())
		respBody, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return resp, respBody
	}

	seed := func(records ...triplet.Record) {
		Expect(triplets.Save(ctx, records)).To(Succeed())
	}

	ready := func(id, object string) triplet.Record {
		return triplet.Record{
			ID:          id,
			Triplet:     triplet.Triplet{Subject: "I", Predicate: "like", Object: object},
			Status:      triplet.StatusReady,
			Origin:      triplet.OriginDiscovered,
			ExtractedAt: time.Now().UTC(),
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		driver := inmemory.NewDriver()

		var err error
		triplets, err = chunked.New[triplet.Record](driver, extract.DefaultCollection, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		messages, err = chunked.New[triplet.RawMessage](driver, buffer.DefaultCollection, logger.Nop())
		Expect(err).NotTo(HaveOccurred())

		extractor, err := extract.New(extract.Config{Store: triplets, Parser: testutils.NewMockParser()})
		Expect(err).NotTo(HaveOccurred())
		buf, err := buffer.New(buffer.Config{Messages: messages, Triplets: triplets, Extractor: extractor})
		Expect(err).NotTo(HaveOccurred())

		mock = testutils.NewMockLedger()
		guard = lifecycle.NewGuard()
		machine, err = lifecycle.New(lifecycle.Config{Store: triplets, Ledger: mock, Guard: guard})
		Expect(err).NotTo(HaveOccurred())

		cleaner, err := cleanup.New(cleanup.Config{Driver: driver, Messages: messages, Triplets: triplets})
		Expect(err).NotTo(HaveOccurred())

		server, err = NewServer(Config{ListenAddr: ":0"}, Deps{Buffer: buf, Machine: machine, Cleaner: cleaner}, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
	})

	It("answers pings", func() {
		resp, body := do(http.MethodGet, "/ping", nil)
		Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
		Expect(string(body)).To(Equal(`"pong"`))
	})

	Describe("POST /messages and POST /drain", func() {
		It("buffers messages and drains them into triplets", func() {
			resp, _ := do(http.MethodPost, "/messages", MessageRequest{ID: "m1", Text: "I|like|Go"})
			Expect(resp.StatusCode).To(Equal(fiber.StatusCreated))

			resp, _ = do(http.MethodPost, "/messages", MessageRequest{ID: "m1", Text: "I|like|Go"})
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			resp, _ = do(http.MethodPost, "/messages", MessageRequest{Text: "FAIL"})
			Expect(resp.StatusCode).To(Equal(fiber.StatusCreated))

			resp, body := do(http.MethodPost, "/drain", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var result DrainResponse
			Expect(json.Unmarshal(body, &result)).To(Succeed())
			Expect(result.Processed).To(Equal([]string{"m1"}))
			Expect(result.Added).To(HaveLen(1))
			Expect(result.Pending).To(Equal(1))
			Expect(result.Failures).To(HaveLen(1))

			resp, body = do(http.MethodGet, "/stats", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			var stats StatsResponse
			Expect(json.Unmarshal(body, &stats)).To(Succeed())
			Expect(stats.Total).To(Equal(1))
			Expect(stats.PendingMessages).To(Equal(1))
		})

		It("rejects empty messages", func() {
			resp, body := do(http.MethodPost, "/messages", MessageRequest{ID: "m1"})
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))

			var errResp ErrorResponse
			Expect(json.Unmarshal(body, &errResp)).To(Succeed())
			Expect(errResp.Error).To(Equal("text is required"))
		})
	})

	Describe("GET /triplets", func() {
		BeforeEach(func() {
			published := ready("b", "docs")
			published.Status = triplet.StatusPublished
			seed(ready("a", "Go"), published)
		})

		It("lists every record", func() {
			resp, body := do(http.MethodGet, "/triplets", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var out struct {
				Count int `json:"count"`
			}
			Expect(json.Unmarshal(body, &out)).To(Succeed())
			Expect(out.Count).To(Equal(2))
		})

		It("filters by status", func() {
			_, body := do(http.MethodGet, "/triplets?status=published", nil)

			var out struct {
				Triplets []triplet.Record `json:"triplets"`
			}
			Expect(json.Unmarshal(body, &out)).To(Succeed())
			Expect(out.Triplets).To(HaveLen(1))
			Expect(out.Triplets[0].ID).To(Equal("b"))
		})

		It("rejects unknown statuses", func() {
			resp, _ := do(http.MethodGet, "/triplets?status=bogus", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})

		It("returns 404 for unknown ids", func() {
			resp, _ := do(http.MethodGet, "/triplets/nope", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))
		})
	})

	Describe("lifecycle routes", func() {
		BeforeEach(func() {
			atomOnly := ready("a", "Go")
			atomOnly.Status = triplet.StatusAtomOnly
			seed(atomOnly, ready("b", "docs"), ready("c", "vim"))
		})

		It("checks a record", func() {
			resp, body := do(http.MethodPost, "/triplets/a/check", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var r triplet.Record
			Expect(json.Unmarshal(body, &r)).To(Succeed())
			Expect(r.Status).To(Equal(triplet.StatusReady))
		})

		It("publishes a record", func() {
			resp, body := do(http.MethodPost, "/triplets/b/publish", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var r triplet.Record
			Expect(json.Unmarshal(body, &r)).To(Succeed())
			Expect(r.Status).To(Equal(triplet.StatusPublished))
		})

		It("returns 409 while another publish is in flight", func() {
			Expect(guard.TryAcquire("c")).To(BeTrue())
			defer guard.Release()

			resp, body := do(http.MethodPost, "/triplets/b/publish", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusConflict))
			Expect(string(body)).To(ContainSubstring("c"))
		})

		It("returns 502 when the ledger fails", func() {
			mock.FailSubmit = true

			resp, _ := do(http.MethodPost, "/triplets/b/publish", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadGateway))
		})

		It("batch publishes every pending record by default", func() {
			resp, body := do(http.MethodPost, "/triplets/publish", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var result lifecycle.BatchResult
			Expect(json.Unmarshal(body, &result)).To(Succeed())
			Expect(result.Published).To(HaveLen(3))
			Expect(result.TxRef).To(Equal("tx:batch"))
		})

		It("batch publishes the requested ids", func() {
			_, body := do(http.MethodPost, "/triplets/publish", BatchPublishRequest{IDs: []string{"b", "ghost"}})

			var result lifecycle.BatchResult
			Expect(json.Unmarshal(body, &result)).To(Succeed())
			Expect(result.Published).To(HaveLen(1))
			Expect(result.Skipped).To(HaveLen(1))
		})

		It("forgets a record", func() {
			resp, _ := do(http.MethodDelete, "/triplets/c", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusNoContent))

			resp, _ = do(http.MethodDelete, "/triplets/c", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))
		})
	})

	Describe("GET /debug/vars", func() {
		It("exposes the request counters", func() {
			before := counters.Get(counterMessages)
			resp, _ := do(http.MethodPost, "/messages", MessageRequest{ID: "m9", Text: "I|like|vars"})
			Expect(resp.StatusCode).To(Equal(fiber.StatusCreated))

			resp, body := do(http.MethodGet, "/debug/vars", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var vars struct {
				Echoes map[string]int64 `json:"echoes"`
			}
			Expect(json.Unmarshal(body, &vars)).To(Succeed())

			var prev int64
			if before != nil {
				prev = before.(*expvar.Int).Value()
			}
			Expect(vars.Echoes[counterMessages]).To(Equal(prev + 1))
		})
	})

	Describe("PATCH /triplets/:id", func() {
		BeforeEach(func() {
			atomOnly := ready("a", "Go")
			atomOnly.Status = triplet.StatusAtomOnly
			seed(atomOnly, ready("b", "docs"))
		})

		It("edits content fields", func() {
			object := "  Golang "
			desc := "a language"
			resp, body := do(http.MethodPatch, "/triplets/a", EditRequest{Object: &object, ObjectDescription: &desc})
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var r triplet.Record
			Expect(json.Unmarshal(body, &r)).To(Succeed())
			Expect(r.Triplet.Object).To(Equal("Golang"))
			Expect(r.ObjectDescription).To(Equal("a language"))
			Expect(r.Triplet.Subject).To(Equal("I"))
		})

		It("returns 409 when the edit duplicates another record", func() {
			object := "docs"
			resp, body := do(http.MethodPatch, "/triplets/a", EditRequest{Object: &object})
			Expect(resp.StatusCode).To(Equal(fiber.StatusConflict))
			Expect(string(body)).To(ContainSubstring("duplicate"))

			records, err := triplets.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(records[0].Triplet.Object).To(Equal("Go"))
		})

		It("returns 409 when the triplet of a ready record changes", func() {
			object := "manuals"
			resp, _ := do(http.MethodPatch, "/triplets/b", EditRequest{Object: &object})
			Expect(resp.StatusCode).To(Equal(fiber.StatusConflict))
		})

		It("returns 404 for unknown ids", func() {
			desc := "x"
			resp, _ := do(http.MethodPatch, "/triplets/ghost", EditRequest{ObjectDescription: &desc})
			Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))
		})
	})

	Describe("POST /cleanup", func() {
		BeforeEach(func() {
			var records []triplet.Record
			for i := range 12 {
				r := ready(fmt.Sprintf("r%02d", i), fmt.Sprintf("o%d", i))
				r.ExtractedAt = time.Date(2026, 1, 1, 0, i, 0, 0, time.UTC)
				records = append(records, r)
			}
			seed(records...)
			Expect(messages.Save(ctx, []triplet.RawMessage{{ID: "m1", Text: "hi"}})).To(Succeed())
		})

		It("keeps the ten newest records by default", func() {
			resp, body := do(http.MethodPost, "/cleanup", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var result cleanup.Result
			Expect(json.Unmarshal(body, &result)).To(Succeed())
			Expect(result.MessagesCleared).To(Equal(1))
			Expect(result.TripletsRemoved).To(Equal(2))
			Expect(result.TripletsKept).To(Equal(10))
		})

		It("honours keep and all", func() {
			keep := 3
			_, body := do(http.MethodPost, "/cleanup", CleanupRequest{Keep: &keep})
			var result cleanup.Result
			Expect(json.Unmarshal(body, &result)).To(Succeed())
			Expect(result.TripletsKept).To(Equal(3))

			_, body = do(http.MethodPost, "/cleanup", CleanupRequest{All: true})
			Expect(json.Unmarshal(body, &result)).To(Succeed())
			Expect(result.TripletsKept).To(BeZero())
		})

		It("rejects a negative keep", func() {
			keep := -2
			resp, _ := do(http.MethodPost, "/cleanup", CleanupRequest{Keep: &keep})
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})
	})
})
