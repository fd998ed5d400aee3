package directory_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/liamdty/theramatch/pkg/directory"
)

var _ = Describe("Client", func() {
	var (
		server   *httptest.Server
		received map[string]any
		headers  http.Header
		respond  func(w http.ResponseWriter)
		client   *directory.Client
		ctx      context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		received = nil
		respond = func(w http.ResponseWriter) {
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{"data":{"total":42}}`)
		}

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			headers = r.Header.Clone()
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, &received)
			respond(w)
		}))

		client = directory.NewClient(directory.Config{URL: server.URL}, zap.NewNop())
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("Count", func() {
		It("sends the search payload and reports the total", func() {
			summary := client.Count(ctx, []int{2, 84}, nil)

			Expect(summary.MatchCount).To(Equal(42))
			Expect(summary.FiltersApplied).To(Equal([]int{2, 84}))
			Expect(summary.Location).To(Equal(directory.DefaultLocation))
			Expect(summary.Message).To(Equal("42 matching therapists"))
			Expect(summary.Error).To(BeFalse())

			Expect(received).To(HaveKeyWithValue("attributeIds", []any{2.0, 84.0}))
			Expect(received).To(HaveKeyWithValue("limit", 0.0))
			Expect(received).To(HaveKeyWithValue("from", 0.0))
			Expect(received).To(HaveKeyWithValue("seed", "default_seed"))
			Expect(received).To(HaveKeyWithValue("costFilter", BeNil()))
			Expect(received).To(HaveKeyWithValue("psychiatristsFilter", BeNil()))
			Expect(received).To(HaveKeyWithValue("nameSearch", ""))
			Expect(received).To(HaveKeyWithValue("location", map[string]any{
				"id": 68684.0, "type": "City", "regionCode": "ON",
			}))

			Expect(headers.Get("Content-Type")).To(Equal("application/json"))
			Expect(headers.Get("User-Agent")).To(Equal("TheraMatch/1.0"))
		})

		It("uses the location it is given", func() {
			loc := &directory.Location{ID: 1, Type: "City", RegionCode: "BC"}
			summary := client.Count(ctx, []int{1}, loc)

			Expect(summary.Location).To(Equal(*loc))
			Expect(received["location"]).To(HaveKeyWithValue("regionCode", "BC"))
		})

		It("reports an empty filter list as an empty array", func() {
			summary := client.Count(ctx, nil, nil)
			Expect(summary.FiltersApplied).To(BeEmpty())
			Expect(summary.FiltersApplied).NotTo(BeNil())
		})

		It("folds HTTP failures into an error summary", func() {
			respond = func(w http.ResponseWriter) {
				w.WriteHeader(http.StatusBadGateway)
			}

			summary := client.Count(ctx, []int{2}, nil)
			Expect(summary.MatchCount).To(Equal(0))
			Expect(summary.Error).To(BeTrue())
			Expect(summary.Message).To(HavePrefix("Error fetching therapist data:"))
			Expect(summary.FiltersApplied).To(Equal([]int{2}))
		})

		It("folds network failures into an error summary", func() {
			server.Close()

			summary := client.Count(ctx, []int{2}, nil)
			Expect(summary.MatchCount).To(Equal(0))
			Expect(summary.Error).To(BeTrue())
		})

		It("folds timeouts into an error summary", func() {
			respond = func(w http.ResponseWriter) {
				time.Sleep(200 * time.Millisecond)
			}
			client = directory.NewClient(directory.Config{URL: server.URL, Timeout: 20 * time.Millisecond}, zap.NewNop())

			summary := client.Count(ctx, []int{2}, nil)
			Expect(summary.Error).To(BeTrue())
			Expect(summary.MatchCount).To(Equal(0))
		})

		It("serializes the error marker only on failure", func() {
			ok, err := json.Marshal(client.Count(ctx, []int{2}, nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(ok)).NotTo(ContainSubstring(`"error"`))

			server.Close()
			failed, err := json.Marshal(client.Count(ctx, []int{2}, nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(failed)).To(ContainSubstring(`"error":true`))
		})
	})

	Describe("Search", func() {
		It("returns the raw data object and decoded profiles", func() {
			respond = func(w http.ResponseWriter) {
				io.WriteString(w, `{"data":{"total":2,"profiles":[{"id":7,"listingName":"A","canonicalUrl":"https://x/7"},{"id":9,"listingName":"B"}]}}`)
			}

			result, err := client.Search(ctx, directory.SearchRequest{AttributeIDs: []int{2}, Limit: 3})
			Expect(err).NotTo(HaveOccurred())
			Expect(received).To(HaveKeyWithValue("limit", 3.0))

			Expect(result.Total).To(Equal(2))
			Expect(result.Profiles).To(HaveLen(2))
			id, ok := result.Profiles[0].ID()
			Expect(ok).To(BeTrue())
			Expect(id).To(Equal(7))
			Expect(result.Profiles[0].Name()).To(Equal("A"))
			Expect(result.Profiles[0].CanonicalURL()).To(Equal("https://x/7"))
			Expect(result.Profiles[1].CanonicalURL()).To(BeEmpty())

			Expect(string(result.Raw)).To(ContainSubstring(`"listingName":"A"`))
		})

		It("treats a missing data object as empty", func() {
			respond = func(w http.ResponseWriter) {
				io.WriteString(w, `{}`)
			}

			result, err := client.Search(ctx, directory.SearchRequest{})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Total).To(Equal(0))
			Expect(string(result.Raw)).To(Equal("{}"))
		})

		It("returns an error for undecodable bodies", func() {
			respond = func(w http.ResponseWriter) {
				io.WriteString(w, `<html>`)
			}

			_, err := client.Search(ctx, directory.SearchRequest{})
			Expect(err).To(HaveOccurred())
		})
	})
})
