package merkle_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/liamdty/theramatch/pkg/llm"
	"github.com/liamdty/theramatch/pkg/merkle"
)

var _ = Describe("Node", func() {
	Describe("NewNode", func() {
		Context("for a root", func() {
			It("keeps the bucket and has no parent", func() {
				node := merkle.NewNode(userMessage("I feel anxious"), nil)

				Expect(node.Bucket.Content).To(Equal("I feel anxious"))
				Expect(node.ParentHash).To(BeNil())
				Expect(node.Hash).To(MatchRegexp("^[a-f0-9]{64}$"))
			})

			It("hashes identical buckets identically", func() {
				Expect(merkle.NewNode(userMessage("same"), nil).Hash).
					To(Equal(merkle.NewNode(userMessage("same"), nil).Hash))
			})

			It("hashes different buckets differently", func() {
				Expect(merkle.NewNode(userMessage("A"), nil).Hash).
					NotTo(Equal(merkle.NewNode(userMessage("B"), nil).Hash))
			})

			It("includes tool calls in the hash", func() {
				plain := merkle.Bucket{Type: merkle.BucketMessage, Role: "assistant"}
				withCall := plain
				withCall.ToolCalls = []llm.ToolCall{{ID: "c1", Name: "match_data", Arguments: `{"attributeIds":[2]}`}}

				Expect(merkle.NewNode(plain, nil).Hash).NotTo(Equal(merkle.NewNode(withCall, nil).Hash))
			})

			It("leaves metadata out of the hash", func() {
				bare := merkle.NewNode(userMessage("hi"), nil)
				tagged := merkle.NewNode(userMessage("hi"), nil).WithMeta(merkle.Meta{Model: "m"})

				Expect(tagged.Hash).To(Equal(bare.Hash))
				Expect(tagged.Meta.Model).To(Equal("m"))
			})
		})

		Context("for a child", func() {
			var parent *merkle.Node

			BeforeEach(func() {
				parent = merkle.NewNode(userMessage("parent"), nil)
			})

			It("links to the parent", func() {
				child := merkle.NewNode(userMessage("child"), parent)

				Expect(child.ParentHash).NotTo(BeNil())
				Expect(*child.ParentHash).To(Equal(parent.Hash))
			})

			It("builds chains", func() {
				child1 := merkle.NewNode(userMessage("1"), parent)
				child2 := merkle.NewNode(userMessage("2"), child1)

				Expect(*child1.ParentHash).To(Equal(parent.Hash))
				Expect(*child2.ParentHash).To(Equal(child1.Hash))
			})

			It("hashes the same bucket under different parents differently", func() {
				other := merkle.NewNode(userMessage("other"), nil)

				Expect(merkle.NewNode(userMessage("same"), parent).Hash).
					NotTo(Equal(merkle.NewNode(userMessage("same"), other).Hash))
			})
		})
	})

	Describe("Verify", func() {
		It("accepts nodes built by NewNode", func() {
			root := merkle.NewNode(userMessage("hello"), nil)
			child := merkle.NewNode(userMessage("again"), root)

			Expect(root.Verify()).To(BeTrue())
			Expect(child.Verify()).To(BeTrue())
		})

		It("rejects tampered content", func() {
			node := merkle.NewNode(userMessage("hello"), nil)
			node.Bucket.Content = "goodbye"

			Expect(node.Verify()).To(BeFalse())
		})

		It("rejects a missing hash", func() {
			node := &merkle.Node{Bucket: userMessage("hello")}

			Expect(node.Verify()).To(BeFalse())
		})

		It("ignores metadata", func() {
			node := merkle.NewNode(userMessage("hello"), nil).WithMeta(merkle.Meta{Model: "m"})

			Expect(node.Verify()).To(BeTrue())
		})
	})
})
