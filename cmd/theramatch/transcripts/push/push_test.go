package pushcmder

import (
	"bytes"
	"context"
	"net"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/liamdty/theramatch/api"
	"github.com/liamdty/theramatch/pkg/llm"
	"github.com/liamdty/theramatch/pkg/merkle"
)

var _ = Describe("Push Command", func() {
	var (
		ctx       context.Context
		localPath string
	)

	BeforeEach(func() {
		ctx = context.Background()
		localPath = filepath.Join(GinkgoT().TempDir(), "local.db")
	})

	makeNode := func(role, text string, parent *merkle.Node) *merkle.Node {
		return merkle.NewNode(merkle.Bucket{
			Type:    merkle.BucketMessage,
			Role:    role,
			Content: text,
		}, parent)
	}

	seed := func(nodes ...*merkle.Node) {
		local, err := merkle.NewSQLiteStorer(localPath)
		Expect(err).NotTo(HaveOccurred())
		defer local.Close()
		for _, n := range nodes {
			_, err := local.Put(ctx, n)
			Expect(err).NotTo(HaveOccurred())
		}
	}

	startServer := func() (string, *merkle.MemoryStorer) {
		storer := merkle.NewMemoryStorer()
		srv := api.NewServer(api.Config{ListenAddr: ":0"}, nil, nil, storer, zap.NewNop())

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())

		go func() {
			_ = srv.RunWithListener(listener)
		}()
		DeferCleanup(func() {
			_ = srv.Shutdown(context.Background())
		})

		return "http://" + listener.Addr().String(), storer
	}

	push := func(args ...string) string {
		var out bytes.Buffer
		cmd := NewPushCmd()
		cmd.SetOut(&out)
		cmd.SetArgs(args)
		Expect(cmd.ExecuteContext(ctx)).To(Succeed())
		return out.String()
	}

	It("pushes local nodes to a remote server", func() {
		question := makeNode(llm.RoleUser, "hello from push test", nil)
		seed(question, makeNode(llm.RoleAssistant, "hi back from push test", question))
		addr, storer := startServer()

		out := push("--sqlite", localPath, addr)

		nodes, err := storer.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(nodes).To(HaveLen(2))
		Expect(out).To(ContainSubstring("Pushed 2 new nodes (0 already existed, 0 errors)"))
	})

	It("deduplicates on double push", func() {
		seed(makeNode(llm.RoleUser, "dedup push test", nil))
		addr, storer := startServer()

		push("--sqlite", localPath, addr)
		out := push("--sqlite", localPath, addr)

		nodes, err := storer.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(nodes).To(HaveLen(1))
		Expect(out).To(ContainSubstring("Pushed 0 new nodes (1 already existed, 0 errors)"))
	})

	It("pushes in batches", func() {
		root := makeNode(llm.RoleUser, "one", nil)
		second := makeNode(llm.RoleAssistant, "two", root)
		seed(root, second, makeNode(llm.RoleUser, "three", second))
		addr, storer := startServer()

		push("--sqlite", localPath, "--batch-size", "2", addr)

		nodes, err := storer.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(nodes).To(HaveLen(3))
	})

	It("reports an empty database", func() {
		seed()

		out := push("--sqlite", localPath, "http://127.0.0.1:1")
		Expect(out).To(ContainSubstring("No local nodes to push."))
	})
})
