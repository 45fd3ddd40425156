package node_test

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/geds-project/geds/mds"
	"github.com/geds-project/geds/mds/kvs"
	"github.com/geds-project/geds/mds/registry"
	"github.com/geds-project/geds/node"
	"github.com/geds-project/geds/objectid"
	"github.com/geds-project/geds/transport"
)

// fakeBackingStoreClient serves a single fixed (bucket,key) object out of
// an in-memory byte slice, standing in for backend/s3.BackingStoreClient.
type fakeBackingStoreClient struct {
	data []byte
}

func (c *fakeBackingStoreClient) Get(bucket, key string, offset, length int64, whole bool, dst io.Writer) error {
	if whole {
		offset, length = 0, int64(len(c.data))
	}
	end := offset + length
	if end > int64(len(c.data)) {
		end = int64(len(c.data))
	}
	_, err := dst.Write(c.data[offset:end])
	return err
}

func (c *fakeBackingStoreClient) Put(bucket, key string, data io.ReadSeeker) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	c.data = buf
	return nil
}

var _ = Describe("Node", func() {
	var (
		svc  *mds.Service
		dirs []string
	)

	BeforeEach(func() {
		svc = mds.NewService(kvs.New())
		dirs = nil
	})

	AfterEach(func() {
		for _, d := range dirs {
			os.RemoveAll(d)
		}
	})

	newNode := func(id, addr, dialTarget string) *node.Node {
		dir, err := os.MkdirTemp("", "geds-node-")
		Expect(err).NotTo(HaveOccurred())
		dirs = append(dirs, dir)

		cfg := node.Config{ID: id, Addr: addr, DataDir: dir, MDS: svc}
		if dialTarget != "" {
			cfg.Dial = func() (*net.TCPConn, error) {
				conn, err := net.Dial("tcp", dialTarget)
				if err != nil {
					return nil, err
				}
				return conn.(*net.TCPConn), nil
			}
		}
		n, err := node.New(cfg)
		Expect(err).NotTo(HaveOccurred())
		return n
	}

	serve := func(n *node.Node) net.Listener {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		pool := transport.NewBufPool(4, 4096)
		go n.Serve(ln, pool)
		return ln
	}

	It("creates, seals, and reopens an object from its own primary cache", func() {
		n := newNode("node-a", "127.0.0.1:1", "")

		h, err := n.Create("bucket-a", "obj-1")
		Expect(err).NotTo(HaveOccurred())
		_, err = n.Write(h, []byte("hello world"), 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(n.Seal(context.Background(), h)).To(Succeed())
		n.CloseHandle(h)

		reopened, err := n.Open("bucket-a", "obj-1")
		Expect(err).NotTo(HaveOccurred())
		buf := make([]byte, 11)
		nRead, err := n.Read(reopened, buf, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(buf[:nRead])).To(Equal("hello world"))
	})

	It("reads a peer-hosted object over the real TCP data plane", func() {
		nodeA := newNode("node-a", "127.0.0.1:0", "")
		lnA := serve(nodeA)
		defer lnA.Close()

		h, err := nodeA.Create("bucket-a", "obj-1")
		Expect(err).NotTo(HaveOccurred())
		_, err = nodeA.Write(h, []byte("the quick brown fox"), 0)
		Expect(err).NotTo(HaveOccurred())

		Expect(svc.KVS.Create(
			objectid.ID{Bucket: "bucket-a", Key: "obj-1"},
			objectid.Info{Location: "geds://" + lnA.Addr().String(), Size: 19},
			false,
		)).To(Succeed())

		nodeB := newNode("node-b", "127.0.0.1:2", lnA.Addr().String())

		readH, err := nodeB.Open("bucket-a", "obj-1")
		Expect(err).NotTo(HaveOccurred())
		var out bytes.Buffer
		Expect(readH.DownloadRange(4, 5, &out)).To(Succeed())
		Expect(out.String()).To(Equal("quick"))
	})

	It("reads a backing-store-hosted object", func() {
		n := newNode("node-a", "127.0.0.1:3", "")
		client := &fakeBackingStoreClient{data: []byte("s3 payload")}
		n.RegisterBackingStore("bucket-a", client)

		Expect(svc.KVS.Create(
			objectid.ID{Bucket: "bucket-a", Key: "obj-1"},
			objectid.Info{Location: "s3://bucket-a/obj-1", Size: 10},
			false,
		)).To(Succeed())

		h, err := n.Open("bucket-a", "obj-1")
		Expect(err).NotTo(HaveOccurred())
		var out bytes.Buffer
		Expect(h.DownloadRange(0, 10, &out)).To(Succeed())
		Expect(out.String()).To(Equal("s3 payload"))
	})

	It("relocates an object onto another node via DownloadObjects", func() {
		nodeA := newNode("node-a", "127.0.0.1:0", "")
		lnA := serve(nodeA)
		defer lnA.Close()

		h, err := nodeA.Create("bucket-a", "obj-1")
		Expect(err).NotTo(HaveOccurred())
		_, err = nodeA.Write(h, []byte("relocate me"), 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(svc.KVS.Create(
			objectid.ID{Bucket: "bucket-a", Key: "obj-1"},
			objectid.Info{Location: "geds://" + lnA.Addr().String(), Size: 11},
			false,
		)).To(Succeed())

		nodeB := newNode("node-b", "127.0.0.1:4", lnA.Addr().String())
		Expect(nodeB.DownloadObjects(context.Background(), []registry.PackObject{
			{Bucket: "bucket-a", Key: "obj-1", Size: 11},
		})).To(Succeed())

		info, err := svc.Lookup(context.Background(), objectid.ID{Bucket: "bucket-a", Key: "obj-1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(info.Location).To(Equal("geds://127.0.0.1:4"))
	})
})
