package transport_test

import (
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/geds-project/geds/handle"
	"github.com/geds-project/geds/objectid"
	"github.com/geds-project/geds/transport"
)

var _ = Describe("Server", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "geds-transport-")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() { os.RemoveAll(dir) })

	It("serves a GET range request end to end over a real TCP connection", func() {
		id := objectid.ID{Bucket: "b", Key: "k"}
		h, err := handle.NewLocalMmap(id, filepath.Join(dir, "obj"), nil)
		Expect(err).NotTo(HaveOccurred())
		_, err = h.WriteBytes([]byte("the quick brown fox jumps"), 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(h.Seal()).To(Succeed())

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())

		opened := false
		srv := transport.NewServer(ln, func(bucket, key string) (handle.Handle, error) {
			opened = true
			Expect(bucket).To(Equal("b"))
			Expect(key).To(Equal("k"))
			return h, nil
		}, transport.NewBufPool(2, 4096))
		go srv.Serve()
		defer srv.Close()

		conn, err := net.DialTimeout("tcp", ln.Addr().String(), time.Second)
		Expect(err).NotTo(HaveOccurred())
		defer conn.Close()

		line := transport.EncodeGetRequest(transport.GetRequest{Bucket: "b", Key: "k", Offset: 4, Length: 5})
		_, err = conn.Write([]byte(line))
		Expect(err).NotTo(HaveOccurred())

		hdr, err := transport.ReadResponseHeader(conn)
		Expect(err).NotTo(HaveOccurred())
		Expect(hdr.StatusCode).To(Equal(int32(0)))
		Expect(hdr.Length).To(Equal(uint64(5)))

		buf := make([]byte, 5)
		_, err = io.ReadFull(conn, buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(buf)).To(Equal("quick"))
		Expect(opened).To(BeTrue())
	})

	It("returns an error response for a malformed request but keeps the connection alive", func() {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())

		handlerCalled := false
		srv := transport.NewServer(ln, func(bucket, key string) (handle.Handle, error) {
			handlerCalled = true
			return nil, nil
		}, transport.NewBufPool(2, 4096))
		go srv.Serve()
		defer srv.Close()

		conn, err := net.DialTimeout("tcp", ln.Addr().String(), time.Second)
		Expect(err).NotTo(HaveOccurred())
		defer conn.Close()

		_, err = conn.Write([]byte("garbage\x00"))
		Expect(err).NotTo(HaveOccurred())

		hdr, err := transport.ReadResponseHeader(conn)
		Expect(err).NotTo(HaveOccurred())
		Expect(hdr.StatusCode).NotTo(Equal(int32(0)))

		msg := make([]byte, hdr.Length)
		_, err = io.ReadFull(conn, msg)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(msg)).To(ContainSubstring("malformed"))
		Expect(handlerCalled).To(BeFalse())
	})
})
