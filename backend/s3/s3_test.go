package s3_test

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/geds-project/geds/backend/s3"
)

// fakeS3 is a minimal S3-compatible HTTP server covering just enough of
// the wire protocol (path-style, ListObjectsV2 pagination, HEAD, ranged
// GET with one InvalidRange fault injection, PUT, batched POST ?delete)
// to exercise Adapter without a live AWS/MinIO endpoint.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte // "bucket/key" -> content
	// injectInvalidRangeOnce, if set, makes the next ranged GET for this
	// key return 416 InvalidRange once, to exercise Adapter.Get's retry.
	injectInvalidRangeOnce map[string]bool
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte), injectInvalidRangeOnce: make(map[string]bool)}
}

type listBucketResult struct {
	XMLName               xml.Name       `xml:"ListBucketResult"`
	Contents              []listContent  `xml:"Contents"`
	CommonPrefixes        []commonPrefix `xml:"CommonPrefixes"`
	NextContinuationToken string         `xml:"NextContinuationToken,omitempty"`
}
type listContent struct {
	Key  string `xml:"Key"`
	Size int64  `xml:"Size"`
}
type commonPrefix struct {
	Prefix string `xml:"Prefix"`
}

type deleteResult struct {
	XMLName xml.Name `xml:"DeleteResult"`
	Deleted []struct {
		Key string `xml:"Key"`
	} `xml:"Deleted"`
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
	bucket := parts[0]

	switch {
	case r.Method == http.MethodGet && len(parts) == 1 && r.URL.Query().Get("list-type") == "2":
		f.handleList(w, r, bucket)
	case r.Method == http.MethodPost && r.URL.Query().Has("delete"):
		f.handleDelete(w, r, bucket)
	case r.Method == http.MethodHead:
		f.handleHead(w, bucket, parts[1])
	case r.Method == http.MethodGet:
		f.handleGet(w, r, bucket, parts[1])
	case r.Method == http.MethodPut:
		f.handlePut(w, r, bucket, parts[1])
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeS3) handleList(w http.ResponseWriter, r *http.Request, bucket string) {
	prefix := r.URL.Query().Get("prefix")
	delim := r.URL.Query().Get("delimiter")

	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, bucket+"/") {
			key := strings.TrimPrefix(k, bucket+"/")
			if strings.HasPrefix(key, prefix) {
				keys = append(keys, key)
			}
		}
	}

	var res listBucketResult
	seen := map[string]bool{}
	for _, key := range keys {
		if delim != "" {
			rest := key[len(prefix):]
			if idx := strings.IndexByte(rest, delim[0]); idx >= 0 {
				cp := key[:len(prefix)+idx+1]
				if !seen[cp] {
					seen[cp] = true
					res.CommonPrefixes = append(res.CommonPrefixes, commonPrefix{Prefix: cp})
				}
				continue
			}
		}
		res.Contents = append(res.Contents, listContent{Key: key, Size: int64(len(f.objects[bucket+"/"+key]))})
	}
	w.Header().Set("Content-Type", "application/xml")
	out, _ := xml.Marshal(res)
	w.Write(out)
}

func (f *fakeS3) handleDelete(w http.ResponseWriter, r *http.Request, bucket string) {
	var req struct {
		Objects []struct {
			Key string `xml:"Key"`
		} `xml:"Object"`
	}
	xml.NewDecoder(r.Body).Decode(&req)
	var res deleteResult
	for _, o := range req.Objects {
		delete(f.objects, bucket+"/"+o.Key)
		res.Deleted = append(res.Deleted, struct {
			Key string `xml:"Key"`
		}{Key: o.Key})
	}
	w.Header().Set("Content-Type", "application/xml")
	out, _ := xml.Marshal(res)
	w.Write(out)
}

func (f *fakeS3) handleHead(w http.ResponseWriter, bucket, key string) {
	data, ok := f.objects[bucket+"/"+key]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
}

func (f *fakeS3) handleGet(w http.ResponseWriter, r *http.Request, bucket, key string) {
	data, ok := f.objects[bucket+"/"+key]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	rangeHdr := r.Header.Get("Range")
	if rangeHdr == "" {
		w.Write(data)
		return
	}
	if f.injectInvalidRangeOnce[bucket+"/"+key] {
		f.injectInvalidRangeOnce[bucket+"/"+key] = false
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		fmt.Fprint(w, `<Error><Code>InvalidRange</Code><Message>invalid range</Message></Error>`)
		return
	}
	var start, end int
	fmt.Sscanf(rangeHdr, "bytes=%d-%d", &start, &end)
	if end >= len(data) {
		end = len(data) - 1
	}
	w.WriteHeader(http.StatusPartialContent)
	w.Write(data[start : end+1])
}

func (f *fakeS3) handlePut(w http.ResponseWriter, r *http.Request, bucket, key string) {
	buf := new(bytes.Buffer)
	buf.ReadFrom(r.Body)
	f.objects[bucket+"/"+key] = buf.Bytes()
	w.WriteHeader(http.StatusOK)
}

var _ = Describe("Adapter", func() {
	var (
		fake   *fakeS3
		server *httptest.Server
		a      *s3.Adapter
	)

	BeforeEach(func() {
		fake = newFakeS3()
		server = httptest.NewServer(fake)
		var err error
		a, err = s3.NewAdapter(server.URL, "AKID", "SECRET", true)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	It("round-trips put then get of a 409-byte object", func() {
		payload := bytes.Repeat([]byte("x"), 409)
		Expect(a.Put("b", "unit/msg", bytes.NewReader(payload))).To(Succeed())

		var out bytes.Buffer
		Expect(a.Get("b", "unit/msg", s3.ByteRange{Whole: true}, &out)).To(Succeed())
		Expect(out.Bytes()).To(Equal(payload))
	})

	It("head returns size, NotFound on a missing key", func() {
		Expect(a.Put("b", "k", bytes.NewReader([]byte("hello")))).To(Succeed())
		size, err := a.Head("b", "k")
		Expect(err).NotTo(HaveOccurred())
		Expect(size).To(Equal(int64(5)))

		_, err = a.Head("b", "missing")
		Expect(err).To(HaveOccurred())
	})

	It("retries once, clamped, on InvalidRange", func() {
		payload := bytes.Repeat([]byte("y"), 10)
		Expect(a.Put("b", "k", bytes.NewReader(payload))).To(Succeed())
		fake.injectInvalidRangeOnce["b/k"] = true

		var out bytes.Buffer
		err := a.Get("b", "k", s3.ByteRange{Offset: 0, Length: 100}, &out)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Bytes()).To(Equal(payload))
	})

	It("folds keys past the delimiter into common prefixes and suppresses nothing extra", func() {
		for _, k := range []string{"a/1", "a/2", "a/sub/3"} {
			Expect(a.Put("b", k, bytes.NewReader([]byte("z")))).To(Succeed())
		}
		entries, err := a.List("b", "a/", '/')
		Expect(err).NotTo(HaveOccurred())

		var names []string
		var dirs []string
		for _, e := range entries {
			if e.IsDirectory {
				dirs = append(dirs, e.Key)
			} else {
				names = append(names, e.Key)
			}
		}
		Expect(names).To(ConsistOf("a/1", "a/2"))
		Expect(dirs).To(ConsistOf("a/sub/"))
	})

	It("deletes in batches and DeletePrefix removes everything under the prefix", func() {
		for i := 0; i < 5; i++ {
			Expect(a.Put("b", fmt.Sprintf("pfx/%d", i), bytes.NewReader([]byte("z")))).To(Succeed())
		}
		Expect(a.DeletePrefix("b", "pfx/")).To(Succeed())
		entries, err := a.List("b", "pfx/", 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(BeEmpty())
	})
})
