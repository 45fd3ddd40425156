package config_test

import (
	"path/filepath"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/geds-project/geds/config"
	"github.com/geds-project/geds/internal/xerrors"
)

var _ = Describe("Config", func() {
	Describe("Set", func() {
		var c config.Config

		BeforeEach(func() {
			c = config.Default()
		})

		It("never executes the port branch for a key other than http_server_port", func() {
			Expect(c.Set("log_level", "debug")).To(Succeed())
			Expect(c.LogLevel).To(Equal("debug"))
			Expect(c.HTTPServerPort).To(Equal(config.Default().HTTPServerPort))
		})

		It("updates http_server_port only when that key is set", func() {
			Expect(c.Set("http_server_port", "9100")).To(Succeed())
			Expect(c.HTTPServerPort).To(Equal(9100))
		})

		It("rejects an out-of-range port", func() {
			err := c.Set("port", "70000")
			Expect(xerrors.KindOf(err)).To(Equal(xerrors.KindInvalidArgument))
		})

		It("rejects a zero cache_block_size", func() {
			err := c.Set("cache_block_size", "0")
			Expect(xerrors.KindOf(err)).To(Equal(xerrors.KindInvalidArgument))
		})

		It("allows an empty hostname (discover)", func() {
			Expect(c.Set("hostname", "")).To(Succeed())
			Expect(c.Hostname).To(Equal(""))
		})

		It("returns NotFound for an unknown key", func() {
			err := c.Set("bogus_key", "x")
			Expect(xerrors.KindOf(err)).To(Equal(xerrors.KindNotFound))
		})

		It("allows an empty metadata_store_path (in-memory)", func() {
			Expect(c.Set("metadata_store_path", "")).To(Succeed())
			Expect(c.MetadataStorePath).To(Equal(""))
		})

		It("sets metadata_store_path", func() {
			Expect(c.Set("metadata_store_path", "/tmp/geds/mds.db")).To(Succeed())
			Expect(c.MetadataStorePath).To(Equal("/tmp/geds/mds.db"))
		})
	})

	Describe("Get", func() {
		It("round-trips a value set through Set", func() {
			c := config.Default()
			Expect(c.Set("port", "9200")).To(Succeed())
			v, err := c.Get("port")
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal("9200"))
		})

		It("returns NotFound for an unknown key", func() {
			_, err := config.Default().Get("bogus_key")
			Expect(xerrors.KindOf(err)).To(Equal(xerrors.KindNotFound))
		})

		It("round-trips metadata_store_path", func() {
			c := config.Default()
			Expect(c.Set("metadata_store_path", "/tmp/geds/mds.db")).To(Succeed())
			v, err := c.Get("metadata_store_path")
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal("/tmp/geds/mds.db"))
		})
	})

	Describe("Load/Save", func() {
		It("round-trips through a JSON file", func() {
			dir := GinkgoT().TempDir()
			path := filepath.Join(dir, "config.json")

			c := config.Default()
			Expect(c.Set("local_storage_path", dir)).To(Succeed())
			Expect(c.Save(path)).To(Succeed())

			loaded, err := config.Load(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.LocalStoragePath).To(Equal(dir))
			Expect(loaded.CacheBlockSize).To(Equal(c.CacheBlockSize))
		})

		It("rejects a loaded config with an invalid required key", func() {
			dir := GinkgoT().TempDir()
			path := filepath.Join(dir, "config.json")
			Expect(config.Config{}.Save(path)).To(Succeed())

			_, err := config.Load(path)
			Expect(xerrors.KindOf(err)).To(Equal(xerrors.KindInvalidArgument))
		})
	})
})
