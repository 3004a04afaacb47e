package config_test

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/rivulet-db/rivulet/pkg/config"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config Suite")
}

var _ = Describe("Load", func() {
	writeConfig := func(content string) string {
		path := filepath.Join(GinkgoT().TempDir(), "rivulet.yaml")
		Expect(os.WriteFile(path, []byte(content), 0o600)).To(Succeed())
		return path
	}

	It("should parse all fields", func() {
		cfg, err := config.Load(writeConfig(`
syncFlush: true
walDir: /var/lib/rivulet
commitRetries: 3
propagationWorkers: 16
`))
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.SyncFlush).To(BeTrue())
		Expect(cfg.WALDir).To(Equal("/var/lib/rivulet"))
		Expect(cfg.CommitRetries).To(Equal(3))
		Expect(cfg.PropagationWorkers).To(Equal(16))
	})

	It("should fill unset fields from defaults", func() {
		cfg, err := config.Load(writeConfig(`syncFlush: true`))
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.SyncFlush).To(BeTrue())
		Expect(cfg.WALDir).To(BeEmpty())
		Expect(cfg.CommitRetries).To(Equal(config.Default().CommitRetries))
		Expect(cfg.PropagationWorkers).To(Equal(config.Default().PropagationWorkers))
	})

	It("should report a missing file", func() {
		_, err := config.Load(filepath.Join(GinkgoT().TempDir(), "missing.yaml"))
		Expect(err).To(HaveOccurred())
	})

	It("should report malformed YAML", func() {
		_, err := config.Load(writeConfig(`syncFlush: [`))
		Expect(err).To(HaveOccurred())
	})
})
