package container

import (
	"archive/tar"
	"bytes"
	"io"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("tarFiles", func() {
	It("adds parent directories before the files", func() {
		data, err := tarFiles([]File{{Path: "/opt/minifi/conf", Name: "minifi.properties", Content: []byte("a=b")}})
		Expect(err).NotTo(HaveOccurred())

		tr := tar.NewReader(bytes.NewReader(data))
		var names []string
		for {
			hdr, err := tr.Next()
			if err == io.EOF {
				break
			}
			Expect(err).NotTo(HaveOccurred())
			names = append(names, hdr.Name)
		}
		Expect(names).To(Equal([]string{"opt/", "opt/minifi/", "opt/minifi/conf/", "opt/minifi/conf/minifi.properties"}))
	})
})

var _ = Describe("splitReference", func() {
	DescribeTable("splits image references",
		func(ref, repo, tag string) {
			r, t := splitReference(ref)
			Expect(r).To(Equal(repo))
			Expect(t).To(Equal(tag))
		},
		Entry("with tag", "apacheminificpp:behave", "apacheminificpp", "behave"),
		Entry("without tag", "apacheminificpp", "apacheminificpp", "latest"),
		Entry("registry with port", "localhost:5000/minifi", "localhost:5000/minifi", "latest"),
	)
})
