package storage

import (
	"context"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestNew(t *testing.T) {
	Convey("Given storage options", t, func() {
		ctx := context.Background()

		Convey("The local provider builds a LocalStorage", func() {
			root := filepath.Join(t.TempDir(), "objects")
			store, err := New(ctx, Options{Provider: "local", Root: root})
			So(err, ShouldBeNil)
			So(store, ShouldHaveSameTypeAs, &LocalStorage{})
		})

		Convey("The s3 provider builds an S3Storage with static credentials", func() {
			store, err := New(ctx, Options{
				Provider:    "s3",
				AccessKey:   "AKIA",
				Secret:      "secret",
				Region:      "eu-west-1",
				Endpoint:    "http://127.0.0.1:9000",
				PathStyle:   true,
				PartSize:    8 << 20,
				Concurrency: 10,
			})
			So(err, ShouldBeNil)
			s3store, ok := store.(*S3Storage)
			So(ok, ShouldBeTrue)
			So(s3store.uploader.Concurrency, ShouldEqual, 10)
			So(s3store.uploader.PartSize, ShouldEqual, 8<<20)
			So(s3store.downloader.Concurrency, ShouldEqual, 10)
		})

		Convey("The azure provider falls back to the access key as account", func() {
			store, err := New(ctx, Options{Provider: "azure", AccessKey: "devstoreaccount1", Secret: "c2VjcmV0", Concurrency: 4})
			So(err, ShouldBeNil)
			az := store.(*AzureStorage)
			So(az.parallelism, ShouldEqual, 4)
			So(az.serviceURL.String(), ShouldEqual, "https://devstoreaccount1.blob.core.windows.net")
		})

		Convey("An unknown provider is rejected", func() {
			_, err := New(ctx, Options{Provider: "ftp"})
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "unsupported storage provider")
		})
	})
}
