package checksum

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/dumpcycle/internal/domain"
)

func TestMD5(t *testing.T) {
	Convey("Given an artifact and its sidecar", t, func() {
		dir := t.TempDir()
		artifact := filepath.Join(dir, "orders.20240309070501.sql.gz")
		sidecar := filepath.Join(dir, "md5sum_orders.20240309070501")
		So(os.WriteFile(artifact, []byte("hello"), 0o644), ShouldBeNil)

		sum, err := NewMD5().WriteSidecar(artifact, sidecar)
		So(err, ShouldBeNil)

		Convey("The sidecar is in md5sum format", func() {
			So(sum, ShouldEqual, "5d41402abc4b2a76b9719d911017c592")
			raw, _ := os.ReadFile(sidecar)
			So(string(raw), ShouldEqual, "5d41402abc4b2a76b9719d911017c592  orders.20240309070501.sql.gz\n")
		})

		Convey("An unmodified artifact verifies", func() {
			So(NewMD5().Verify(artifact, sidecar), ShouldBeNil)
		})

		Convey("A single bit flip fails verification", func() {
			data, _ := os.ReadFile(artifact)
			data[2] ^= 0x01
			So(os.WriteFile(artifact, data, 0o644), ShouldBeNil)

			err := NewMD5().Verify(artifact, sidecar)
			So(err, ShouldNotBeNil)
			So(errors.Is(err, domain.ErrChecksumMismatch), ShouldBeTrue)
		})

		Convey("An empty sidecar fails verification", func() {
			So(os.WriteFile(sidecar, nil, 0o644), ShouldBeNil)
			So(errors.Is(NewMD5().Verify(artifact, sidecar), domain.ErrChecksumMismatch), ShouldBeTrue)
		})

		Convey("A missing artifact is an error", func() {
			_, err := NewMD5().Sum(filepath.Join(dir, "gone"))
			So(err, ShouldNotBeNil)
		})
	})
}
