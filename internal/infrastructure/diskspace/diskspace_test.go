package diskspace

import (
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestFree(t *testing.T) {
	Convey("Given a disk space probe", t, func() {
		p := New()

		Convey("An existing directory reports free space", func() {
			free, err := p.Free(t.TempDir())
			So(err, ShouldBeNil)
			So(free, ShouldBeGreaterThan, 0)
		})

		Convey("A not yet created workdir resolves to its parent", func() {
			dir := t.TempDir()
			want, err := p.Free(dir)
			So(err, ShouldBeNil)
			got, err := p.Free(filepath.Join(dir, "later", "deeper"))
			So(err, ShouldBeNil)
			So(got, ShouldBeGreaterThan, 0)
			So(want, ShouldBeGreaterThan, 0)
		})
	})
}
