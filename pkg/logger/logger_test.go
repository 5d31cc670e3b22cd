package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLogger(t *testing.T) {
	Convey("Given a logger writing to a buffer", t, func() {
		var buf bytes.Buffer
		So(InitWithWriter(&buf), ShouldBeNil)
		ctx := context.Background()

		Convey("Records carry fields, the name group and the caller", func() {
			Named("export").Info(ctx, "export finished", String("file", "a.jpg"), Int("bytes", 12))
			out := buf.String()
			So(out, ShouldContainSubstring, "export finished")
			So(out, ShouldContainSubstring, "export.file=a.jpg")
			So(out, ShouldContainSubstring, "export.bytes=12")
			So(out, ShouldContainSubstring, "logger_test.go")
		})

		Convey("Errors are logged under the error key", func() {
			Get().Error(ctx, "failed", Error(errors.New("boom")))
			So(buf.String(), ShouldContainSubstring, "error=boom")
		})

		Convey("The level filters records", func() {
			Get().Debug(ctx, "hidden")
			So(buf.String(), ShouldNotContainSubstring, "hidden")

			So(SetLevelString("debug"), ShouldBeNil)
			Get().Debug(ctx, "shown")
			So(buf.String(), ShouldContainSubstring, "shown")

			So(SetLevelString("ERROR"), ShouldBeNil)
			Get().Warn(ctx, "quiet")
			So(buf.String(), ShouldNotContainSubstring, "quiet")

			So(SetLevelString("verbose"), ShouldNotBeNil)
		})

		Convey("A nil writer is refused", func() {
			So(InitWithWriter(nil), ShouldNotBeNil)
		})
	})

	Convey("Discard drops everything", t, func() {
		So(func() { Discard().Error(context.Background(), "x", Any("k", 1)) }, ShouldNotPanic)
	})
}
