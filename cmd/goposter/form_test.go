package main

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/xob0t/GoPoster/internal/app"
	"github.com/xob0t/GoPoster/internal/config"
	"github.com/xob0t/GoPoster/pkg/poster"
	"github.com/xob0t/GoPoster/pkg/template"
)

func writeFile(dir, name, content string) string {
	path := filepath.Join(dir, name)
	So(os.WriteFile(path, []byte(content), 0o644), ShouldBeNil)
	return path
}

func writePNG(dir, name string) string {
	var buf bytes.Buffer
	So(png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))), ShouldBeNil)
	return writeFile(dir, name, buf.String())
}

func newRuntime() *app.Runtime {
	rt, err := app.NewRuntime(context.Background(), config.New())
	So(err, ShouldBeNil)
	return rt
}

func TestLoadForm(t *testing.T) {
	Convey("Given form files", t, func() {
		dir := t.TempDir()

		Convey("YAML values load and a relative avatar resolves next to the file", func() {
			path := writeFile(dir, "form.yaml", "trainingName: 早起\ntrainingNo: 12\nuserAvatarUpload: me.png\n")
			form, err := loadForm(path)
			So(err, ShouldBeNil)
			So(form.Values["trainingName"], ShouldEqual, "早起")
			So(form.Values["trainingNo"], ShouldEqual, 12)
			So(form.Avatar, ShouldEqual, filepath.Join(dir, "me.png"))
		})

		Convey("JSON is read by the same loader", func() {
			path := writeFile(dir, "form.json", `{"userName": "小明", "clockDays": 3}`)
			form, err := loadForm(path)
			So(err, ShouldBeNil)
			So(form.Values["userName"], ShouldEqual, "小明")
			So(form.Avatar, ShouldBeEmpty)
		})

		Convey("The bundled sample form parses", func() {
			_, sample := template.GetExamples()
			form, err := loadForm(writeFile(dir, "sample.yaml", sample))
			So(err, ShouldBeNil)
			So(form.Avatar, ShouldEqual, filepath.Join(dir, "avatar.png"))
		})

		Convey("A missing file is an error", func() {
			_, err := loadForm(filepath.Join(dir, "nope.yaml"))
			So(err, ShouldNotBeNil)
		})
	})
}

func TestApplyForm(t *testing.T) {
	Convey("Given a session", t, func() {
		dir := t.TempDir()
		rt := newRuntime()
		defer rt.Close()
		sess := rt.NewSession()
		defer sess.Close()
		ctx := context.Background()

		Convey("The avatar key never reaches the store; ingestion sets the avatar", func() {
			writePNG(dir, "me.png")
			form, err := loadForm(writeFile(dir, "form.yaml", "userName: 小明\nuserAvatarUpload: me.png\n"))
			So(err, ShouldBeNil)
			So(form.apply(ctx, sess), ShouldBeNil)

			st := sess.Preview.State()
			So(st.UserName, ShouldEqual, "小明")
			So(st.UserAvatar, ShouldStartWith, "data:image/png;base64,")
		})

		Convey("Problems are joined while the rest applies", func() {
			form, err := loadForm(writeFile(dir, "form.yaml", "userName: 小明\nclockDays: many\nuserAvatarUpload: gone.png\n"))
			So(err, ShouldBeNil)
			err = form.apply(ctx, sess)
			So(errors.Is(err, poster.ErrInvalidValue), ShouldBeTrue)
			So(errors.Is(err, os.ErrNotExist), ShouldBeTrue)
			So(isFieldError(err), ShouldBeTrue)
			So(sess.Preview.State().UserName, ShouldEqual, "小明")
		})
	})
}

func TestRenderForm(t *testing.T) {
	Convey("Given the embedded template", t, func() {
		dir := t.TempDir()
		rt := newRuntime()
		defer rt.Close()
		ctx := context.Background()
		writePNG(dir, "avatar.png")

		Convey("A complete form is exported into the output directory", func() {
			_, sample := template.GetExamples()
			formPath := writeFile(dir, "form.yaml", sample)
			out := filepath.Join(dir, "out")

			path, err := renderForm(ctx, rt, formPath, out)
			So(err, ShouldBeNil)
			So(path, ShouldEqual, filepath.Join(out, "小明_早起训练营_第12期.jpg"))
			info, err := os.Stat(path)
			So(err, ShouldBeNil)
			So(info.Size(), ShouldBeGreaterThan, 0)
		})

		Convey("An incomplete form is refused", func() {
			formPath := writeFile(dir, "form.yaml", "userName: 小明\n")
			_, err := renderForm(ctx, rt, formPath, dir)
			So(errors.Is(err, poster.ErrValidationMissing), ShouldBeTrue)
		})

		Convey("The watcher writes a preview even for an incomplete form", func() {
			formPath := writeFile(dir, "form.yaml", "trainingName: 早起\nuserAvatarUpload: avatar.png\n")
			w := &watcher{rt: rt, formPath: formPath, previewPath: filepath.Join(dir, "preview.png")}
			form, err := w.render(ctx)
			So(err, ShouldBeNil)
			So(form.Avatar, ShouldEqual, filepath.Join(dir, "avatar.png"))

			f, err := os.Open(w.previewPath)
			So(err, ShouldBeNil)
			defer f.Close()
			img, err := png.Decode(f)
			So(err, ShouldBeNil)
			So(img.Bounds().Dx(), ShouldEqual, 750)
		})
	})
}
