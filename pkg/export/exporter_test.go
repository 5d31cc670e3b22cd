package export

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"mime"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/xob0t/GoPoster/pkg/poster"
	"github.com/xob0t/GoPoster/pkg/template"
)

type rasterFunc func(*template.Node) (*image.RGBA, error)

func (f rasterFunc) Render(n *template.Node) (*image.RGBA, error) { return f(n) }

func blank(n *template.Node) (*image.RGBA, error) {
	return image.NewRGBA(image.Rect(0, 0, n.Rect.Dx(), n.Rect.Dy())), nil
}

type recordingSaver struct {
	calls []Download
	err   error
}

func (s *recordingSaver) Save(_ context.Context, d Download) error {
	s.calls = append(s.calls, d)
	return s.err
}

func testTree() *template.Node {
	return &template.Node{
		ID:   template.RootID,
		Rect: image.Rect(0, 0, 60, 80),
		Children: []*template.Node{
			{ID: "avatar", Rect: image.Rect(10, 10, 30, 40)},
		},
	}
}

func completeState() poster.FormState {
	return poster.FormState{
		TrainingName:     "早起",
		TrainingNo:       poster.Int(12),
		UserName:         "小明",
		UserAvatar:       "data:image/png;base64,AA==",
		ClockDays:        poster.Int(21),
		TotalTargetCount: poster.Int(30),
		TotalPoints:      poster.Int(95),
	}
}

func waitTask(t *Task) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return t.Wait(ctx)
}

func TestExport(t *testing.T) {
	Convey("Given an exporter with a recording saver", t, func() {
		saver := &recordingSaver{}
		e := New(rasterFunc(blank), WithSaver(saver), WithQuality(80))
		tree := testTree()

		Convey("The root is captured once as a JPEG named after the state", func() {
			task := e.Export(context.Background(), tree, template.RootID, completeState())
			So(waitTask(task), ShouldBeNil)
			So(task.Err(), ShouldBeNil)
			So(task.ID, ShouldNotBeEmpty)

			So(saver.calls, ShouldHaveLength, 1)
			d := saver.calls[0]
			So(d.FileName, ShouldEqual, "小明_早起训练营_第12期.jpg")
			So(d.ContentType, ShouldEqual, "application/octet-stream")

			img, err := jpeg.Decode(bytes.NewReader(d.Data))
			So(err, ShouldBeNil)
			So(img.Bounds().Dx(), ShouldEqual, 60)
			So(img.Bounds().Dy(), ShouldEqual, 80)
		})

		Convey("A subtree export has the subtree's size", func() {
			task := e.Export(context.Background(), tree, "avatar", completeState())
			So(waitTask(task), ShouldBeNil)
			img, err := jpeg.Decode(bytes.NewReader(saver.calls[0].Data))
			So(err, ShouldBeNil)
			So(img.Bounds().Dx(), ShouldEqual, 20)
			So(img.Bounds().Dy(), ShouldEqual, 30)
		})

		Convey("An unknown root fails without calling the saver", func() {
			task := e.Export(context.Background(), tree, "nope", completeState())
			<-task.Done()
			So(errors.Is(task.Err(), ErrNodeNotFound), ShouldBeTrue)
			So(saver.calls, ShouldBeEmpty)
		})

		Convey("Tasks have distinct IDs", func() {
			a := e.Export(context.Background(), tree, template.RootID, completeState())
			b := e.Export(context.Background(), tree, template.RootID, completeState())
			So(a.ID, ShouldNotEqual, b.ID)
			So(waitTask(a), ShouldBeNil)
			So(waitTask(b), ShouldBeNil)
		})
	})
}

func TestExportFailures(t *testing.T) {
	Convey("Given failing stages", t, func() {
		tree := testTree()

		Convey("A rasterizer error is a rasterize CaptureError", func() {
			boom := errors.New("boom")
			saver := &recordingSaver{}
			e := New(rasterFunc(func(*template.Node) (*image.RGBA, error) { return nil, boom }), WithSaver(saver))

			err := waitTask(e.Export(context.Background(), tree, template.RootID, completeState()))
			So(errors.Is(err, ErrCaptureFailed), ShouldBeTrue)
			So(errors.Is(err, boom), ShouldBeTrue)
			var ce *CaptureError
			So(errors.As(err, &ce), ShouldBeTrue)
			So(ce.Stage, ShouldEqual, StageRasterize)
			So(saver.calls, ShouldBeEmpty)
		})

		Convey("A panic while rasterizing is recovered", func() {
			e := New(rasterFunc(func(*template.Node) (*image.RGBA, error) { panic("bad font") }), WithSaver(&recordingSaver{}))
			err := waitTask(e.Export(context.Background(), tree, template.RootID, completeState()))
			var ce *CaptureError
			So(errors.As(err, &ce), ShouldBeTrue)
			So(ce.Stage, ShouldEqual, StageRasterize)
			So(err.Error(), ShouldContainSubstring, "bad font")
		})

		Convey("A saver error is a save CaptureError", func() {
			e := New(rasterFunc(blank), WithSaver(&recordingSaver{err: errors.New("disk full")}))
			err := waitTask(e.Export(context.Background(), tree, template.RootID, completeState()))
			var ce *CaptureError
			So(errors.As(err, &ce), ShouldBeTrue)
			So(ce.Stage, ShouldEqual, StageSave)
		})

		Convey("No saver is a save CaptureError too", func() {
			e := New(rasterFunc(blank))
			err := waitTask(e.Export(context.Background(), tree, template.RootID, completeState()))
			So(errors.Is(err, ErrNoSaver), ShouldBeTrue)
			So(errors.Is(err, ErrCaptureFailed), ShouldBeTrue)
		})

		Convey("Wait gives up with its context while the task keeps running", func() {
			release := make(chan struct{})
			e := New(rasterFunc(func(n *template.Node) (*image.RGBA, error) {
				<-release
				return blank(n)
			}), WithSaver(&recordingSaver{}))
			task := e.Export(context.Background(), tree, template.RootID, completeState())

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			So(task.Wait(ctx), ShouldEqual, context.Canceled)
			So(task.Err(), ShouldBeNil)

			close(release)
			So(waitTask(task), ShouldBeNil)
		})
	})
}

func TestSavers(t *testing.T) {
	Convey("Given a download", t, func() {
		d := Download{FileName: "小明_早起训练营_第12期.jpg", ContentType: ContentTypeOctetStream, Data: []byte{0xff, 0xd8, 0xff}}

		Convey("DirSaver writes it under its sanitized name", func() {
			dir := t.TempDir()
			s := DirSaver{Dir: filepath.Join(dir, "out")}
			So(s.Save(context.Background(), d), ShouldBeNil)
			data, err := os.ReadFile(filepath.Join(dir, "out", d.FileName))
			So(err, ShouldBeNil)
			So(data, ShouldResemble, d.Data)
		})

		Convey("DirSaver honours a cancelled context", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			So(DirSaver{Dir: t.TempDir()}.Save(ctx, d), ShouldEqual, context.Canceled)
		})

		Convey("ResponseSaver sends an attachment with an RFC 2231 name", func() {
			rec := httptest.NewRecorder()
			So(ResponseSaver{W: rec}.Save(context.Background(), d), ShouldBeNil)
			So(rec.Header().Get("Content-Type"), ShouldEqual, "application/octet-stream")
			So(rec.Header().Get("Content-Length"), ShouldEqual, "3")

			disp, params, err := mime.ParseMediaType(rec.Header().Get("Content-Disposition"))
			So(err, ShouldBeNil)
			So(disp, ShouldEqual, "attachment")
			So(params["filename"], ShouldEqual, d.FileName)
			So(rec.Body.Bytes(), ShouldResemble, d.Data)
		})

		Convey("DataURLSaver keeps an octet-stream href", func() {
			s := &DataURLSaver{}
			So(s.Save(context.Background(), d), ShouldBeNil)
			href, name := s.Href()
			So(href, ShouldStartWith, "data:image/octet-stream;base64,")
			So(name, ShouldEqual, d.FileName)
			mt, data, err := poster.DecodeDataURI(href)
			So(err, ShouldBeNil)
			So(mt, ShouldEqual, "image/octet-stream")
			So(data, ShouldResemble, d.Data)
		})
	})
}

func TestSanitizeFileName(t *testing.T) {
	Convey("Given hostile or odd file names", t, func() {
		So(SanitizeFileName("a/b\\c.jpg"), ShouldEqual, "a_b_c.jpg")
		So(SanitizeFileName(`x:y*?"<>|.jpg`), ShouldEqual, "x_y______.jpg")
		So(SanitizeFileName(" .. "), ShouldEqual, "poster.jpg")
		So(SanitizeFileName("tab\there.jpg"), ShouldEqual, "tab_here.jpg")

		Convey("Decomposed characters are composed", func() {
			decomposed := "Jose\u0301.jpg"
			So(SanitizeFileName(decomposed), ShouldEqual, "Jos\u00e9.jpg")
			So(strings.Contains(SanitizeFileName(decomposed), "\u0301"), ShouldBeFalse)
		})
	})
}
