package bridge

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/xob0t/GoPoster/internal/config"
	"github.com/xob0t/GoPoster/pkg/poster"
)

const miniPreset = `{
  "meta": {"name": "mini"},
  "canvas": {"width": 200, "height": 100},
  "background": {"color": "#ff0000"},
  "components": [{"id": "title", "bind": "title", "x": 0, "y": 0, "width": 200, "height": 40}]
}`

func bundle(files map[string][]byte) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range files {
		w, _ := zw.Create(name)
		_, _ = w.Write(data)
	}
	_ = zw.Close()
	return buf.Bytes()
}

func pngBytes() []byte {
	var buf bytes.Buffer
	_ = png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8)))
	return buf.Bytes()
}

type ingestResult struct {
	out    string
	failed bool
}

func ingest(b *Bridge, name, typ string, data []byte) ingestResult {
	ch := make(chan ingestResult, 1)
	b.IngestAvatar(context.Background(), name, typ, data, func(out string, failed bool) {
		ch <- ingestResult{out, failed}
	})
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		return ingestResult{out: "timeout", failed: true}
	}
}

type exportResult struct {
	href, name, failure string
}

func exportNow(b *Bridge) exportResult {
	ch := make(chan exportResult, 1)
	b.Export(context.Background(), func(href, name, failure string) {
		ch <- exportResult{href, name, failure}
	})
	select {
	case r := <-ch:
		return r
	case <-time.After(10 * time.Second):
		return exportResult{failure: "timeout"}
	}
}

func TestBridge(t *testing.T) {
	Convey("Given a bridge on the embedded template", t, func() {
		b, err := New(config.New())
		So(err, ShouldBeNil)

		Convey("Field updates return the new state", func() {
			out, err := b.UpdateFields(`{"trainingName":"早起","trainingNo":7,"userAvatarUpload":{"file":"x"}}`)
			So(err, ShouldBeNil)
			var st State
			So(json.Unmarshal([]byte(out), &st), ShouldBeNil)
			So(st.Title, ShouldEqual, "早起训练营_第7期")
			So(*st.State.TrainingNo, ShouldEqual, 7)
			So(st.Revision, ShouldEqual, 1)

			_, err = b.UpdateFields(`not json`)
			So(err, ShouldNotBeNil)
		})

		Convey("Rebuilds are forwarded until cancelled", func() {
			var titles []string
			cancel := b.OnChange(func(_ uint64, title string) { titles = append(titles, title) })
			_, _ = b.UpdateFields(`{"trainingName":"A"}`)
			cancel()
			_, _ = b.UpdateFields(`{"trainingName":"B"}`)
			So(titles, ShouldResemble, []string{"A训练营_第--期"})
		})

		Convey("Avatar files are checked before ingestion", func() {
			r := ingest(b, "a.gif", "image/gif", make([]byte, 3<<20))
			So(r.failed, ShouldBeTrue)
			var f Failure
			So(json.Unmarshal([]byte(r.out), &f), ShouldBeNil)
			So(len(f.Rejected), ShouldEqual, 2)

			r = ingest(b, "me.png", "image/png", pngBytes())
			So(r.failed, ShouldBeFalse)
			var st State
			So(json.Unmarshal([]byte(r.out), &st), ShouldBeNil)
			So(st.State.UserAvatar, ShouldStartWith, "data:image/png;base64,")
		})

		Convey("Export reports missing fields", func() {
			r := exportNow(b)
			var f Failure
			So(json.Unmarshal([]byte(r.failure), &f), ShouldBeNil)
			So(f.Messages[poster.FieldTrainingName], ShouldEqual, "请输入标题")
		})

		Convey("A complete form exports a data URL download", func() {
			So(ingest(b, "me.png", "image/png", pngBytes()).failed, ShouldBeFalse)
			_, err := b.UpdateFields(`{"trainingName":"早起","trainingNo":7,"userName":"小红","clockDays":3,"totalTargetCount":4,"totalPoints":5}`)
			So(err, ShouldBeNil)

			r := exportNow(b)
			So(r.failure, ShouldBeEmpty)
			So(r.name, ShouldEqual, "小红_早起训练营_第7期.jpg")
			So(r.href, ShouldStartWith, "data:image/octet-stream;base64,")
		})

		Convey("The preview renders as PNG", func() {
			data, err := b.RenderPNG()
			So(err, ShouldBeNil)
			img, err := png.Decode(bytes.NewReader(data))
			So(err, ShouldBeNil)
			So(img.Bounds().Dx(), ShouldEqual, 750)
		})

		Convey("Loading a bundle swaps the template and starts over", func() {
			_, _ = b.UpdateFields(`{"userName":"小红"}`)
			err := b.LoadTemplate(bundle(map[string][]byte{
				"preset.json":   []byte(miniPreset),
				"assets/bg.png": pngBytes(),
			}))
			So(err, ShouldBeNil)
			So(b.resolve("assets/bg.png"), ShouldNotBeNil)

			var st State
			So(json.Unmarshal([]byte(b.State()), &st), ShouldBeNil)
			So(st.State.UserName, ShouldBeEmpty)

			data, err := b.RenderPNG()
			So(err, ShouldBeNil)
			img, _ := png.Decode(bytes.NewReader(data))
			So(img.Bounds().Dx(), ShouldEqual, 200)
			So(img.Bounds().Dy(), ShouldEqual, 100)

			So(b.LoadTemplate([]byte("not a zip")), ShouldNotBeNil)
		})

		Convey("Registered assets resolve until removed", func() {
			b.RegisterAsset("font-1", []byte{1})
			So(b.resolve("font-1"), ShouldResemble, []byte{1})
			b.RemoveAsset("font-1")
			So(b.resolve("font-1"), ShouldBeNil)
			So(b.Schema(), ShouldContainSubstring, `"field":"userAvatar"`)
		})
	})
}
