package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/xob0t/GoPoster/internal/app"
	"github.com/xob0t/GoPoster/internal/config"
	"github.com/xob0t/GoPoster/pkg/metrics"
	"github.com/xob0t/GoPoster/pkg/poster"
)

type harness struct {
	srv    *Server
	ts     *httptest.Server
	client *http.Client
}

func newHarness() (*harness, func()) {
	rt, err := app.NewRuntime(context.Background(), config.New(), app.WithRuntimeMetrics(metrics.NewManager()))
	So(err, ShouldBeNil)
	s := New(rt)
	ts := httptest.NewServer(s.Handler())
	jar, _ := cookiejar.New(nil)
	h := &harness{srv: s, ts: ts, client: &http.Client{Jar: jar}}
	return h, func() {
		ts.Close()
		s.Close()
		_ = rt.Close()
	}
}

func (h *harness) do(method, path string, body io.Reader, contentType string) *http.Response {
	req, err := http.NewRequest(method, h.ts.URL+path, body)
	So(err, ShouldBeNil)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := h.client.Do(req)
	So(err, ShouldBeNil)
	return resp
}

func (h *harness) patch(changed map[string]any) stateResponse {
	data, _ := json.Marshal(map[string]any{"changed": changed})
	resp := h.do(http.MethodPatch, "/api/state", bytes.NewReader(data), "application/json")
	defer resp.Body.Close()
	So(resp.StatusCode, ShouldEqual, http.StatusOK)
	var out stateResponse
	So(json.NewDecoder(resp.Body).Decode(&out), ShouldBeNil)
	return out
}

func (h *harness) upload(name, contentType string, content []byte) *http.Response {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="`+name+`"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	So(err, ShouldBeNil)
	_, _ = part.Write(content)
	So(mw.Close(), ShouldBeNil)
	return h.do(http.MethodPost, "/api/avatar", &body, mw.FormDataContentType())
}

func pngBytes() []byte {
	var buf bytes.Buffer
	_ = png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8)))
	return buf.Bytes()
}

func decodeJSON(resp *http.Response, v any) {
	defer resp.Body.Close()
	So(json.NewDecoder(resp.Body).Decode(v), ShouldBeNil)
}

func TestServerAPI(t *testing.T) {
	Convey("Given an editor server", t, func() {
		h, done := newHarness()
		defer done()

		Convey("The schema lists every form control", func() {
			var schema []poster.FieldSpec
			decodeJSON(h.do(http.MethodGet, "/api/schema", nil, ""), &schema)
			So(len(schema), ShouldEqual, len(poster.Fields))
			So(schema[0].Field, ShouldEqual, poster.FieldTrainingName)
		})

		Convey("Updates stick to the cookie session and drop transient keys", func() {
			out := h.patch(map[string]any{"trainingName": "早起", "trainingNo": 12, "userAvatarUpload": "x"})
			So(out.Fields, ShouldResemble, []poster.Field{poster.FieldTrainingName, poster.FieldTrainingNo})
			So(out.Title, ShouldEqual, "早起训练营_第12期")
			So(out.Revision, ShouldEqual, 1)

			var again stateResponse
			decodeJSON(h.do(http.MethodGet, "/api/state", nil, ""), &again)
			So(again.Session, ShouldEqual, out.Session)
			So(again.State.TrainingName, ShouldEqual, "早起")
			So(h.srv.sessions.len(), ShouldEqual, 1)
		})

		Convey("Uncoercible values are reported while the rest merges", func() {
			out := h.patch(map[string]any{"userName": "小明", "clockDays": "lots"})
			So(out.Error, ShouldNotBeEmpty)
			So(out.State.UserName, ShouldEqual, "小明")
			So(out.State.ClockDays, ShouldBeNil)
		})

		Convey("Reset clears the form", func() {
			h.patch(map[string]any{"userName": "小明"})
			var out stateResponse
			decodeJSON(h.do(http.MethodDelete, "/api/state", nil, ""), &out)
			So(out.State, ShouldResemble, poster.FormState{})
		})

		Convey("A wrongly typed avatar is refused with its message", func() {
			resp := h.upload("a.gif", "image/gif", []byte("GIF89a"))
			So(resp.StatusCode, ShouldEqual, http.StatusUnprocessableEntity)
			var out struct{ Messages []string }
			decodeJSON(resp, &out)
			So(out.Messages, ShouldResemble, []string{"只能上传 JPG/PNG 类型的图片"})
		})

		Convey("Export of an incomplete form lists the missing fields", func() {
			h.patch(map[string]any{"userName": "小明"})
			resp := h.do(http.MethodPost, "/api/export", nil, "")
			So(resp.StatusCode, ShouldEqual, http.StatusUnprocessableEntity)
			var out exportFailure
			decodeJSON(resp, &out)
			So(out.Messages[poster.FieldUserAvatar], ShouldEqual, "请上传学员头像")
			So(out.Messages, ShouldNotContainKey, poster.FieldUserName)
		})

		Convey("A complete form exports a JPEG attachment", func() {
			resp := h.upload("me.png", "image/png", pngBytes())
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			resp.Body.Close()
			h.patch(map[string]any{
				"trainingName": "早起", "trainingNo": 12, "userName": "小明",
				"clockDays": 21, "totalTargetCount": 30, "totalPoints": 95,
			})

			resp = h.do(http.MethodPost, "/api/export", nil, "")
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(resp.Header.Get("Content-Type"), ShouldEqual, "application/octet-stream")

			_, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition"))
			So(err, ShouldBeNil)
			So(params["filename"], ShouldEqual, "小明_早起训练营_第12期.jpg")

			img, err := jpeg.Decode(resp.Body)
			So(err, ShouldBeNil)
			So(img.Bounds().Dx(), ShouldEqual, 750)
		})

		Convey("The preview is served as PNG", func() {
			resp := h.do(http.MethodGet, "/api/preview.png", nil, "")
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(resp.Header.Get("Content-Type"), ShouldEqual, "image/png")
			img, err := png.Decode(resp.Body)
			So(err, ShouldBeNil)
			So(img.Bounds().Dy(), ShouldEqual, 1000)
		})

		Convey("The editor page and metrics are served", func() {
			resp := h.do(http.MethodGet, "/", nil, "")
			page, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			So(string(page), ShouldContainSubstring, "/api/live")

			h.patch(map[string]any{"userName": "小明"})
			resp = h.do(http.MethodGet, "/metrics", nil, "")
			text, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			So(string(text), ShouldContainSubstring, "goposter_pipeline_field_updates_total 1")
			So(string(text), ShouldContainSubstring, "goposter_pipeline_active_sessions 1")
		})

		Convey("Idle sessions are swept", func() {
			h.patch(map[string]any{"userName": "小明"})
			So(h.srv.Sweep(time.Now()), ShouldEqual, 0)
			So(h.srv.Sweep(time.Now().Add(2*config.DefaultSessionTTL)), ShouldEqual, 1)
			So(h.srv.sessions.len(), ShouldEqual, 0)

			var out stateResponse
			decodeJSON(h.do(http.MethodGet, "/api/state", nil, ""), &out)
			So(out.State.UserName, ShouldBeEmpty)
		})
	})
}

func TestServerLive(t *testing.T) {
	Convey("Given a live websocket on a session", t, func() {
		h, done := newHarness()
		defer done()

		first := h.patch(map[string]any{"trainingName": "早起"})

		dialer := websocket.Dialer{Jar: h.client.Jar, HandshakeTimeout: 5 * time.Second}
		url := "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/api/live"
		conn, _, err := dialer.Dial(url, nil)
		So(err, ShouldBeNil)
		defer conn.Close()
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

		var msg liveMessage
		So(conn.ReadJSON(&msg), ShouldBeNil)
		So(msg.Revision, ShouldEqual, first.Revision)

		Convey("A bound change is pushed with the new title", func() {
			h.patch(map[string]any{"trainingNo": 3})
			So(conn.ReadJSON(&msg), ShouldBeNil)
			So(msg.Revision, ShouldEqual, first.Revision+1)
			So(msg.Title, ShouldEqual, "早起训练营_第3期")
		})
	})
}
