//go:build js && wasm

// GoPoster WASM: the whole pipeline in the browser.
// Compiled with: GOOS=js GOARCH=wasm go build -o goposter.wasm ./clients/wasm/
package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"syscall/js"

	"github.com/xob0t/GoPoster/clients/wasm/bridge"
	"github.com/xob0t/GoPoster/internal/config"
	"github.com/xob0t/GoPoster/pkg/logger"
)

var b *bridge.Bridge

func main() {
	_ = logger.Init()

	var err error
	b, err = bridge.New(config.New())
	if err != nil {
		fmt.Println("GoPoster WASM failed:", err)
		return
	}
	fmt.Println("GoPoster WASM loaded")

	// Register JS-callable functions.
	js.Global().Set("goSchema", js.FuncOf(schema))
	js.Global().Set("goState", js.FuncOf(state))
	js.Global().Set("goUpdateFields", js.FuncOf(updateFields))
	js.Global().Set("goReset", js.FuncOf(reset))
	js.Global().Set("goIngestAvatar", js.FuncOf(ingestAvatar))
	js.Global().Set("goRender", js.FuncOf(render))
	js.Global().Set("goExport", js.FuncOf(exportPoster))
	js.Global().Set("goOnChange", js.FuncOf(onChange))
	js.Global().Set("goLoadTemplate", js.FuncOf(loadTemplate))
	js.Global().Set("goRegisterAsset", js.FuncOf(registerAsset))
	js.Global().Set("goRemoveAsset", js.FuncOf(removeAsset))
	js.Global().Set("goReady", js.ValueOf(true))

	// Block forever (WASM must not exit).
	select {}
}

func errorValue(err error) js.Value {
	return js.ValueOf("error: " + err.Error())
}

// goSchema() returns the form controls as JSON.
func schema(this js.Value, args []js.Value) any {
	return js.ValueOf(b.Schema())
}

// goState() returns the form state as JSON.
func state(this js.Value, args []js.Value) any {
	return js.ValueOf(b.State())
}

// goUpdateFields(changedJSON) merges field changes and returns the state.
func updateFields(this js.Value, args []js.Value) any {
	if len(args) < 1 {
		return js.ValueOf("error: need changedJSON")
	}
	out, err := b.UpdateFields(args[0].String())
	if err != nil {
		return errorValue(err)
	}
	return js.ValueOf(out)
}

// goReset() clears the form.
func reset(this js.Value, args []js.Value) any {
	return js.ValueOf(b.Reset())
}

// goIngestAvatar(name, type, base64Data, callback(failureJSON|null, stateJSON)).
func ingestAvatar(this js.Value, args []js.Value) any {
	if len(args) < 4 {
		return js.ValueOf("error: need name, type, base64Data, callback")
	}
	data, err := base64.StdEncoding.DecodeString(args[2].String())
	if err != nil {
		return js.ValueOf("error: invalid base64: " + err.Error())
	}
	cb := args[3]
	b.IngestAvatar(context.Background(), args[0].String(), args[1].String(), data, func(result string, failed bool) {
		if failed {
			cb.Invoke(result, js.Null())
			return
		}
		cb.Invoke(js.Null(), result)
	})
	return js.ValueOf("ok")
}

// goRender() returns the preview as base64 PNG.
func render(this js.Value, args []js.Value) any {
	data, err := b.RenderPNG()
	if err != nil {
		return errorValue(err)
	}
	return js.ValueOf(base64.StdEncoding.EncodeToString(data))
}

// goExport(callback(failureJSON|null, href, fileName)). The page clicks an
// anchor with href and download=fileName.
func exportPoster(this js.Value, args []js.Value) any {
	if len(args) < 1 {
		return js.ValueOf("error: need callback")
	}
	cb := args[0]
	b.Export(context.Background(), func(href, fileName, failure string) {
		if failure != "" {
			cb.Invoke(failure, js.Null(), js.Null())
			return
		}
		cb.Invoke(js.Null(), href, fileName)
	})
	return js.ValueOf("ok")
}

// goOnChange(callback(revision, title)) returns a cancel function.
func onChange(this js.Value, args []js.Value) any {
	if len(args) < 1 {
		return js.ValueOf("error: need callback")
	}
	cb := args[0]
	cancel := b.OnChange(func(rev uint64, title string) {
		cb.Invoke(float64(rev), title)
	})
	var release js.Func
	release = js.FuncOf(func(js.Value, []js.Value) any {
		cancel()
		release.Release()
		return nil
	})
	return release
}

// goLoadTemplate(base64Bundle) switches to a .gspresets template.
func loadTemplate(this js.Value, args []js.Value) any {
	if len(args) < 1 {
		return js.ValueOf("error: need base64Bundle")
	}
	data, err := base64.StdEncoding.DecodeString(args[0].String())
	if err != nil {
		return js.ValueOf("error: invalid base64: " + err.Error())
	}
	if err := b.LoadTemplate(data); err != nil {
		return errorValue(err)
	}
	return js.ValueOf("ok")
}

// goRegisterAsset(id, base64Data) stores an asset in Go memory.
func registerAsset(this js.Value, args []js.Value) any {
	if len(args) < 2 {
		return js.ValueOf("error: need id, base64Data")
	}
	data, err := base64.StdEncoding.DecodeString(args[1].String())
	if err != nil {
		return js.ValueOf("error: invalid base64: " + err.Error())
	}
	b.RegisterAsset(args[0].String(), data)
	return js.ValueOf("ok")
}

// goRemoveAsset(id) removes an asset from Go memory.
func removeAsset(this js.Value, args []js.Value) any {
	if len(args) < 1 {
		return js.ValueOf("error: need id")
	}
	b.RemoveAsset(args[0].String())
	return js.ValueOf("ok")
}
