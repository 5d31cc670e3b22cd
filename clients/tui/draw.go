// draw.go - Screen layout of the form editor.
package tui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"

	"github.com/xob0t/GoPoster/pkg/poster"
)

const (
	marginX    = 2
	labelWidth = 10
)

func (e *Editor) draw() {
	e.screen.Clear()
	w, h := e.screen.Size()
	st := e.sess.Preview.State()

	y := 1
	e.drawText(marginX, y, w, e.sess.Preview.Title(), styleTitle)
	y += 2

	cursorX, cursorY := -1, -1
	for i, spec := range e.fields {
		e.drawText(marginX, y, w, padLabel(spec.Label), styleLabel)
		x := marginX + labelWidth + 1

		value := e.inputs[spec.Field]
		style := styleDefault
		if i == e.cursor {
			style = styleCursor
		}
		if spec.Kind == "image" && value == "" && i != e.cursor {
			value = avatarSummary(st)
		}
		end := e.drawText(x, y, w, value, style)
		if i == e.cursor {
			cursorX, cursorY = end, y
		}
		if spec.Kind == "number" {
			e.drawText(end+2, y, w, fmt.Sprintf("(%d-%d)", spec.Min, spec.Max), styleHelp)
		}
		y++

		if msg := e.problems[spec.Field]; msg != "" {
			e.drawText(x, y, w, msg, styleError)
			y++
		}
	}

	y++
	x := marginX
	for _, m := range e.sess.Projector.Project(st) {
		x = e.drawText(x, y, w, fmt.Sprintf("%s %d", m.Label, m.Value), styleDefault) + 3
	}

	if e.status != "" {
		style := styleOK
		if e.statusErr {
			style = styleError
		}
		e.drawText(marginX, h-3, w, e.status, style)
	}
	e.drawText(marginX, h-2, w, "Tab/方向键 切换  Enter 确认  Ctrl+S 生成  Ctrl+R 重置  Esc 退出", styleHelp)

	if cursorY >= 0 {
		e.screen.ShowCursor(cursorX, cursorY)
	} else {
		e.screen.HideCursor()
	}
}

// drawText writes s from (x, y), clipped at maxX, and returns the column
// after the last cell written. Wide runes take two columns.
func (e *Editor) drawText(x, y, maxX int, s string, style tcell.Style) int {
	for _, r := range s {
		rw := runewidth.RuneWidth(r)
		if rw == 0 {
			continue
		}
		if x+rw > maxX {
			break
		}
		e.screen.SetContent(x, y, r, nil, style)
		x += rw
	}
	return x
}

// padLabel right-pads a label to labelWidth display columns.
func padLabel(label string) string {
	return runewidth.FillRight(runewidth.Truncate(label, labelWidth, ""), labelWidth)
}

func avatarSummary(st poster.FormState) string {
	if st.UserAvatar == "" {
		return "未上传（输入图片路径后回车）"
	}
	return fmt.Sprintf("已上传 %d 字节", len(st.UserAvatar))
}
