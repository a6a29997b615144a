package objgraph

import (
	"bytes"
	"io"
	"strconv"
	"strings"
)

const (
	literalNull  = "null"
	literalTrue  = "True"
	literalFalse = "False"

	// 每个对象体的首个保留字段。
	typeField = "type"

	defaultIndent = "  "
)

// NoID 表示 Serialize 的 root 不是对象。
const NoID = -1

func quote(s string) string {
	return strconv.Quote(s)
}

// unquote 接收去掉引号的字符串内容。
// 不含反斜杠的内容原样返回，未转义的旧存档仍可读取。
func unquote(body string) (string, error) {
	if !strings.ContainsRune(body, '\\') {
		return body, nil
	}
	return strconv.Unquote(`"` + body + `"`)
}

func isIdentStart(r rune) bool {
	return r == '_' || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z')
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || isDigit(r)
}

func isDigit(r rune) bool {
	return '0' <= r && r <= '9'
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

func validIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if i == 0 && !isIdentStart(r) || !isIdentPart(r) {
			return false
		}
	}
	return true
}

// textWriter 维护缩进，并记录第一个写入错误，调用方每条记录检查一次即可。
// 记录先写入内存，flush 时整条写出，失败的记录不会在 dst 中留下残片。
type textWriter struct {
	dst    io.Writer
	buf    bytes.Buffer
	indent string
	depth  int
	bol    bool
	n      int64
	err    error
}

func newTextWriter(w io.Writer, indent string) *textWriter {
	return &textWriter{dst: w, indent: indent}
}

func (tw *textWriter) write(s string) {
	if tw.err != nil || s == "" {
		return
	}
	if tw.bol {
		tw.bol = false
		for i := 0; i < tw.depth; i++ {
			tw.write(tw.indent)
		}
	}
	tw.buf.WriteString(s)
}

func (tw *textWriter) newLine() {
	tw.write("\n")
	tw.bol = true
}

func (tw *textWriter) in()  { tw.depth++ }
func (tw *textWriter) out() { tw.depth-- }

// discard 丢弃失败记录的全部输出。
func (tw *textWriter) discard() {
	tw.buf.Reset()
	tw.depth = 0
	tw.bol = false
	tw.err = nil
}

// flush 把当前记录整条写入 dst，n 只统计成功写出的字节。
func (tw *textWriter) flush() error {
	if tw.err != nil {
		return tw.err
	}
	n, err := tw.dst.Write(tw.buf.Bytes())
	tw.n += int64(n)
	tw.buf.Reset()
	tw.err = err
	return err
}

// valuePath 描述编解码当前所在的位置，例如 "#0.residents[2]#3.home"。
type valuePath []string

func (p *valuePath) push(seg string) { *p = append(*p, seg) }
func (p *valuePath) pop()            { *p = (*p)[:len(*p)-1] }

func (p valuePath) String() string {
	if len(p) == 0 {
		return "<root>"
	}
	return strings.Join(p, "")
}

func objectSeg(id int) string     { return "#" + strconv.Itoa(id) }
func fieldSeg(name string) string { return "." + name }
func indexSeg(i int) string       { return "[" + strconv.Itoa(i) + "]" }
