package writer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/wudi/bookingpdf/ir/raw"
)

var ErrNoRoot = errors.New("writer: trailer has no /Root")

type impl struct{ interceptors []Interceptor }

func (w *impl) SerializeObject(ref raw.ObjectRef, obj raw.Object) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%d %d obj\n", ref.Num, ref.Gen)
	writeObject(&buf, obj)
	buf.WriteString("\nendobj\n")
	return buf.Bytes(), nil
}

func (w *impl) Write(ctx context.Context, doc *raw.Document, out io.Writer, cfg Config) error {
	root, ok := doc.Trailer.Get("Root")
	if !ok {
		return ErrNoRoot
	}
	version := cfg.Version
	if version == "" {
		version = doc.Version
	}
	if version == "" {
		version = "1.7"
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-" + version + "\n%\xE2\xE3\xCF\xD3\n")

	type slot struct {
		offset int64
		gen    int
	}
	offsets := make(map[int]slot)
	refs := doc.Refs()
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return err
		}
		obj := doc.Objects[ref]
		for _, ic := range w.interceptors {
			if err := ic.BeforeWrite(ctx, ref, obj); err != nil {
				return err
			}
		}
		offset := int64(buf.Len())
		serialized, err := w.SerializeObject(ref, obj)
		if err != nil {
			return fmt.Errorf("serialize %s: %w", ref, err)
		}
		buf.Write(serialized)
		offsets[ref.Num] = slot{offset: offset, gen: ref.Gen}
		for _, ic := range w.interceptors {
			if err := ic.AfterWrite(ctx, ref, int64(len(serialized))); err != nil {
				return err
			}
		}
	}

	maxObjNum := 0
	if len(refs) > 0 {
		maxObjNum = refs[len(refs)-1].Num
	}
	xrefOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", maxObjNum+1)
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= maxObjNum; i++ {
		if s, ok := offsets[i]; ok {
			fmt.Fprintf(&buf, "%010d %05d n \n", s.offset, s.gen)
		} else {
			buf.WriteString("0000000000 65535 f \n")
		}
	}

	trailer := raw.Dict()
	trailer.Set("Size", raw.NumberInt(int64(maxObjNum+1)))
	trailer.Set("Root", root)
	for _, key := range []string{"Info", "ID"} {
		if v, ok := doc.Trailer.Get(key); ok {
			trailer.Set(key, v)
		}
	}
	buf.WriteString("trailer\n")
	writeObject(&buf, trailer)
	fmt.Fprintf(&buf, "\nstartxref\n%d\n%%%%EOF\n", xrefOffset)

	_, err := out.Write(buf.Bytes())
	return err
}

func writeObject(b *bytes.Buffer, o raw.Object) {
	switch v := o.(type) {
	case raw.NameObj:
		writeName(b, v.Val)
	case raw.NumberObj:
		b.WriteString(v.String())
	case raw.BoolObj:
		if v.V {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case raw.NullObj:
		b.WriteString("null")
	case raw.StringObj:
		b.WriteByte('(')
		b.Write(EscapeString(v.Bytes))
		b.WriteByte(')')
	case raw.HexStringObj:
		fmt.Fprintf(b, "<%X>", v.Bytes)
	case *raw.ArrayObj:
		b.WriteByte('[')
		for i, it := range v.Items {
			if i > 0 {
				b.WriteByte(' ')
			}
			writeObject(b, it)
		}
		b.WriteByte(']')
	case *raw.DictObj:
		writeDict(b, v)
	case *raw.StreamObj:
		dict := v.Dict
		if dict == nil {
			dict = raw.Dict()
		}
		dict.Set("Length", raw.NumberInt(int64(len(v.Data))))
		writeDict(b, dict)
		b.WriteString("\nstream\n")
		b.Write(v.Data)
		b.WriteString("\nendstream")
	case raw.RefObj:
		fmt.Fprintf(b, "%d %d R", v.R.Num, v.R.Gen)
	default:
		b.WriteString("null")
	}
}

func writeDict(b *bytes.Buffer, d *raw.DictObj) {
	b.WriteString("<<")
	for _, k := range d.Keys() {
		writeName(b, k)
		b.WriteByte(' ')
		writeObject(b, d.KV[k])
	}
	b.WriteString(">>")
}

func writeName(b *bytes.Buffer, name string) {
	b.WriteByte('/')
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c < '!' || c > '~' || c == '#' || isDelimiter(c) {
			fmt.Fprintf(b, "#%02X", c)
			continue
		}
		b.WriteByte(c)
	}
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

// EscapeString escapes a literal string body: backslash and both
// parentheses get a backslash, CR is written as \r so it survives EOL
// normalisation. Other bytes pass through unchanged.
func EscapeString(s []byte) []byte {
	out := make([]byte, 0, len(s)+8)
	for _, c := range s {
		switch c {
		case '\\', '(', ')':
			out = append(out, '\\', c)
		case '\r':
			out = append(out, '\\', 'r')
		default:
			out = append(out, c)
		}
	}
	return out
}
