package writer

import (
	"context"
	"io"

	"github.com/wudi/bookingpdf/ir/raw"
)

type Config struct {
	// Version overrides the header version. Empty keeps the document's own,
	// falling back to 1.7.
	Version string
}

// Writer serializes a whole document as a fresh file with a classic xref
// table. Object numbers are kept as they are in the document.
type Writer interface {
	Write(ctx context.Context, doc *raw.Document, w io.Writer, cfg Config) error
	SerializeObject(ref raw.ObjectRef, obj raw.Object) ([]byte, error)
}

type Interceptor interface {
	BeforeWrite(ctx context.Context, ref raw.ObjectRef, obj raw.Object) error
	AfterWrite(ctx context.Context, ref raw.ObjectRef, bytesWritten int64) error
}

type WriterBuilder struct{ interceptors []Interceptor }

func (b *WriterBuilder) WithInterceptor(i Interceptor) *WriterBuilder {
	b.interceptors = append(b.interceptors, i)
	return b
}
func (b *WriterBuilder) Build() Writer { return &impl{interceptors: b.interceptors} }

// New returns a writer without interceptors.
func New() Writer { return &impl{} }
